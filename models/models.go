// models holds the racetrack's plain data types: grid cells, kinematic state, and the
// trajectory records that flow from an episode up to the controller.
package models

import "fmt"

// CellKind is the type of a single grid cell. The integer values are also the
// codes written to grid files, so they must not be reordered.
type CellKind uint8

// Track cell types
const (
	OUTSIDE CellKind = iota
	START
	INSIDE
	FINISH
)

func (ck CellKind) String() string {
	switch ck {
	case OUTSIDE:
		return "outside"
	case START:
		return "start"
	case INSIDE:
		return "inside"
	case FINISH:
		return "finish"
	}
	return fmt.Sprintf("CellKind(%d)", uint8(ck))
}

// IsRoad returns true for every cell the car may occupy.
func (ck CellKind) IsRoad() bool {
	return ck == START || ck == INSIDE || ck == FINISH
}

// Position is a grid coordinate. X is the column and Y is the row, where row 0 is the
// top of the grid; a negative y-velocity therefore moves the car up the track.
type Position struct {
	X, Y int
}

// Add returns the position displaced by the passed velocity.
func (p Position) Add(v Velocity) Position {
	return Position{X: p.X + v.VX, Y: p.Y + v.VY}
}

// Sub returns the position before displacement by the passed velocity.
func (p Position) Sub(v Velocity) Position {
	return Position{X: p.X - v.VX, Y: p.Y - v.VY}
}

// Velocity is the number of cells moved per time step along each axis.
type Velocity struct {
	VX, VY int
}

// IsZero reports whether the car is stationary.
func (v Velocity) IsZero() bool {
	return v.VX == 0 && v.VY == 0
}

// Apply returns the velocity after the passed acceleration.
func (v Velocity) Apply(a Action) Velocity {
	return Velocity{VX: v.VX + a.DVX, VY: v.VY + a.DVY}
}

// Action consists of a velocity increment/decrement in the horizontal and vertical direction.
// In this problem, three values (+1, -1, 0) per axis yields 9 actions per step.
type Action struct {
	DVX, DVY int
}

// NOOP leaves the velocity unchanged. It is also the action forced upon the agent
// by a simulated actuator failure.
var NOOP = Action{}

// IsNoop reports whether the action leaves velocity unchanged.
func (a Action) IsNoop() bool {
	return a == NOOP
}

// Acceleration bounds per axis.
const (
	MIN_ACCELERATION = -1
	MAX_ACCELERATION = 1
)

// StateKey is the identity of a state for the value table: position plus velocity.
// The cell type is not part of the state's identity.
type StateKey struct {
	Position
	Velocity
}

// Bounds are the closed per-axis velocity ranges.
type Bounds struct {
	MinVX, MaxVX int
	MinVY, MaxVY int
}

// Contains reports whether v lies within the bounds.
func (b Bounds) Contains(v Velocity) bool {
	return v.VX >= b.MinVX && v.VX <= b.MaxVX && v.VY >= b.MinVY && v.VY <= b.MaxVY
}

// MaxSpeedX is the largest horizontal displacement possible in one step.
func (b Bounds) MaxSpeedX() int {
	return max(abs(b.MinVX), abs(b.MaxVX))
}

// Velocities enumerates every velocity within the bounds, vx-major.
func (b Bounds) Velocities() (vels []Velocity) {
	for vx := b.MinVX; vx <= b.MaxVX; vx++ {
		for vy := b.MinVY; vy <= b.MaxVY; vy++ {
			vels = append(vels, Velocity{VX: vx, VY: vy})
		}
	}
	return
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// Step is a single time step record of an episode: the car's position and velocity after
// the step, and the action that produced them. Action is nil for the initial state and
// for states produced by a crash reset.
type Step struct {
	Position Position
	Velocity Velocity
	Action   *Action
}

// Key returns the value-table key for the step's state.
func (s Step) Key() StateKey {
	return StateKey{Position: s.Position, Velocity: s.Velocity}
}

// Trajectory is the chronological sequence of Steps of one episode.
type Trajectory []Step

// Rev returns the indices of a slice of the passed length in reverse order, for walking a
// trajectory backward from its terminal step.
func Rev(length int) []int {
	indices := make([]int, length)
	for i := 0; i < length; i++ {
		indices[i] = length - i - 1
	}
	return indices
}
