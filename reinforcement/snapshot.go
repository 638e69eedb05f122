package reinforcement

import (
	. "racetrack/models"
)

// ValueSnapshot is a copy of the value table reduced to position space, taken on the
// training goroutine so that views may read it while training continues.
type ValueSnapshot struct {
	Episode int
	Grid    [][]CellKind
	// Values holds the max over velocities per position, indexed [row][col], raised to Floor
	// where a position is off-road or unvisited.
	Values [][]float64
	// Policy is the best velocity per position, nil where no sub-state has been visited.
	Policy [][]*Velocity
	Floor  float64
}

// Floor is the lowest return a finite episode can reach: every step of a full-length episode
// paying the step reward.
func (cfg *TrainingConfig) Floor() float64 {
	return cfg.Training.StepReward * float64(cfg.Training.MaxEpisodeLength+1)
}

// Snapshot copies the current projected values and greedy velocities.
func (c *Controller) Snapshot() ValueSnapshot {
	rows, cols := c.track.Rows(), c.track.Cols()
	floor := c.cfg.Floor()
	bounds := c.cfg.Bounds()

	values := c.values.Project(rows, cols, PROJECT_MAX)
	policy := make([][]*Velocity, rows)
	for y := range values {
		policy[y] = make([]*Velocity, cols)
		for x := range values[y] {
			if best, ok := c.values.BestVelocity(Position{X: x, Y: y}, bounds); ok {
				policy[y][x] = &best
			}
			values[y][x] = max(values[y][x], floor)
		}
	}

	return ValueSnapshot{
		Episode: c.episodes,
		Grid:    c.track.Grid(),
		Values:  values,
		Policy:  policy,
		Floor:   floor,
	}
}
