package grid_world

import (
	"fmt"

	. "racetrack/models"
)

// CheckForCrash returns true if moving from @position with @velocity leaves the grid, lands
// on an OUTSIDE cell, or passes through one on the way. The path is rasterized with
// Bresenham's line algorithm, which catches tunneling through walls thinner than the
// car's speed. Transitions leaving a START cell skip the path test, since the start line's
// edge cells are themselves the corridor's walls; the destination is still checked.
// Panics if @position itself is off road.
func (t *Track) CheckForCrash(position Position, velocity Velocity) bool {
	if !t.Cell(position).IsRoad() {
		panic(fmt.Errorf("%w: crash check from %v", ErrOffRoad, position))
	}

	dest := position.Add(velocity)
	if !t.InBounds(dest) || t.grid[dest.Y][dest.X] == OUTSIDE {
		return true
	}

	if t.grid[position.Y][position.X] == START {
		return false
	}

	for _, p := range Line(position, dest) {
		if t.Cell(p) == OUTSIDE {
			return true
		}
	}
	return false
}

// HasFinished returns true iff the motion segment from the previous position
// (@position - @velocity) to @position intersects the finish line, endpoints included.
// Fast cars may jump clean over the finish cells, so testing the destination cell
// alone is insufficient.
func (t *Track) HasFinished(position Position, velocity Velocity) bool {
	motion := Segment{A: position.Sub(velocity), B: position}
	return Intersects(motion, t.finish)
}

// Line returns the cells visited by Bresenham's algorithm from a to b, both inclusive.
func Line(a, b Position) (cells []Position) {
	dx := iabs(b.X - a.X)
	dy := -iabs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}

	err := dx + dy
	cur := a
	for {
		cells = append(cells, cur)
		if cur == b {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			cur.X += sx
		}
		if e2 <= dx {
			err += dx
			cur.Y += sy
		}
	}
}

// Intersects is the closed segment intersection test: touching endpoints and collinear
// overlap both count.
func Intersects(s1, s2 Segment) bool {
	o1 := orientation(s1.A, s1.B, s2.A)
	o2 := orientation(s1.A, s1.B, s2.B)
	o3 := orientation(s2.A, s2.B, s1.A)
	o4 := orientation(s2.A, s2.B, s1.B)

	if o1 != o2 && o3 != o4 {
		return true
	}

	// Collinear special cases: a point of one segment lies on the other.
	return (o1 == 0 && onSegment(s1.A, s2.A, s1.B)) ||
		(o2 == 0 && onSegment(s1.A, s2.B, s1.B)) ||
		(o3 == 0 && onSegment(s2.A, s1.A, s2.B)) ||
		(o4 == 0 && onSegment(s2.A, s1.B, s2.B))
}

// orientation returns 0 if p, q, r are collinear, 1 if clockwise, -1 if counterclockwise.
func orientation(p, q, r Position) int {
	val := (q.Y-p.Y)*(r.X-q.X) - (q.X-p.X)*(r.Y-q.Y)
	switch {
	case val > 0:
		return 1
	case val < 0:
		return -1
	}
	return 0
}

// onSegment reports whether q lies within the bounding box of p and r; callers have
// already established collinearity.
func onSegment(p, q, r Position) bool {
	return q.X <= max(p.X, r.X) && q.X >= min(p.X, r.X) &&
		q.Y <= max(p.Y, r.Y) && q.Y >= min(p.Y, r.Y)
}

func iabs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
