// cell_views contains views derived from the Cell view-model.
package cell_views

import (
	"math"

	. "racetrack/models"
	"racetrack/reinforcement"
)

// Cell is the per-position view-model of a value snapshot, indexed [x][y] in svg coordinates,
// where y=0 is the top row just as in the track grid. Cell fields should be immediately
// usable as view parameters.
type Cell struct {
	X, Y                int
	Max                 float64
	Road                bool
	Visited             bool
	PolicyArrowRotation int
	PolicyArrowScale    int
	Fill                string
}

// Convert transforms a value snapshot into Cells for consumption by the values views.
func Convert(snap reinforcement.ValueSnapshot) (cells [][]Cell) {
	rows := len(snap.Grid)
	if rows == 0 {
		return nil
	}
	cols := len(snap.Grid[0])

	cells = make([][]Cell, cols)
	for x := range cells {
		cells[x] = make([]Cell, rows)
		for y := range cells[x] {
			cell := Cell{
				X:    x,
				Y:    y,
				Max:  snap.Values[y][x],
				Road: snap.Grid[y][x].IsRoad(),
				Fill: getFill(snap.Grid[y][x]),
			}
			if best := snap.Policy[y][x]; best != nil {
				cell.Visited = true
				cell.PolicyArrowRotation = getDegrees(*best)
				cell.PolicyArrowScale = getScale(*best)
			}
			cells[x][y] = cell
		}
	}
	return
}

func getScale(v Velocity) int {
	return int(math.Hypot(float64(v.VX), float64(v.VY)))
}

// getDegrees converts a velocity into the degrees passed to svg's rotate() for an upward
// arrow rune, clockwise from vertical. Grid rows grow downward like svg's y-axis, so a
// velocity of (0,-1) is an unrotated arrow.
func getDegrees(v Velocity) int {
	if v.IsZero() {
		return 0
	}
	rad := math.Atan2(float64(v.VX), float64(-v.VY))
	return int(math.Round(rad * 180 / math.Pi))
}

func getFill(kind CellKind) (fill string) {
	switch kind {
	case OUTSIDE:
		fill = "lightgreen"
	case INSIDE:
		fill = "lightgray"
	case START:
		fill = "lightblue"
	case FINISH:
		fill = "lightyellow"
	}
	return
}
