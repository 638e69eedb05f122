package models

import (
	"fmt"
	"io"

	"github.com/logrusorgru/aurora"
)

// Runes used for console display of each cell type.
const (
	WALL_RUNE   = 'W'
	TRACK_RUNE  = 'o'
	START_RUNE  = '-'
	FINISH_RUNE = '+'
)

// Rune returns the console rune of the cell type.
func (ck CellKind) Rune() rune {
	switch ck {
	case START:
		return START_RUNE
	case INSIDE:
		return TRACK_RUNE
	case FINISH:
		return FINISH_RUNE
	}
	return WALL_RUNE
}

// ShowGrid prints the track, for visual reference. Rows are printed top to bottom, which
// matches the grid's orientation (row 0 is the top), so unlike the state matrix no
// reverse iteration is needed.
func ShowGrid(w io.Writer, grid [][]CellKind, color bool) {
	au := aurora.NewAurora(color)
	for _, row := range grid {
		for _, cell := range row {
			r := string(cell.Rune())
			var v aurora.Value
			switch cell {
			case START:
				v = au.Blue(r)
			case INSIDE:
				v = au.White(r)
			case FINISH:
				v = au.Yellow(r)
			default:
				v = au.Green(r)
			}
			fmt.Fprintf(w, "%s ", v)
		}
		fmt.Fprintln(w)
	}
}

// ShowPath prints the track with the passed positions marked, e.g. a replay of the
// learned policy.
func ShowPath(w io.Writer, grid [][]CellKind, path []Position, color bool) {
	au := aurora.NewAurora(color)
	visited := make(map[Position]int, len(path))
	for i, p := range path {
		visited[p] = i
	}

	for y, row := range grid {
		for x, cell := range row {
			if _, ok := visited[Position{X: x, Y: y}]; ok {
				fmt.Fprintf(w, "%s ", au.Red("*"))
				continue
			}
			fmt.Fprintf(w, "%c ", cell.Rune())
		}
		fmt.Fprintln(w)
	}
}

// ShowValues prints a position-projected value function. Cells whose value is at or below
// the floor (unvisited, or off-road) are printed as a dash.
// Note that this truncates information, since the velocity sub-states are projected away;
// this just allows showing progress.
func ShowValues(w io.Writer, values [][]float64, floor float64) {
	total := 0.0
	for _, row := range values {
		fmt.Fprint(w, " ")
		for _, val := range row {
			if val <= floor {
				fmt.Fprintf(w, "%7s ", "-")
				continue
			}
			fmt.Fprintf(w, "%7.2f ", val)
			total += val
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Total: %.2f\n", total)
}
