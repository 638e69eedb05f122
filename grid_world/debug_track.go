package grid_world

import (
	"fmt"

	. "racetrack/models"
)

// DebugTrack is a small hand-written track for development: the start line is the bottom
// row and the finish is the rightmost road column, which the start row also reaches.
var DebugTrack = []string{
	"WWWWWWWWWW",
	"Wooooooo+W",
	"Wooooooo+W",
	"Wooooooo+W",
	"Wooooooo+W",
	"Wooooooo+W",
	"Wooooooo+W",
	"Wooooooo+W",
	"Wooooooo+W",
	"W-------+W",
}

// ParseTrack converts a track drawn with the console runes into a grid. The orientation is
// as printed: the first string is the top row.
func ParseTrack(track []string) (grid [][]CellKind, err error) {
	grid = make([][]CellKind, len(track))
	for y, line := range track {
		grid[y] = make([]CellKind, 0, len(line))
		for x, r := range line {
			var kind CellKind
			switch r {
			case WALL_RUNE:
				kind = OUTSIDE
			case TRACK_RUNE:
				kind = INSIDE
			case START_RUNE:
				kind = START
			case FINISH_RUNE:
				kind = FINISH
			default:
				return nil, fmt.Errorf("unknown track rune %q at (%d,%d)", r, x, y)
			}
			grid[y] = append(grid[y], kind)
		}
	}
	return
}

// MustParseTrack is ParseTrack for static tracks known to be valid.
func MustParseTrack(track []string) *Track {
	grid, err := ParseTrack(track)
	if err != nil {
		panic(err)
	}
	t, err := NewTrackFromGrid(grid)
	if err != nil {
		panic(err)
	}
	return t
}
