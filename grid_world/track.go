// grid_world builds the racetrack: a maze-like corridor carved by two randomized boundary
// walks and a flood fill, and answers the crash and finish queries the episodes rely on.
package grid_world

import (
	"errors"
	"fmt"
	"math/rand"

	. "racetrack/models"
)

var (
	// ErrGridTooSmall is returned when the grid cannot hold the configured corridor width,
	// turning space, and finish margin.
	ErrGridTooSmall = errors.New("grid too small for track parameters")
	// ErrMalformedFinish indicates the finish cells do not form a vertical segment.
	ErrMalformedFinish = errors.New("malformed finish line")
	// ErrNoStart indicates a grid without start cells.
	ErrNoStart = errors.New("grid has no start cells")
	// ErrOffRoad indicates a query from a position that is not on the road, which
	// only a generation bug can produce.
	ErrOffRoad = errors.New("position is off road")
)

// TrackConfig holds the track construction parameters.
type TrackConfig struct {
	Rows int `yaml:"rows"`
	Cols int `yaml:"cols"`
	// MinWidth is the minimum corridor width between the two walls.
	MinWidth int `yaml:"min_width"`
	// MinSpace is the number of rows kept free above the right wall for turning.
	MinSpace int `yaml:"min_space"`
	// MaxSpeedX is the width of the margin reserved right of the finish column, so
	// that the finish can be crossed without leaving the grid.
	MaxSpeedX int   `yaml:"max_speed_x"`
	Seed      int64 `yaml:"seed"`
}

// Validate checks that the grid is large enough for the walks to terminate
// with a closed corridor.
func (cfg TrackConfig) Validate() error {
	if cfg.MinWidth < 2 {
		return fmt.Errorf("%w: min width %d must be at least 2", ErrGridTooSmall, cfg.MinWidth)
	}
	if cfg.MinSpace < 0 {
		return fmt.Errorf("%w: min space %d is negative", ErrGridTooSmall, cfg.MinSpace)
	}
	if cfg.MaxSpeedX < 1 {
		return fmt.Errorf("%w: max horizontal speed %d must be positive", ErrGridTooSmall, cfg.MaxSpeedX)
	}
	if minRows := cfg.MinWidth + cfg.MinSpace + 7; cfg.Rows < minRows {
		return fmt.Errorf("%w: %d rows, need %d", ErrGridTooSmall, cfg.Rows, minRows)
	}
	if minCols := 2*cfg.MinWidth + cfg.MaxSpeedX + 3; cfg.Cols < minCols {
		return fmt.Errorf("%w: %d cols, need %d", ErrGridTooSmall, cfg.Cols, minCols)
	}
	return nil
}

// Segment is a line segment between two integer points.
type Segment struct {
	A, B Position
}

// Track is an immutable grid plus the start positions and finish line derived from it.
type Track struct {
	grid   [][]CellKind
	starts []Position
	finish Segment
}

// NewTrack generates a track per the passed config. The same config (and seed) always
// yields the same track.
func NewTrack(cfg TrackConfig) (*Track, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := newBuilder(cfg)
	b.rightWalk()
	b.leftWalk()
	b.paintStart()
	b.floodFill(Position{X: b.colL + 1, Y: b.bottom - 1})

	finish, err := finishLine(b.ends)
	if err != nil {
		return nil, err
	}

	return &Track{
		grid:   b.grid,
		starts: b.starts,
		finish: finish,
	}, nil
}

// NewTrackFromGrid builds a track from an existing grid, such as one read back from a grid
// file. The start positions are the START cells and the finish line spans the FINISH cells,
// which must share a single column.
func NewTrackFromGrid(grid [][]CellKind) (*Track, error) {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil, fmt.Errorf("%w: empty grid", ErrGridTooSmall)
	}

	cp := copyGrid(grid)
	var starts, ends []Position
	for y, row := range cp {
		if len(row) != len(cp[0]) {
			return nil, fmt.Errorf("ragged grid: row %d has %d cols, want %d", y, len(row), len(cp[0]))
		}
		for x, cell := range row {
			switch cell {
			case START:
				starts = append(starts, Position{X: x, Y: y})
			case FINISH:
				ends = append(ends, Position{X: x, Y: y})
			}
		}
	}
	if len(starts) == 0 {
		return nil, ErrNoStart
	}

	finish, err := finishLine(ends)
	if err != nil {
		return nil, err
	}

	return &Track{
		grid:   cp,
		starts: starts,
		finish: finish,
	}, nil
}

// finishLine returns the vertical segment spanned by the finish end-positions.
func finishLine(ends []Position) (seg Segment, err error) {
	if len(ends) == 0 {
		err = fmt.Errorf("%w: no finish cells", ErrMalformedFinish)
		return
	}

	x := ends[0].X
	minY, maxY := ends[0].Y, ends[0].Y
	for _, p := range ends[1:] {
		if p.X != x {
			err = fmt.Errorf("%w: finish cells span columns %d and %d", ErrMalformedFinish, x, p.X)
			return
		}
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}

	seg = Segment{
		A: Position{X: x, Y: minY},
		B: Position{X: x, Y: maxY},
	}
	return
}

// Grid returns a copy of the grid, indexed [row][col].
func (t *Track) Grid() [][]CellKind {
	return copyGrid(t.grid)
}

func (t *Track) Rows() int {
	return len(t.grid)
}

func (t *Track) Cols() int {
	return len(t.grid[0])
}

// InBounds reports whether p lies on the grid.
func (t *Track) InBounds(p Position) bool {
	return p.Y >= 0 && p.Y < len(t.grid) && p.X >= 0 && p.X < len(t.grid[0])
}

// Cell returns the cell type at p; off-grid positions are OUTSIDE.
func (t *Track) Cell(p Position) CellKind {
	if !t.InBounds(p) {
		return OUTSIDE
	}
	return t.grid[p.Y][p.X]
}

// StartPositions returns the positions of the start line.
func (t *Track) StartPositions() []Position {
	return append([]Position(nil), t.starts...)
}

// FinishLine returns the finish segment, ordered top to bottom.
func (t *Track) FinishLine() Segment {
	return t.finish
}

// RoadPositions returns every non-OUTSIDE position, row-major.
func (t *Track) RoadPositions() (positions []Position) {
	for y, row := range t.grid {
		for x, cell := range row {
			if cell.IsRoad() {
				positions = append(positions, Position{X: x, Y: y})
			}
		}
	}
	return
}

func copyGrid(grid [][]CellKind) [][]CellKind {
	cp := make([][]CellKind, len(grid))
	for i, row := range grid {
		cp[i] = append([]CellKind(nil), row...)
	}
	return cp
}

// builder carries the state of a single track generation.
type builder struct {
	cfg  TrackConfig
	grid [][]CellKind
	// bottom is the start row; the last grid row is left as an outside buffer.
	bottom int
	// colL is the left wall's column on the start line, colR the right wall's.
	colL, colR int
	// maxX is the finish column and maxHeight the row at which the right wall reaches it.
	maxX, maxHeight int
	// rightRowCol is the leftmost right-wall column per row, rightColRow the topmost
	// right-wall row per column. Both are -1 where the right wall does not pass.
	rightRowCol []int
	rightColRow []int
	starts      []Position
	ends        []Position
}

func newBuilder(cfg TrackConfig) *builder {
	grid := make([][]CellKind, cfg.Rows)
	for y := range grid {
		grid[y] = make([]CellKind, cfg.Cols)
	}

	b := &builder{
		cfg:         cfg,
		grid:        grid,
		bottom:      cfg.Rows - 2,
		colL:        1,
		maxX:        cfg.Cols - 1 - cfg.MaxSpeedX,
		rightRowCol: make([]int, cfg.Rows),
		rightColRow: make([]int, cfg.Cols),
	}
	for i := range b.rightRowCol {
		b.rightRowCol[i] = -1
	}
	for i := range b.rightColRow {
		b.rightColRow[i] = -1
	}
	return b
}

func (b *builder) set(p Position, kind CellKind) {
	b.grid[p.Y][p.X] = kind
}

func (b *builder) markRight(p Position) {
	b.set(p, INSIDE)
	if b.rightRowCol[p.Y] == -1 || p.X < b.rightRowCol[p.Y] {
		b.rightRowCol[p.Y] = p.X
	}
	if b.rightColRow[p.X] == -1 || p.Y < b.rightColRow[p.X] {
		b.rightColRow[p.X] = p.Y
	}
}

// rightWalk traces the right/lower wall from the start line up and right to the finish
// column. Moving up requires enough vertical room above for the corridor and the turn;
// otherwise the walk is forced right.
func (b *builder) rightWalk() {
	rng := rand.New(rand.NewSource(b.cfg.Seed))
	b.colR = b.colL + b.cfg.MinWidth + rng.Intn(b.cfg.MinWidth+1)

	topRoom := 1 + b.cfg.MinWidth + b.cfg.MinSpace
	cur := Position{X: b.colR, Y: b.bottom}
	b.markRight(cur)
	for cur.X < b.maxX {
		if cur.Y-1 >= topRoom && rng.Intn(2) == 0 {
			cur.Y--
		} else {
			cur.X++
		}
		b.markRight(cur)
	}

	b.set(cur, FINISH)
	b.ends = append(b.ends, cur)
	b.maxHeight = cur.Y
}

// rightAllowed reports whether the left wall may step right from cur without narrowing the
// corridor below the minimum width, horizontally on the same row or vertically against
// the right wall's top cell in the next column.
func (b *builder) rightAllowed(cur Position) bool {
	next := cur.X + 1
	if top := b.rightColRow[next]; top != -1 && top-cur.Y < b.cfg.MinWidth {
		return false
	}
	if left := b.rightRowCol[cur.Y]; left != -1 && left-next < b.cfg.MinWidth {
		return false
	}
	return true
}

// leftWalk traces the left/upper wall, the mirror of the right walk, subject to the width
// constraints against the right wall. The column where it terminates becomes the finish.
func (b *builder) leftWalk() {
	rng := rand.New(rand.NewSource(b.cfg.Seed))

	b.set(Position{X: b.colL, Y: b.bottom}, INSIDE)
	b.set(Position{X: b.colL, Y: b.bottom - 1}, INSIDE)
	cur := Position{X: b.colL, Y: b.bottom - 2}
	b.set(cur, INSIDE)

	for steps := 0; cur.X < b.maxX; steps++ {
		canUp := cur.Y-1 >= 1
		up := false
		switch {
		case steps < 2 && canUp:
			up = true
		case !canUp:
			up = false
		case !b.rightAllowed(cur):
			up = true
		case b.maxHeight-cur.Y >= 2*b.cfg.MinWidth:
			up = false
		default:
			up = rng.Intn(2) == 0
		}

		if up {
			cur.Y--
		} else {
			cur.X++
		}
		b.set(cur, INSIDE)
	}

	for y := cur.Y; y <= b.maxHeight; y++ {
		p := Position{X: b.maxX, Y: y}
		b.set(p, FINISH)
		if y != b.maxHeight {
			b.ends = append(b.ends, p)
		}
	}
}

// paintStart marks the start line between the two walls' start columns.
func (b *builder) paintStart() {
	for x := b.colL; x <= b.colR; x++ {
		p := Position{X: x, Y: b.bottom}
		b.set(p, START)
		b.starts = append(b.starts, p)
	}
}

// floodFill converts every OUTSIDE cell 4-connected to seed into INSIDE, stopping at road
// cells. An explicit stack is used since corridors on large grids are deep.
func (b *builder) floodFill(seed Position) {
	stack := []Position{seed}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.Y < 0 || p.Y >= len(b.grid) || p.X < 0 || p.X >= len(b.grid[0]) {
			continue
		}
		if b.grid[p.Y][p.X] != OUTSIDE {
			continue
		}

		b.grid[p.Y][p.X] = INSIDE
		stack = append(stack,
			Position{X: p.X + 1, Y: p.Y},
			Position{X: p.X - 1, Y: p.Y},
			Position{X: p.X, Y: p.Y + 1},
			Position{X: p.X, Y: p.Y - 1},
		)
	}
}
