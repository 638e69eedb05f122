package grid_world

import (
	"errors"
	"testing"

	. "racetrack/models"

	. "github.com/smartystreets/goconvey/convey"
)

func defaultConfig(seed int64) TrackConfig {
	return TrackConfig{
		Rows:      30,
		Cols:      30,
		MinWidth:  3,
		MinSpace:  4,
		MaxSpeedX: 5,
		Seed:      seed,
	}
}

var neighbors = []Position{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}}

// reachable returns every cell 4-connected to the seeds through cells satisfying ok.
func reachable(track *Track, seeds []Position, ok func(CellKind) bool) map[Position]bool {
	seen := map[Position]bool{}
	stack := append([]Position(nil), seeds...)
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[p] || !track.InBounds(p) || !ok(track.Cell(p)) {
			continue
		}
		seen[p] = true
		for _, n := range neighbors {
			stack = append(stack, Position{X: p.X + n.X, Y: p.Y + n.Y})
		}
	}
	return seen
}

func TestNewTrack(t *testing.T) {
	Convey("When the track config is validated", t, func() {
		Convey("Grids too small for the corridor are rejected", func() {
			cfg := defaultConfig(1)
			cfg.Rows = 8
			_, err := NewTrack(cfg)
			So(errors.Is(err, ErrGridTooSmall), ShouldBeTrue)

			cfg = defaultConfig(1)
			cfg.Cols = 10
			_, err = NewTrack(cfg)
			So(errors.Is(err, ErrGridTooSmall), ShouldBeTrue)
		})

		Convey("A corridor narrower than two cells is rejected", func() {
			cfg := defaultConfig(1)
			cfg.MinWidth = 1
			_, err := NewTrack(cfg)
			So(errors.Is(err, ErrGridTooSmall), ShouldBeTrue)
		})

		Convey("The smallest valid grid builds", func() {
			cfg := TrackConfig{MinWidth: 2, MinSpace: 0, MaxSpeedX: 5, Seed: 3}
			cfg.Rows = cfg.MinWidth + cfg.MinSpace + 7
			cfg.Cols = 2*cfg.MinWidth + cfg.MaxSpeedX + 3
			track, err := NewTrack(cfg)
			So(err, ShouldBeNil)
			So(track.Rows(), ShouldEqual, cfg.Rows)
			So(track.Cols(), ShouldEqual, cfg.Cols)
		})
	})

	Convey("When tracks are built twice from the same seed", t, func() {
		for seed := int64(0); seed < 25; seed++ {
			first, err := NewTrack(defaultConfig(seed))
			So(err, ShouldBeNil)
			second, err := NewTrack(defaultConfig(seed))
			So(err, ShouldBeNil)

			So(second.Grid(), ShouldResemble, first.Grid())
			So(second.FinishLine(), ShouldResemble, first.FinishLine())
			So(second.StartPositions(), ShouldResemble, first.StartPositions())
		}
	})

	Convey("When tracks are generated across seeds and shapes", t, func() {
		shapes := []TrackConfig{
			defaultConfig(0),
			{Rows: 15, Cols: 20, MinWidth: 2, MinSpace: 2, MaxSpeedX: 5},
			{Rows: 60, Cols: 45, MinWidth: 4, MinSpace: 6, MaxSpeedX: 5},
			{Rows: 12, Cols: 12, MinWidth: 2, MinSpace: 1, MaxSpeedX: 3},
		}

		for _, shape := range shapes {
			for seed := int64(0); seed < 20; seed++ {
				cfg := shape
				cfg.Seed = seed
				track, err := NewTrack(cfg)
				So(err, ShouldBeNil)
				grid := track.Grid()

				// Every road cell is connected to the start line.
				road := reachable(track, track.StartPositions(), CellKind.IsRoad)
				So(len(road), ShouldEqual, len(track.RoadPositions()))

				// No road touches the border.
				for y, row := range grid {
					for x, cell := range row {
						if y == 0 || x == 0 || y == len(grid)-1 || x == len(row)-1 {
							So(cell, ShouldEqual, OUTSIDE)
						}
					}
				}

				// Every outside cell connects to the border: no pockets inside the corridor.
				var border []Position
				for x := 0; x < track.Cols(); x++ {
					border = append(border, Position{X: x, Y: 0}, Position{X: x, Y: track.Rows() - 1})
				}
				for y := 0; y < track.Rows(); y++ {
					border = append(border, Position{X: 0, Y: y}, Position{X: track.Cols() - 1, Y: y})
				}
				outside := reachable(track, border, func(ck CellKind) bool { return ck == OUTSIDE })
				numOutside := track.Rows()*track.Cols() - len(track.RoadPositions())
				So(len(outside), ShouldEqual, numOutside)

				// Start cells are on the start row, with the finish in a single column.
				for _, p := range track.StartPositions() {
					So(track.Cell(p), ShouldEqual, START)
					So(p.Y, ShouldEqual, cfg.Rows-2)
				}
				finish := track.FinishLine()
				So(finish.A.X, ShouldEqual, cfg.Cols-1-cfg.MaxSpeedX)
				So(finish.B.X, ShouldEqual, finish.A.X)
				So(finish.B.Y-finish.A.Y, ShouldBeGreaterThanOrEqualTo, cfg.MinWidth)
				for y := finish.A.Y; y <= finish.B.Y; y++ {
					So(track.Cell(Position{X: finish.A.X, Y: y}), ShouldEqual, FINISH)
				}
			}
		}
	})

	Convey("When every crash-free move from the start line is explored", t, func() {
		track, err := NewTrack(defaultConfig(7))
		So(err, ShouldBeNil)
		bounds := Bounds{MinVX: 0, MaxVX: 5, MinVY: -5, MaxVY: 0}

		type state struct {
			p Position
			v Velocity
		}
		var queue []state
		seen := map[state]bool{}
		for _, p := range track.StartPositions() {
			queue = append(queue, state{p: p})
		}

		finished := false
		for len(queue) > 0 {
			s := queue[0]
			queue = queue[1:]
			if seen[s] {
				continue
			}
			seen[s] = true
			So(track.Cell(s.p).IsRoad(), ShouldBeTrue)

			for dvx := MIN_ACCELERATION; dvx <= MAX_ACCELERATION; dvx++ {
				for dvy := MIN_ACCELERATION; dvy <= MAX_ACCELERATION; dvy++ {
					v := s.v.Apply(Action{DVX: dvx, DVY: dvy})
					if !bounds.Contains(v) || v.IsZero() {
						continue
					}
					next := s.p.Add(v)
					if track.HasFinished(next, v) {
						finished = true
						continue
					}
					if track.CheckForCrash(s.p, v) {
						continue
					}
					queue = append(queue, state{p: next, v: v})
				}
			}
		}

		Convey("Every visited position is on the road and the finish is reachable", func() {
			So(finished, ShouldBeTrue)
		})
	})
}

func TestNewTrackFromGrid(t *testing.T) {
	Convey("When a track is built from a grid", t, func() {
		Convey("The debug track parses with its start line and finish column", func() {
			track := MustParseTrack(DebugTrack)
			So(len(track.StartPositions()), ShouldEqual, 7)
			So(track.FinishLine(), ShouldResemble, Segment{
				A: Position{X: 8, Y: 1},
				B: Position{X: 8, Y: 9},
			})
		})

		Convey("Finish cells in two columns are a malformed finish line", func() {
			grid, err := ParseTrack([]string{
				"WWWWW",
				"Wo++W",
				"W--WW",
			})
			So(err, ShouldBeNil)
			_, err = NewTrackFromGrid(grid)
			So(errors.Is(err, ErrMalformedFinish), ShouldBeTrue)
		})

		Convey("A grid without start cells is rejected", func() {
			grid, err := ParseTrack([]string{
				"WWWW",
				"Wo+W",
				"WWWW",
			})
			So(err, ShouldBeNil)
			_, err = NewTrackFromGrid(grid)
			So(errors.Is(err, ErrNoStart), ShouldBeTrue)
		})

		Convey("Unknown runes fail to parse", func() {
			_, err := ParseTrack([]string{"W?W"})
			So(err, ShouldNotBeNil)
		})

		Convey("The grid is copied on the way in and out", func() {
			grid, _ := ParseTrack(DebugTrack)
			track, err := NewTrackFromGrid(grid)
			So(err, ShouldBeNil)
			grid[1][1] = OUTSIDE
			So(track.Cell(Position{X: 1, Y: 1}), ShouldEqual, INSIDE)
			out := track.Grid()
			out[1][2] = OUTSIDE
			So(track.Cell(Position{X: 2, Y: 1}), ShouldEqual, INSIDE)
		})
	})
}
