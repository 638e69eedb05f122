package cell_views

import (
	"testing"

	. "racetrack/models"
	"racetrack/reinforcement"
	"racetrack/server/fastview"

	. "github.com/smartystreets/goconvey/convey"
)

// testSnapshot is a 3x2 track with a single visited cell at x=1, y=1.
func testSnapshot() reinforcement.ValueSnapshot {
	best := Velocity{VX: 1, VY: -1}
	return reinforcement.ValueSnapshot{
		Episode: 3,
		Grid: [][]CellKind{
			{OUTSIDE, INSIDE, FINISH},
			{START, INSIDE, OUTSIDE},
		},
		Values: [][]float64{
			{-10, -10, -10},
			{-10, -3, -10},
		},
		Policy: [][]*Velocity{
			{nil, nil, nil},
			{nil, &best, nil},
		},
		Floor: -10,
	}
}

func findUpdate(updates []fastview.EleUpdate, id string) (fastview.EleUpdate, bool) {
	for _, update := range updates {
		if update.EleId == id {
			return update, true
		}
	}
	return fastview.EleUpdate{}, false
}

func opValue(update fastview.EleUpdate, key string) string {
	for _, op := range update.Ops {
		if op.Key == key {
			return op.Value
		}
	}
	return ""
}

func TestConvert(t *testing.T) {
	Convey("When converting a snapshot to cells", t, func() {
		cells := Convert(testSnapshot())

		Convey("Cells are indexed by x then y", func() {
			So(cells, ShouldHaveLength, 3)
			So(cells[0], ShouldHaveLength, 2)
			So(cells[2][0].X, ShouldEqual, 2)
			So(cells[2][0].Y, ShouldEqual, 0)
			So(cells[2][0].Fill, ShouldEqual, "lightyellow")
			So(cells[0][1].Fill, ShouldEqual, "lightblue")
		})

		Convey("Visited cells carry their value and policy arrow", func() {
			cell := cells[1][1]
			So(cell.Visited, ShouldBeTrue)
			So(cell.Road, ShouldBeTrue)
			So(cell.Max, ShouldEqual, -3)
			So(cell.PolicyArrowRotation, ShouldEqual, 45)
			So(cell.PolicyArrowScale, ShouldEqual, 1)
		})

		Convey("Other cells hold the floor", func() {
			So(cells[0][0].Road, ShouldBeFalse)
			So(cells[0][0].Fill, ShouldEqual, "lightgreen")
			So(cells[1][0].Visited, ShouldBeFalse)
			So(cells[1][0].Max, ShouldEqual, -10)
		})

		Convey("Empty snapshots yield no cells", func() {
			So(Convert(reinforcement.ValueSnapshot{}), ShouldBeEmpty)
		})
	})
}

func TestArrows(t *testing.T) {
	Convey("Policy arrows rotate clockwise from straight up", t, func() {
		So(getDegrees(Velocity{VX: 0, VY: -3}), ShouldEqual, 0)
		So(getDegrees(Velocity{VX: 2, VY: 0}), ShouldEqual, 90)
		So(getDegrees(Velocity{VX: 0, VY: 1}), ShouldEqual, 180)
		So(getDegrees(Velocity{VX: -1, VY: 0}), ShouldEqual, -90)
		So(getDegrees(Velocity{}), ShouldEqual, 0)
		So(getScale(Velocity{VX: 3, VY: -4}), ShouldEqual, 5)
	})
}

func TestFill(t *testing.T) {
	Convey("Surface fills run from blue to red", t, func() {
		So(getRGBFill(-10, -10, -3), ShouldEqual, "rgb(0%,0%,100%)")
		So(getRGBFill(-3, -10, -3), ShouldEqual, "rgb(100%,0%,0%)")
		So(getRGBFill(-5, -5, -5), ShouldEqual, "rgb(50%,0%,50%)")
	})
}

func TestValuesGrid(t *testing.T) {
	Convey("When the values grid is updated", t, func() {
		cells := Convert(testSnapshot())
		done := make(chan struct{})
		defer close(done)

		input := make(chan [][]Cell)
		vg := NewValuesGrid(done, cells, input)
		go func() { input <- cells }()
		updates := <-vg.Updates()

		Convey("Only road cells are updated, each with a value and an arrow", func() {
			So(updates, ShouldHaveLength, 8)
			_, ok := findUpdate(updates, "0-0-value-text")
			So(ok, ShouldBeFalse)
		})

		Convey("Visited cells show their value and arrow", func() {
			text, ok := findUpdate(updates, "1-1-value-text")
			So(ok, ShouldBeTrue)
			So(opValue(text, "textContent"), ShouldEqual, "-3")

			arrow, ok := findUpdate(updates, "1-1-policy-arrow")
			So(ok, ShouldBeTrue)
			So(opValue(arrow, "transform"), ShouldEqual, "rotate(45)")
			So(opValue(arrow, "opacity"), ShouldEqual, "1")
		})

		Convey("Unvisited cells are blank", func() {
			text, _ := findUpdate(updates, "1-0-value-text")
			So(opValue(text, "textContent"), ShouldEqual, "")
			arrow, _ := findUpdate(updates, "1-0-policy-arrow")
			So(opValue(arrow, "opacity"), ShouldEqual, "0")
		})
	})
}

func TestValueFunction(t *testing.T) {
	Convey("When the value function is updated", t, func() {
		cells := Convert(testSnapshot())
		vf := NewValueFunction(nil, cells, make(chan [][]Cell))
		updates := vf.onUpdate(cells)

		Convey("There is a polygon per patch of four cells, plus the group transform", func() {
			So(updates, ShouldHaveLength, 3)
			group, ok := findUpdate(updates, "valuefunction-group")
			So(ok, ShouldBeTrue)
			So(opValue(group, "transform"), ShouldStartWith, "scale(")

			poly, ok := findUpdate(updates, "0-0-value-polygon")
			So(ok, ShouldBeTrue)
			So(opValue(poly, "points"), ShouldNotBeEmpty)
		})

		Convey("Degenerate grids yield no updates", func() {
			So(vf.onUpdate(cells[:1]), ShouldBeEmpty)
		})
	})
}
