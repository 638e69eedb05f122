package reinforcement

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/viper"
	. "github.com/smartystreets/goconvey/convey"
)

func smallBase() *viper.Viper {
	vp := DefaultViper()
	vp.Set("def.track.rows", 15)
	vp.Set("def.track.cols", 15)
	vp.Set("def.training.episodes", 15)
	vp.Set("def.training.max_episode_length", 200)
	return vp
}

func TestPlanSweep(t *testing.T) {
	Convey("When planning a sweep", t, func() {
		params := map[string][]interface{}{
			"epsilon": {0.2, 0.3},
			"delta":   {0.0},
		}

		Convey("One-vs-base runs the base and then each value alone", func() {
			runs, err := PlanSweep(smallBase(), SweepConfig{How: SWEEP_ONE_VS_BASE, Params: params})
			So(err, ShouldBeNil)
			So(runs, ShouldHaveLength, 4)

			So(runs[0].Name, ShouldEqual, "base")
			So(runs[0].Config.Training.Epsilon, ShouldEqual, 0.1)
			So(runs[1].Name, ShouldEqual, "delta=0")
			So(runs[1].Config.Training.Delta, ShouldEqual, 0)
			So(runs[1].Config.Training.Epsilon, ShouldEqual, 0.1)
			So(runs[3].Name, ShouldEqual, "epsilon=0.3")
			So(runs[3].Config.Training.Epsilon, ShouldEqual, 0.3)
			So(runs[3].Config.Training.Delta, ShouldEqual, 0.1)
			So(runs[3].Config.Training.Episodes, ShouldEqual, 15)
		})

		Convey("Cross runs every combination", func() {
			runs, err := PlanSweep(smallBase(), SweepConfig{How: SWEEP_CROSS, Params: params})
			So(err, ShouldBeNil)
			So(runs, ShouldHaveLength, 2)
			So(runs[0].Name, ShouldEqual, "delta=0,epsilon=0.2")
			So(runs[1].Config.Training.Delta, ShouldEqual, 0)
			So(runs[1].Config.Training.Epsilon, ShouldEqual, 0.3)
		})

		Convey("Dotted params address other sections", func() {
			runs, err := PlanSweep(smallBase(), SweepConfig{
				How:    SWEEP_ONE_VS_BASE,
				Params: map[string][]interface{}{"track.min_width": {2}},
			})
			So(err, ShouldBeNil)
			So(runs[1].Config.Track.MinWidth, ShouldEqual, 2)
		})

		Convey("Invalid overrides fail the whole plan", func() {
			_, err := PlanSweep(smallBase(), SweepConfig{
				How:    SWEEP_CROSS,
				Params: map[string][]interface{}{"epsilon": {0.5, 2.0}},
			})
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Unknown modes are rejected", func() {
			_, err := PlanSweep(smallBase(), SweepConfig{How: "grid"})
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestRunSweep(t *testing.T) {
	Convey("When running a sweep", t, func() {
		runs, err := PlanSweep(smallBase(), SweepConfig{
			How:    SWEEP_ONE_VS_BASE,
			Params: map[string][]interface{}{"epsilon": {0.05, 0.5}},
		})
		So(err, ShouldBeNil)

		results, err := RunSweep(context.Background(), runs, 2)
		So(err, ShouldBeNil)
		So(results, ShouldHaveLength, 3)

		for i, res := range results {
			So(res.Run.Name, ShouldEqual, runs[i].Name)
			So(res.Returns, ShouldHaveLength, 15)
			So(res.Runtime, ShouldBeGreaterThan, 0)
			So(res.AverageReturn(), ShouldBeLessThan, 0)

			_, ok := res.LastAverage(100)
			So(ok, ShouldBeFalse)
			last, ok := res.LastAverage(5)
			So(ok, ShouldBeTrue)
			So(last, ShouldEqual, mean(res.Returns[10:]))
		}
	})

	Convey("When the sweep is cancelled", t, func() {
		runs, err := PlanSweep(smallBase(), SweepConfig{How: SWEEP_ONE_VS_BASE})
		So(err, ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = RunSweep(ctx, runs, 1)
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}
