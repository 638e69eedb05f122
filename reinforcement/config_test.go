package reinforcement

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"racetrack/grid_world"

	. "github.com/smartystreets/goconvey/convey"
)

const testYaml = `
kind: racetrack
def:
  track:
    rows: 20
    cols: 25
    min_width: 2
    min_space: 3
    seed: 42
  training:
    episodes: 500
    epsilon: 0.2
    delta: 0.05
    timestep_reward: -1
    update_state_values_rule: first_visit
    max_speed_x: 4
    min_speed_y: -3
    max_episode_length: 300
    start_velocity: random_vertical
    truncated_penalty: false
  training_deadline:
    duration: 90s
  sweep:
    how: cross
    params:
      epsilon: [0.1, 0.3]
`

func writeConfig(dir, content string) string {
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		panic(err)
	}
	return path
}

func TestFromYaml(t *testing.T) {
	Convey("When loading a config file", t, func() {
		cfg, err := FromYaml(writeConfig(t.TempDir(), testYaml))
		So(err, ShouldBeNil)

		Convey("The file's values are decoded through both layers", func() {
			So(cfg.Track.Rows, ShouldEqual, 20)
			So(cfg.Track.Cols, ShouldEqual, 25)
			So(cfg.Track.MinWidth, ShouldEqual, 2)
			So(cfg.Track.Seed, ShouldEqual, 42)
			So(cfg.Training.Episodes, ShouldEqual, 500)
			So(cfg.Training.Epsilon, ShouldEqual, 0.2)
			So(cfg.Training.UpdateRule, ShouldEqual, "first_visit")
			So(cfg.Training.StartVelocity, ShouldEqual, START_RANDOM_VERTICAL)
			So(cfg.Training.TruncatedPenalty, ShouldBeFalse)
			So(cfg.Sweep.How, ShouldEqual, SWEEP_CROSS)
			So(cfg.Sweep.Params["epsilon"], ShouldHaveLength, 2)
		})

		Convey("Missing keys take their defaults", func() {
			So(cfg.Training.MinSpeedX, ShouldEqual, 0)
			So(cfg.Training.MaxSpeedY, ShouldEqual, 0)
			So(cfg.Training.Sentinel, ShouldEqual, DEFAULT_SENTINEL)
			So(cfg.Output.Dir, ShouldEqual, "runs")
			So(cfg.Server.Port, ShouldEqual, "8080")
		})

		Convey("The track's horizontal margin follows the velocity bounds", func() {
			So(cfg.Track.MaxSpeedX, ShouldEqual, 4)
			So(cfg.Bounds().MinVY, ShouldEqual, -3)
		})

		Convey("The training deadline bounds the context", func() {
			ctx, cancel, err := cfg.WithTrainingDeadline(context.Background())
			So(err, ShouldBeNil)
			defer cancel()
			deadline, ok := ctx.Deadline()
			So(ok, ShouldBeTrue)
			So(time.Until(deadline), ShouldBeLessThanOrEqualTo, 90*time.Second)
		})
	})

	Convey("When the config file is missing", t, func() {
		_, err := FromYaml(filepath.Join(t.TempDir(), "nope.yaml"))
		So(err, ShouldNotBeNil)
	})

	Convey("When only defaults are given", t, func() {
		cfg, err := Decode(DefaultViper())
		So(err, ShouldBeNil)
		So(cfg.Training.UpdateRule, ShouldEqual, "every_visit")
		So(cfg.Training.TruncatedPenalty, ShouldBeTrue)
		So(cfg.Track.MaxSpeedX, ShouldEqual, 5)

		ctx, cancel, err := cfg.WithTrainingDeadline(context.Background())
		So(err, ShouldBeNil)
		defer cancel()
		_, ok := ctx.Deadline()
		So(ok, ShouldBeFalse)
	})
}

func TestValidate(t *testing.T) {
	Convey("When validating configs", t, func() {
		decode := func(key string, val interface{}) error {
			vp := DefaultViper()
			vp.Set(key, val)
			_, err := Decode(vp)
			return err
		}

		Convey("An unknown update rule is rejected", func() {
			err := decode("def.training.update_state_values_rule", "most_recent")
			So(errors.Is(err, ErrUnknownRule), ShouldBeTrue)
		})

		Convey("Out of range probabilities are rejected", func() {
			So(errors.Is(decode("def.training.epsilon", 1.5), ErrInvalidConfig), ShouldBeTrue)
			So(errors.Is(decode("def.training.delta", -0.1), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Non-negative rewards are rejected", func() {
			So(errors.Is(decode("def.training.timestep_reward", 0), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Velocity ranges must contain zero", func() {
			So(errors.Is(decode("def.training.min_speed_x", 1), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Unknown start velocity modes are rejected", func() {
			So(errors.Is(decode("def.training.start_velocity", "sideways"), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Unparseable deadlines are rejected", func() {
			So(errors.Is(decode("def.training_deadline", map[string]interface{}{"duration": "soon"}), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Documents of another kind are rejected", func() {
			So(errors.Is(decode("kind", "tabular"), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Grids too small for the track are rejected", func() {
			So(errors.Is(decode("def.track.rows", 5), grid_world.ErrGridTooSmall), ShouldBeTrue)
		})
	})
}

func TestParseUpdateRule(t *testing.T) {
	Convey("When parsing update rule names", t, func() {
		for _, rule := range []UpdateRule{FIRST_VISIT, EVERY_VISIT, LAST_VISIT, LAST_VISIT_BEST} {
			parsed, err := ParseUpdateRule(rule.String())
			So(err, ShouldBeNil)
			So(parsed, ShouldEqual, rule)
		}

		parsed, err := ParseUpdateRule(" Every_Visit ")
		So(err, ShouldBeNil)
		So(parsed, ShouldEqual, EVERY_VISIT)

		_, err = ParseUpdateRule("exploring_starts")
		So(errors.Is(err, ErrUnknownRule), ShouldBeTrue)
	})
}
