package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"racetrack/grid_world"
	. "racetrack/models"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// CONFIG_KIND is the only config document kind understood by this app.
const CONFIG_KIND = "racetrack"

var (
	// ErrInvalidConfig wraps all configuration validation failures.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrUnknownRule is returned for value-update rule names other than the four supported.
	ErrUnknownRule = errors.New("unknown update rule")
)

type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// TrainingConfig encodes the track, the algorithmic and training parameters, and the
// app's outer surfaces (artifact output, sweeps, server) outside of code.
// Keys are snake_case: viper lower-cases every key it reads, so camelCase keys would
// not survive the round trip into the yaml tags below.
type TrainingConfig struct {
	Track    grid_world.TrackConfig `yaml:"track"`
	Training HyperParameters        `yaml:"training"`
	// TrainingDeadline is a fixed duration describing when to stop training early.
	TrainingDeadline map[string]string `yaml:"training_deadline"`
	Output           OutputConfig      `yaml:"output"`
	Sweep            SweepConfig       `yaml:"sweep"`
	Server           ServerConfig      `yaml:"server"`
}

// HyperParameters holds the standard MC control params: episode count, the
// exploration/failure probabilities, rewards, velocity bounds, and the update rule.
type HyperParameters struct {
	Episodes int `yaml:"episodes"`
	// Epsilon is the probability of choosing a random action.
	Epsilon float64 `yaml:"epsilon"`
	// Delta is the probability of the velocity not updating (a forced no-op).
	Delta            float64 `yaml:"delta"`
	StepReward       float64 `yaml:"timestep_reward"`
	UpdateRule       string  `yaml:"update_state_values_rule"`
	MinSpeedX        int     `yaml:"min_speed_x"`
	MaxSpeedX        int     `yaml:"max_speed_x"`
	MinSpeedY        int     `yaml:"min_speed_y"`
	MaxSpeedY        int     `yaml:"max_speed_y"`
	MaxEpisodeLength int     `yaml:"max_episode_length"`
	StartVelocity    string  `yaml:"start_velocity"`
	Sentinel         float64 `yaml:"sentinel"`
	// TruncatedPenalty folds the sentinel into every state of a truncated episode.
	TruncatedPenalty bool  `yaml:"truncated_penalty"`
	Seed             int64 `yaml:"seed"`
	ProgressEvery    int   `yaml:"progress_every"`
}

type OutputConfig struct {
	Dir             string `yaml:"dir"`
	LogTrajectories bool   `yaml:"log_trajectories"`
	// LogEvery logs every n-th episode's trajectory.
	LogEvery int  `yaml:"log_every"`
	Report   bool `yaml:"report"`
}

// SweepConfig lists training parameters to try:
// "one_vs_base" varies each param alone against the base config, "cross" runs the
// Cartesian product.
type SweepConfig struct {
	How     string                   `yaml:"how"`
	Params  map[string][]interface{} `yaml:"params"`
	Workers int                      `yaml:"workers"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	// PublishEvery is the number of episodes between view updates.
	PublishEvery int `yaml:"publish_every"`
}

// setDefaults registers the values used for any key missing from the config file.
func setDefaults(vp *viper.Viper) {
	vp.SetDefault("kind", CONFIG_KIND)
	defaults := map[string]interface{}{
		"track.rows":                        30,
		"track.cols":                        30,
		"track.min_width":                   3,
		"track.min_space":                   4,
		"track.seed":                        0,
		"training.episodes":                 10000,
		"training.epsilon":                  0.1,
		"training.delta":                    0.1,
		"training.timestep_reward":          -1.0,
		"training.update_state_values_rule": "every_visit",
		"training.min_speed_x":              0,
		"training.max_speed_x":              5,
		"training.min_speed_y":              -5,
		"training.max_speed_y":              0,
		"training.max_episode_length":       1000,
		"training.start_velocity":           START_ZERO,
		"training.sentinel":                 DEFAULT_SENTINEL,
		"training.truncated_penalty":        true,
		"training.seed":                     1,
		"training.progress_every":           1000,
		"output.dir":                        "runs",
		"output.log_trajectories":           true,
		"output.log_every":                  100,
		"output.report":                     true,
		"sweep.how":                         SWEEP_ONE_VS_BASE,
		"sweep.workers":                     4,
		"server.host":                       "",
		"server.port":                       "8080",
		"server.publish_every":              100,
	}
	for key, val := range defaults {
		vp.SetDefault("def."+key, val)
	}
}

// LoadViper reads the yaml config at @path into a fresh viper instance.
// FUTURE: a lesson learned from viper is that it doesn't seem very friendly toward multiple
// configs, hence every caller gets its own instance rather than the package global.
func LoadViper(path string) (*viper.Viper, error) {
	vp := viper.New()
	setDefaults(vp)
	vp.SetConfigType("yaml")
	vp.SetConfigFile(path)
	if err := vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return vp, nil
}

// DefaultViper returns a viper instance holding only the defaults.
func DefaultViper() *viper.Viper {
	vp := viper.New()
	setDefaults(vp)
	return vp
}

// Decode converts viper's settings into a TrainingConfig. Viper decodes the outer
// kind/def envelope; the def is then re-serialized and decoded by yaml, which respects the
// inner struct tags.
func Decode(vp *viper.Viper) (*TrainingConfig, error) {
	outerConfig := &OuterConfig{}
	if err := vp.Unmarshal(outerConfig); err != nil {
		return nil, err
	}
	if outerConfig.Kind != CONFIG_KIND {
		return nil, fmt.Errorf("%w: kind %q, want %q", ErrInvalidConfig, outerConfig.Kind, CONFIG_KIND)
	}

	spec, err := yaml.Marshal(outerConfig.Def)
	if err != nil {
		return nil, err
	}

	innerConfig := &TrainingConfig{}
	if err = yaml.Unmarshal(spec, innerConfig); err != nil {
		return nil, err
	}

	innerConfig.Track.MaxSpeedX = innerConfig.Bounds().MaxSpeedX()
	if err = innerConfig.Validate(); err != nil {
		return nil, err
	}
	return innerConfig, nil
}

// FromYaml loads and validates the config at @path.
func FromYaml(path string) (*TrainingConfig, error) {
	vp, err := LoadViper(path)
	if err != nil {
		return nil, err
	}
	return Decode(vp)
}

// Validate reports the first configuration error, before any simulation runs.
func (cfg *TrainingConfig) Validate() error {
	hp := cfg.Training
	if _, err := ParseUpdateRule(hp.UpdateRule); err != nil {
		return err
	}
	_, cancel, err := cfg.WithTrainingDeadline(context.Background())
	if err != nil {
		return fmt.Errorf("%w: training deadline: %v", ErrInvalidConfig, err)
	}
	cancel()

	checks := []struct {
		failed bool
		msg    string
	}{
		{hp.Episodes < 0, "episodes must be non-negative"},
		{hp.Epsilon < 0 || hp.Epsilon > 1, "epsilon must be within [0,1]"},
		{hp.Delta < 0 || hp.Delta > 1, "delta must be within [0,1]"},
		{hp.StepReward >= 0, "timestep reward must be negative"},
		{hp.MaxEpisodeLength < 1, "max episode length must be positive"},
		{hp.MinSpeedX > 0 || hp.MaxSpeedX < 0, "x speed range must include zero"},
		{hp.MinSpeedY > 0 || hp.MaxSpeedY < 0, "y speed range must include zero"},
		{hp.MinSpeedX == hp.MaxSpeedX && hp.MinSpeedY == hp.MaxSpeedY, "speed bounds allow no motion"},
		{hp.StartVelocity != START_ZERO && hp.StartVelocity != START_RANDOM_VERTICAL, "start velocity must be zero or random_vertical"},
		{hp.Sentinel >= hp.StepReward*float64(hp.MaxEpisodeLength+1), "sentinel must be below any finished episode's return"},
		{cfg.Sweep.How != SWEEP_ONE_VS_BASE && cfg.Sweep.How != SWEEP_CROSS, "sweep must be one_vs_base or cross"},
	}
	for _, check := range checks {
		if check.failed {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, check.msg)
		}
	}

	return cfg.Track.Validate()
}

// Bounds returns the configured velocity bounds.
func (cfg *TrainingConfig) Bounds() Bounds {
	return Bounds{
		MinVX: cfg.Training.MinSpeedX,
		MaxVX: cfg.Training.MaxSpeedX,
		MinVY: cfg.Training.MinSpeedY,
		MaxVY: cfg.Training.MaxSpeedY,
	}
}

// EpisodeParams returns the per-episode parameters.
func (cfg *TrainingConfig) EpisodeParams() EpisodeParams {
	return EpisodeParams{
		Epsilon:          cfg.Training.Epsilon,
		Delta:            cfg.Training.Delta,
		Bounds:           cfg.Bounds(),
		MaxEpisodeLength: cfg.Training.MaxEpisodeLength,
		StartVelocity:    cfg.Training.StartVelocity,
	}
}

// WithTrainingDeadline returns a context extended by the training deadline, if one is specified.
func (cfg *TrainingConfig) WithTrainingDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.TrainingDeadline["duration"]; ok {
		if duration, err := time.ParseDuration(val); err != nil {
			return nil, nil, err
		} else {
			innerCtx, cancel := context.WithTimeout(ctx, duration)
			return innerCtx, cancel, nil
		}
	}
	// FUTURE: support a hard-deadline. I don't see the use-case, since duration works just as well.
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}
