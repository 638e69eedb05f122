package reinforcement

/*
Monte Carlo control for the racetrack problem: the controller generates episodes with an
epsilon-greedy policy over a tabular state-value function, and folds each trajectory's
returns back into the table before the next episode begins. Unlike the parallel alpha-MC
implementations this grew out of, episodes are strictly sequential: the greedy choice in
episode k+1 must observe the table as updated by episode k, so there is no coordination
problem to solve and no locking on the table. Concurrency remains at the edges only
(trajectory logging, stats reads by the view server).
*/

import (
	"context"
	"fmt"
	"math/rand"

	"racetrack/grid_world"
	. "racetrack/models"
)

// ProgressFunc is a callback by which the training method can lend progress details,
// while exercising some level of control over its cancellation to prevent blocking.
// ProgressFunc is synchronous/blocking and should be defined to complete quickly.
type ProgressFunc func(context.Context, int)

// TrajectorySink receives episode trajectories, e.g. to log them outside the training loop.
// Record must not retain the trajectory's backing array past the call unless it copies it.
type TrajectorySink interface {
	Record(episode int, trajectory Trajectory)
}

// Controller owns the value table and drives episodes against it.
type Controller struct {
	track  *grid_world.Track
	cfg    *TrainingConfig
	rule   UpdateRule
	rng    *rand.Rand
	values *ValueTable
	stats  *Stats

	returns  []float64
	episodes int

	sink       TrajectorySink
	logEvery   int
	progressFn ProgressFunc
}

// NewController validates the rule and initializes every state of the track to the sentinel.
func NewController(
	track *grid_world.Track,
	cfg *TrainingConfig,
	rng *rand.Rand,
) (*Controller, error) {
	rule, err := ParseUpdateRule(cfg.Training.UpdateRule)
	if err != nil {
		return nil, err
	}

	sentinel := cfg.Training.Sentinel
	return &Controller{
		track:    track,
		cfg:      cfg,
		rule:     rule,
		rng:      rng,
		values:   NewValueTable(track.RoadPositions(), cfg.Bounds(), sentinel),
		stats:    NewStats(sentinel),
		logEvery: 1,
	}, nil
}

// SetTrajectorySink directs every @every-th episode's trajectory to @sink.
func (c *Controller) SetTrajectorySink(sink TrajectorySink, every int) {
	c.sink = sink
	c.logEvery = max(every, 1)
}

// SetProgressFunc sets the hook called after each episode's update.
func (c *Controller) SetProgressFunc(fn ProgressFunc) {
	c.progressFn = fn
}

// Run simulates @n episodes, updating the value table after each. The context is only
// checked between episodes; a cancelled or expired context returns its error with every
// completed episode already folded into the table.
func (c *Controller) Run(ctx context.Context, n int) error {
	params := c.cfg.EpisodeParams()
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("training stopped after %d episodes: %w", c.episodes, ctx.Err())
		default:
		}

		trajectory, finished := NewEpisode(c.track, c.values, params, c.rng).Simulate()
		g := c.UpdateStateValues(trajectory, finished)

		c.episodes++
		c.returns = append(c.returns, g)
		c.stats.record(g, finished)

		if c.sink != nil && c.episodes%c.logEvery == 0 {
			c.sink.Record(c.episodes, trajectory)
		}
		if c.progressFn != nil {
			c.progressFn(ctx, c.episodes)
		}
	}
	return nil
}

// UpdateStateValues folds a trajectory into the value table and returns the episode's
// return. For finished episodes the return G is accumulated backward from the terminal
// step, so each record sees the reward of the steps remaining to the finish. Truncated
// episodes carry the sentinel as every record's return, if the truncation penalty is on;
// otherwise they leave the table untouched.
//
// Every rule but every-visit updates a state only at the first occurrence met scanning
// backward, which is its latest occurrence in time.
func (c *Controller) UpdateStateValues(trajectory Trajectory, finished bool) float64 {
	sentinel := c.cfg.Training.Sentinel
	if !finished && !c.cfg.Training.TruncatedPenalty {
		return sentinel
	}

	seen := make(map[StateKey]bool, len(trajectory))
	update := func(key StateKey, g float64) {
		if !c.rule.EveryOccurrence() {
			if seen[key] {
				return
			}
			seen[key] = true
		}
		c.values.Update(key, g, c.rule)
	}

	if !finished {
		for _, t := range Rev(len(trajectory)) {
			update(trajectory[t].Key(), sentinel)
		}
		return sentinel
	}

	g := 0.0
	for _, t := range Rev(len(trajectory)) {
		g += c.cfg.Training.StepReward
		update(trajectory[t].Key(), g)
	}
	return g
}

// Replay runs the learned greedy policy once (epsilon = delta = 0) without updating the
// table. The replay is drawn from its own generator so that it does not perturb training.
func (c *Controller) Replay() (Trajectory, bool) {
	params := c.cfg.EpisodeParams()
	params.Epsilon = 0
	params.Delta = 0
	rng := rand.New(rand.NewSource(c.cfg.Training.Seed))
	return NewEpisode(c.track, c.values, params, rng).Simulate()
}

// Returns is the per-episode return series.
func (c *Controller) Returns() []float64 {
	return append([]float64(nil), c.returns...)
}

// Table returns the live value table. It must not be read concurrently with Run.
func (c *Controller) Table() *ValueTable {
	return c.values
}

func (c *Controller) Stats() *Stats {
	return c.stats
}

func (c *Controller) Track() *grid_world.Track {
	return c.track
}

func (c *Controller) Config() *TrainingConfig {
	return c.cfg
}

// Episodes returns the number of completed episodes.
func (c *Controller) Episodes() int {
	return c.episodes
}

// Train builds a controller seeded by the config and runs the configured number of episodes.
// A nil @track is generated per the config's track section; generation errors are returned
// before any episode runs.
func Train(
	ctx context.Context,
	cfg *TrainingConfig,
	track *grid_world.Track,
	progressFn ProgressFunc,
) (c *Controller, err error) {
	if track == nil {
		if track, err = grid_world.NewTrack(cfg.Track); err != nil {
			return
		}
	}

	rng := rand.New(rand.NewSource(cfg.Training.Seed))
	if c, err = NewController(track, cfg, rng); err != nil {
		return
	}
	c.SetProgressFunc(progressFn)
	err = c.Run(ctx, cfg.Training.Episodes)
	return
}
