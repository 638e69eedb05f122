package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// Sweep modes
const (
	SWEEP_ONE_VS_BASE = "one_vs_base"
	SWEEP_CROSS       = "cross"
)

// SweepRun is one training configuration in a sweep, derived from the base config by the
// listed overrides.
type SweepRun struct {
	Name      string
	Overrides map[string]interface{}
	Config    *TrainingConfig
}

// SweepResult holds a finished run's return series and runtime.
type SweepResult struct {
	Run     SweepRun
	Returns []float64
	Runtime time.Duration
}

// AverageReturn is the mean over every episode.
func (res SweepResult) AverageReturn() float64 {
	return mean(res.Returns)
}

// LastAverage is the mean over the last @n episodes, or false if fewer than @n ran.
func (res SweepResult) LastAverage(n int) (float64, bool) {
	if len(res.Returns) < n {
		return 0, false
	}
	return mean(res.Returns[len(res.Returns)-n:]), true
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// overrideKey maps a swept param name onto its config key. Bare names are training
// params; dotted names address any section, e.g. "track.min_width".
func overrideKey(param string) string {
	if strings.Contains(param, ".") {
		return "def." + param
	}
	return "def.training." + param
}

// withOverrides decodes a fresh config from the base settings plus the overrides.
func withOverrides(base *viper.Viper, overrides map[string]interface{}) (*TrainingConfig, error) {
	vp := viper.New()
	if err := vp.MergeConfigMap(base.AllSettings()); err != nil {
		return nil, err
	}
	for param, val := range overrides {
		vp.Set(overrideKey(param), val)
	}
	cfg, err := Decode(vp)
	if err != nil {
		return nil, fmt.Errorf("sweep overrides %v: %w", overrides, err)
	}
	return cfg, nil
}

func runName(params []string, overrides map[string]interface{}) string {
	if len(overrides) == 0 {
		return "base"
	}
	parts := make([]string, 0, len(overrides))
	for _, param := range params {
		if val, ok := overrides[param]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", param, val))
		}
	}
	return strings.Join(parts, ",")
}

// PlanSweep expands the sweep section into its runs. In one_vs_base mode the base config
// runs first, followed by one run per (param, value) with every other param at its base
// value. In cross mode every combination of the listed values runs. Every run's config is
// validated before any training starts.
func PlanSweep(base *viper.Viper, sweep SweepConfig) (runs []SweepRun, err error) {
	params := make([]string, 0, len(sweep.Params))
	for param := range sweep.Params {
		params = append(params, param)
	}
	sort.Strings(params)

	var combos []map[string]interface{}
	switch sweep.How {
	case SWEEP_ONE_VS_BASE:
		combos = append(combos, map[string]interface{}{})
		for _, param := range params {
			for _, val := range sweep.Params[param] {
				combos = append(combos, map[string]interface{}{param: val})
			}
		}
	case SWEEP_CROSS:
		combos = []map[string]interface{}{{}}
		for _, param := range params {
			var next []map[string]interface{}
			for _, combo := range combos {
				for _, val := range sweep.Params[param] {
					ext := make(map[string]interface{}, len(combo)+1)
					for k, v := range combo {
						ext[k] = v
					}
					ext[param] = val
					next = append(next, ext)
				}
			}
			combos = next
		}
	default:
		return nil, fmt.Errorf("%w: sweep mode %q", ErrInvalidConfig, sweep.How)
	}

	for _, overrides := range combos {
		var cfg *TrainingConfig
		if cfg, err = withOverrides(base, overrides); err != nil {
			return nil, err
		}
		runs = append(runs, SweepRun{
			Name:      runName(params, overrides),
			Overrides: overrides,
			Config:    cfg,
		})
	}
	return
}

// RunSweep trains every run on up to @workers goroutines. Each run owns its track, table,
// and generator, so runs share nothing. Results are in run order. The first failed run
// cancels the rest.
func RunSweep(ctx context.Context, runs []SweepRun, workers int) ([]SweepResult, error) {
	results := make([]SweepResult, len(runs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(workers, 1))

	for i := range runs {
		i := i
		group.Go(func() error {
			run := runs[i]
			runCtx, cancel, err := run.Config.WithTrainingDeadline(groupCtx)
			if err != nil {
				return err
			}
			defer cancel()

			start := time.Now()
			c, err := Train(runCtx, run.Config, nil, nil)
			// A run's own deadline ends its training early, but is not a failure.
			if err != nil && !(errors.Is(err, context.DeadlineExceeded) && groupCtx.Err() == nil) {
				return fmt.Errorf("sweep run %s: %w", run.Name, err)
			}
			results[i] = SweepResult{
				Run:     run,
				Returns: c.Returns(),
				Runtime: time.Since(start),
			}
			log.Printf("sweep run %s finished %d episodes in %v", run.Name, c.Episodes(), results[i].Runtime)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
