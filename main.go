/*
Racetrack trains a car to drive a randomly generated racetrack as fast as possible, using
on-policy Monte Carlo control over a tabular state-value function. A run prints the track,
trains for the configured number of episodes, replays the greedy policy, and writes the run's
artifacts (grid, trajectories, values, returns, and an html report) to a fresh run directory.
Optionally the value function is served live while training, or a sweep of parameter values
is run instead of a single training run.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"racetrack/grid_world"
	. "racetrack/models"
	"racetrack/reinforcement"
	"racetrack/report"
	"racetrack/server"
	"racetrack/storage"

	"github.com/spf13/viper"
)

var (
	configPath = flag.String("config", "./config.yaml", "path to the config file")
	gridPath   = flag.String("grid", "", "load the track from a saved grid file instead of generating one")
	dbg        = flag.Bool("debug", false, "train on the small debug track")
	serve      = flag.Bool("serve", false, "serve live views of training")
	host       = flag.String("host", "", "the server host ip, overriding the config")
	port       = flag.String("port", "", "the server port, overriding the config")
	sweep      = flag.Bool("sweep", false, "run the config's parameter sweep")
	nocolor    = flag.Bool("nocolor", false, "disable colored console output")
)

func main() {
	flag.Parse()
	if err := runApp(); err != nil {
		log.Fatal(err)
	}
}

func runApp() (err error) {
	var vp *viper.Viper
	if vp, err = reinforcement.LoadViper(*configPath); err != nil {
		return
	}
	var cfg *reinforcement.TrainingConfig
	if cfg, err = reinforcement.Decode(vp); err != nil {
		return
	}
	log.Printf("loaded config %s", *configPath)

	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	appCtx, appCancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer appCancel()

	if *sweep {
		return runSweep(appCtx, vp, cfg)
	}
	return runTraining(appCtx, cfg)
}

func buildTrack(cfg *reinforcement.TrainingConfig) (track *grid_world.Track, err error) {
	if *dbg {
		return grid_world.MustParseTrack(grid_world.DebugTrack), nil
	}
	if *gridPath == "" {
		track, err = grid_world.NewTrack(cfg.Track)
		return
	}

	var grid [][]CellKind
	if grid, err = storage.LoadGrid(*gridPath); err != nil {
		return
	}
	track, err = grid_world.NewTrackFromGrid(grid)
	return
}

func runTraining(appCtx context.Context, cfg *reinforcement.TrainingConfig) (err error) {
	color := !*nocolor

	var track *grid_world.Track
	if track, err = buildTrack(cfg); err != nil {
		return
	}
	log.Printf("track built: %d rows, %d cols", track.Rows(), track.Cols())
	ShowGrid(os.Stdout, track.Grid(), color)

	var runDir *storage.RunDir
	if runDir, err = storage.NewRunDir(cfg.Output.Dir, time.Now()); err != nil {
		return
	}
	if err = storage.SaveGrid(runDir.File(storage.GRID_FILE), track.Grid()); err != nil {
		return
	}

	var c *reinforcement.Controller
	if c, err = reinforcement.NewController(track, cfg, rand.New(rand.NewSource(cfg.Training.Seed))); err != nil {
		return
	}

	var tl *storage.TrajectoryLog
	if cfg.Output.LogTrajectories {
		if tl, err = storage.NewTrajectoryLog(appCtx, runDir.File(storage.TRAJECTORIES_FILE), 64); err != nil {
			return
		}
		c.SetTrajectorySink(tl, cfg.Output.LogEvery)
	}

	var snapshots chan reinforcement.ValueSnapshot
	if *serve {
		snapshots = make(chan reinforcement.ValueSnapshot)
		var srv *server.Server
		if srv, err = server.NewServer(
			appCtx,
			cfg.Server.Host+":"+cfg.Server.Port,
			c.Snapshot(),
			snapshots,
			c.Stats(),
			cfg.Output.Dir,
		); err != nil {
			return
		}
		go func() {
			if serveErr := srv.Serve(appCtx); serveErr != nil {
				log.Println(serveErr)
			}
		}()
	}
	c.SetProgressFunc(progressFunc(c, cfg, snapshots))

	trainingCtx, cancel, err := cfg.WithTrainingDeadline(appCtx)
	if err != nil {
		return
	}
	defer cancel()

	start := time.Now()
	runErr := c.Run(trainingCtx, cfg.Training.Episodes)
	switch {
	case runErr == nil:
		log.Printf("training finished %d episodes in %v", c.Episodes(), time.Since(start).Round(time.Millisecond))
	case errors.Is(runErr, context.DeadlineExceeded), errors.Is(runErr, context.Canceled):
		// Completed episodes are already in the table, so the run's artifacts are still saved.
		log.Println(runErr)
	default:
		return runErr
	}
	if tl != nil {
		if err = tl.Close(); err != nil {
			return
		}
	}

	path, finished := c.Replay()
	log.Printf("greedy replay: %d steps, finished: %t", len(path)-1, finished)
	ShowPath(os.Stdout, track.Grid(), positions(path), color)
	ShowValues(os.Stdout, c.Table().Project(track.Rows(), track.Cols(), reinforcement.PROJECT_MAX), cfg.Floor())

	if err = saveArtifacts(runDir, c, path); err != nil {
		return
	}
	log.Printf("artifacts written to %s", runDir.Path)

	if *serve && appCtx.Err() == nil {
		log.Println("training complete, serving until interrupted")
		<-appCtx.Done()
	}
	return nil
}

// progressFunc logs training progress, and publishes value snapshots to the views if
// @snapshots is non-nil. Snapshots are dropped rather than blocking training when the
// views are busy or no client is connected.
func progressFunc(
	c *reinforcement.Controller,
	cfg *reinforcement.TrainingConfig,
	snapshots chan<- reinforcement.ValueSnapshot,
) reinforcement.ProgressFunc {
	publishEvery := max(cfg.Server.PublishEvery, 1)
	return func(ctx context.Context, episode int) {
		if every := cfg.Training.ProgressEvery; every > 0 && episode%every == 0 {
			st := c.Stats().Snapshot()
			log.Printf("episode %d: %d finished, last return %.0f, mean return %.2f, best return %.0f",
				episode, st.Finished, st.LastReturn, st.MeanReturn, st.BestReturn)
		}
		if snapshots != nil && episode%publishEvery == 0 {
			select {
			case snapshots <- c.Snapshot():
			case <-ctx.Done():
			default:
			}
		}
	}
}

func positions(trajectory Trajectory) []Position {
	ps := make([]Position, len(trajectory))
	for i, step := range trajectory {
		ps[i] = step.Position
	}
	return ps
}

func saveArtifacts(runDir *storage.RunDir, c *reinforcement.Controller, path Trajectory) (err error) {
	if err = storage.SavePath(runDir.File(storage.POLICY_PATH_FILE), path); err != nil {
		return
	}
	if err = storage.SaveValues(runDir.File(storage.VALUES_FILE), c.Table()); err != nil {
		return
	}
	if err = storage.SaveReturns(runDir.File(storage.RETURNS_FILE), c.Returns()); err != nil {
		return
	}
	if c.Config().Output.Report {
		rep := report.NewRunReport("Racetrack run "+runDir.ID, c, path)
		err = report.Save(runDir.File(storage.REPORT_FILE), func(w io.Writer) error {
			return report.Render(w, rep)
		})
	}
	return
}

func runSweep(ctx context.Context, vp *viper.Viper, cfg *reinforcement.TrainingConfig) (err error) {
	var runs []reinforcement.SweepRun
	if runs, err = reinforcement.PlanSweep(vp, cfg.Sweep); err != nil {
		return
	}
	log.Printf("sweep (%s): %d runs on %d workers", cfg.Sweep.How, len(runs), cfg.Sweep.Workers)

	var results []reinforcement.SweepResult
	if results, err = reinforcement.RunSweep(ctx, runs, cfg.Sweep.Workers); err != nil {
		return
	}
	report.WriteSweepSummary(os.Stdout, results)

	var runDir *storage.RunDir
	if runDir, err = storage.NewRunDir(cfg.Output.Dir, time.Now()); err != nil {
		return
	}
	if err = report.Save(runDir.File(storage.REPORT_FILE), func(w io.Writer) error {
		return report.RenderSweep(w, results)
	}); err != nil {
		return
	}
	log.Printf("sweep report written to %s", runDir.File(storage.REPORT_FILE))
	return
}
