package storage

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"

	. "racetrack/models"

	channerics "github.com/niceyeti/channerics/channels"
)

type logRecord struct {
	episode    int
	trajectory Trajectory
}

// TrajectoryLog is a buffered sink writing episode trajectories to a file from its own
// goroutine, keeping file writes out of the training loop. Records are dropped, with a
// count, only once the log's context is cancelled.
type TrajectoryLog struct {
	ctx     context.Context
	records chan logRecord
	drained chan error
	dropped int
}

// NewTrajectoryLog creates the file at @path and starts the writer. The writer stops early
// if @ctx is cancelled; Close must be called in either case.
func NewTrajectoryLog(ctx context.Context, path string, buffer int) (*TrajectoryLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trajectory log: %w", err)
	}

	tl := &TrajectoryLog{
		ctx:     ctx,
		records: make(chan logRecord, buffer),
		drained: make(chan error, 1),
	}

	go func() {
		w := bufio.NewWriter(f)
		var writeErr error
		var records <-chan logRecord = tl.records
		for rec := range channerics.OrDone(ctx.Done(), records) {
			if writeErr == nil {
				writeErr = WriteTrajectory(w, rec.episode, rec.trajectory)
			}
		}
		if writeErr == nil {
			writeErr = w.Flush()
		}
		if closeErr := f.Close(); writeErr == nil {
			writeErr = closeErr
		}
		tl.drained <- writeErr
	}()

	return tl, nil
}

// Record queues the trajectory for writing. The trajectory is copied, so callers may reuse it.
func (tl *TrajectoryLog) Record(episode int, trajectory Trajectory) {
	rec := logRecord{
		episode:    episode,
		trajectory: append(Trajectory(nil), trajectory...),
	}
	select {
	case tl.records <- rec:
	case <-tl.ctx.Done():
		tl.dropped++
	}
}

// Close flushes every queued record and closes the file, returning the first write error.
// No Record calls may follow.
func (tl *TrajectoryLog) Close() error {
	close(tl.records)
	err := <-tl.drained
	if tl.dropped > 0 {
		log.Printf("trajectory log dropped %d records after cancellation", tl.dropped)
	}
	return err
}
