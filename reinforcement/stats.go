package reinforcement

import (
	"racetrack/atomic_float"
)

// Stats are the running training figures. The controller is their single writer, while the
// server reads them concurrently, hence the atomic floats in place of a lock.
type Stats struct {
	Episodes   *atomic_float.AtomicFloat64
	Finished   *atomic_float.AtomicFloat64
	LastReturn *atomic_float.AtomicFloat64
	MeanReturn *atomic_float.AtomicFloat64
	BestReturn *atomic_float.AtomicFloat64
}

// StatsSnapshot is a point-in-time copy of Stats, e.g. for json serialization.
type StatsSnapshot struct {
	Episodes   int     `json:"episodes"`
	Finished   int     `json:"finished"`
	LastReturn float64 `json:"last_return"`
	MeanReturn float64 `json:"mean_return"`
	BestReturn float64 `json:"best_return"`
}

func NewStats(sentinel float64) *Stats {
	return &Stats{
		Episodes:   atomic_float.NewAtomicFloat64(0),
		Finished:   atomic_float.NewAtomicFloat64(0),
		LastReturn: atomic_float.NewAtomicFloat64(sentinel),
		MeanReturn: atomic_float.NewAtomicFloat64(sentinel),
		BestReturn: atomic_float.NewAtomicFloat64(sentinel),
	}
}

// record folds one episode's return into the stats. Must only be called by one writer:
// a failed swap would mean a second writer, which is a bug.
func (st *Stats) record(g float64, finished bool) {
	n, ok := st.Episodes.AtomicAdd(1)
	if !ok {
		panic("concurrent stats writers")
	}
	if finished {
		_, _ = st.Finished.AtomicAdd(1)
	}
	st.LastReturn.AtomicSet(g)

	mean := g
	if n > 1 {
		old := st.MeanReturn.AtomicRead()
		mean = old + (g-old)/n
	}
	st.MeanReturn.AtomicSet(mean)

	if n == 1 {
		st.BestReturn.AtomicSet(g)
	} else {
		st.BestReturn.AtomicMax(g)
	}
}

// Snapshot reads each stat atomically. The fields are read independently, so a snapshot
// taken mid-update may mix two consecutive episodes; this is fine for display.
func (st *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Episodes:   int(st.Episodes.AtomicRead()),
		Finished:   int(st.Finished.AtomicRead()),
		LastReturn: st.LastReturn.AtomicRead(),
		MeanReturn: st.MeanReturn.AtomicRead(),
		BestReturn: st.BestReturn.AtomicRead(),
	}
}
