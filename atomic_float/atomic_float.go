// atomic_float provides a float64 that can be read while another goroutine writes it,
// without a lock: training stats are written by the controller and read by the server.
package atomic_float

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 stores a float64 as its IEEE-754 bits in an atomic uint64.
// The zero value holds 0.0.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

func NewAtomicFloat64(val float64) *AtomicFloat64 {
	af := &AtomicFloat64{}
	af.bits.Store(math.Float64bits(val))
	return af
}

// AtomicRead loads the current value.
func (af *AtomicFloat64) AtomicRead() float64 {
	return math.Float64frombits(af.bits.Load())
}

// AtomicAdd adds @addend with a single compare-and-swap. If the value changed between the
// read and the swap the add is not applied and false is returned; the caller decides
// whether to retry or drop the update.
func (af *AtomicFloat64) AtomicAdd(addend float64) (newVal float64, succeeded bool) {
	old := af.bits.Load()
	newVal = math.Float64frombits(old) + addend
	succeeded = af.bits.CompareAndSwap(old, math.Float64bits(newVal))
	return
}

// AtomicSet unconditionally stores the value.
func (af *AtomicFloat64) AtomicSet(val float64) {
	af.bits.Store(math.Float64bits(val))
}

// AtomicMax raises the value to @val if it is larger, retrying until it either wins or
// observes a value at least as large. Returns the resulting value.
func (af *AtomicFloat64) AtomicMax(val float64) float64 {
	for {
		old := af.bits.Load()
		cur := math.Float64frombits(old)
		if cur >= val {
			return cur
		}
		if af.bits.CompareAndSwap(old, math.Float64bits(val)) {
			return val
		}
	}
}
