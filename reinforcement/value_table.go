package reinforcement

import (
	"math"
	"sort"

	. "racetrack/models"
)

// DEFAULT_SENTINEL is the initial value of every state: a return far worse than any
// episode can produce, so unvisited states sort last under the greedy max.
const DEFAULT_SENTINEL = -1e6

// ValueEntry is a state's estimated return and the number of updates folded into it.
type ValueEntry struct {
	Value float64 `yaml:"value"`
	Count int     `yaml:"count"`
}

// ValueTable maps (position, velocity) states to their estimated return. It is owned by a
// single Controller and passed by reference to the Episodes it runs; no synchronization is
// performed since episodes and updates are strictly sequential.
type ValueTable struct {
	entries  map[StateKey]ValueEntry
	sentinel float64
}

// NewValueTable eagerly materializes an entry per (position x velocity) in the Cartesian
// product of the passed positions and every velocity within bounds. This makes unvisited
// states indistinguishable from states with a terrible learned value, intentionally
// biasing the greedy policy away from them.
func NewValueTable(positions []Position, bounds Bounds, sentinel float64) *ValueTable {
	vels := bounds.Velocities()
	vt := &ValueTable{
		entries:  make(map[StateKey]ValueEntry, len(positions)*len(vels)),
		sentinel: sentinel,
	}
	for _, p := range positions {
		for _, v := range vels {
			vt.entries[StateKey{Position: p, Velocity: v}] = ValueEntry{Value: sentinel}
		}
	}
	return vt
}

// Sentinel returns the table's initial value.
func (vt *ValueTable) Sentinel() float64 {
	return vt.sentinel
}

// Len returns the number of materialized states.
func (vt *ValueTable) Len() int {
	return len(vt.entries)
}

// Entry returns the state's entry and whether the state is materialized.
func (vt *ValueTable) Entry(key StateKey) (ValueEntry, bool) {
	entry, ok := vt.entries[key]
	return entry, ok
}

// Value returns the state's estimate. States outside the table, such as off-road
// destinations, have the sentinel value.
func (vt *ValueTable) Value(key StateKey) float64 {
	if entry, ok := vt.entries[key]; ok {
		return entry.Value
	}
	return vt.sentinel
}

// Set overwrites an entry, e.g. to seed a table with prior knowledge.
func (vt *ValueTable) Set(key StateKey, entry ValueEntry) {
	vt.entries[key] = entry
}

// Update folds the observed return @g into the state's entry per the rule's aggregation:
// the incremental mean for the averaging rules, the running maximum for LAST_VISIT_BEST.
// The count increments on every update.
func (vt *ValueTable) Update(key StateKey, g float64, rule UpdateRule) ValueEntry {
	entry, ok := vt.entries[key]
	if !ok {
		entry = ValueEntry{Value: vt.sentinel}
	}

	switch {
	case rule == LAST_VISIT_BEST:
		entry.Value = math.Max(entry.Value, g)
	case entry.Count > 0:
		entry.Value = (float64(entry.Count)*entry.Value + g) / float64(entry.Count+1)
	default:
		entry.Value = g
	}
	entry.Count++

	vt.entries[key] = entry
	return entry
}

// Keys returns the table's states sorted by position then velocity, for stable exports.
func (vt *ValueTable) Keys() []StateKey {
	keys := make([]StateKey, 0, len(vt.entries))
	for k := range vt.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		if a.VX != b.VX {
			return a.VX < b.VX
		}
		return a.VY < b.VY
	})
	return keys
}

// Projection selects how velocity sub-states are reduced to a single value per position.
type Projection int

const (
	PROJECT_MAX Projection = iota
	PROJECT_SUM
)

// Project reduces the table into position-only space, indexed [row][col]. Positions absent
// from the table hold the sentinel.
func (vt *ValueTable) Project(rows, cols int, how Projection) [][]float64 {
	values := make([][]float64, rows)
	seen := make([][]bool, rows)
	for y := range values {
		values[y] = make([]float64, cols)
		seen[y] = make([]bool, cols)
		for x := range values[y] {
			values[y][x] = vt.sentinel
		}
	}

	for key, entry := range vt.entries {
		x, y := key.X, key.Y
		if y < 0 || y >= rows || x < 0 || x >= cols {
			continue
		}
		switch {
		case !seen[y][x]:
			values[y][x] = entry.Value
			seen[y][x] = true
		case how == PROJECT_SUM:
			values[y][x] += entry.Value
		default:
			values[y][x] = math.Max(values[y][x], entry.Value)
		}
	}
	return values
}

// BestVelocity returns the max-valued velocity sub-state at a position, a clumsy
// operation purely for viewing policy arrows. Returns false if no sub-state at the
// position has been visited.
func (vt *ValueTable) BestVelocity(p Position, bounds Bounds) (best Velocity, ok bool) {
	maxVal := vt.sentinel
	for _, v := range bounds.Velocities() {
		entry, exists := vt.entries[StateKey{Position: p, Velocity: v}]
		if !exists || entry.Count == 0 {
			continue
		}
		if !ok || entry.Value > maxVal {
			best, maxVal, ok = v, entry.Value, true
		}
	}
	return
}
