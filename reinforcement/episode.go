package reinforcement

import (
	"math/rand"

	"racetrack/grid_world"
	. "racetrack/models"
)

// Start velocity modes.
const (
	START_ZERO            = "zero"
	START_RANDOM_VERTICAL = "random_vertical"
)

// EpisodeParams are the policy and kinematic parameters of a single episode.
type EpisodeParams struct {
	Epsilon          float64
	Delta            float64
	Bounds           Bounds
	MaxEpisodeLength int
	StartVelocity    string
}

// Episode simulates one run of the car from a start state to the finish, or until its step
// budget is exhausted. The value table is shared with the owning Controller and only read here.
type Episode struct {
	track  *grid_world.Track
	values *ValueTable
	params EpisodeParams
	rng    *rand.Rand

	position Position
	velocity Velocity
}

func NewEpisode(
	track *grid_world.Track,
	values *ValueTable,
	params EpisodeParams,
	rng *rand.Rand,
) *Episode {
	return &Episode{
		track:  track,
		values: values,
		params: params,
		rng:    rng,
	}
}

// allActions is every acceleration in {-1,0,1}^2.
var allActions = func() (actions []Action) {
	for dvx := MIN_ACCELERATION; dvx <= MAX_ACCELERATION; dvx++ {
		for dvy := MIN_ACCELERATION; dvy <= MAX_ACCELERATION; dvy++ {
			actions = append(actions, Action{DVX: dvx, DVY: dvy})
		}
	}
	return
}()

// LegalActions returns the accelerations whose resulting velocity lies within bounds and is
// not (0,0). Hence the no-op is only legal while the car is already moving.
func LegalActions(v Velocity, bounds Bounds) (legal []Action) {
	for _, a := range allActions {
		next := v.Apply(a)
		if bounds.Contains(next) && !next.IsZero() {
			legal = append(legal, a)
		}
	}
	return
}

// SelectAction is the three-branch policy over a single uniform sample @u in [0,1):
//   - u < delta: the actuator fails and the no-op is forced, regardless of legality;
//   - u < delta + (1-delta)*epsilon: explore, choosing a uniformly random legal action;
//   - otherwise exploit, choosing the legal action leading to the max-valued next state.
//
// Greedy ties go to the first maximum in @legal, which callers shuffle beforehand. The
// exploration index is drawn from @rng only on the exploration branch.
func SelectAction(
	u float64,
	params EpisodeParams,
	pos Position,
	vel Velocity,
	legal []Action,
	values *ValueTable,
	rng *rand.Rand,
) Action {
	if len(legal) == 0 || u < params.Delta {
		return NOOP
	}
	if u < params.Delta+(1-params.Delta)*params.Epsilon {
		return legal[rng.Intn(len(legal))]
	}

	best := legal[0]
	bestVal := 0.0
	for i, a := range legal {
		next := vel.Apply(a)
		val := values.Value(StateKey{Position: pos.Add(next), Velocity: next})
		if i == 0 || val > bestVal {
			best, bestVal = a, val
		}
	}
	return best
}

// reset moves the car to a random start position, with velocity per the start mode.
func (ep *Episode) reset() Step {
	starts := ep.track.StartPositions()
	ep.position = starts[ep.rng.Intn(len(starts))]
	ep.velocity = Velocity{}
	if ep.params.StartVelocity == START_RANDOM_VERTICAL {
		b := ep.params.Bounds
		ep.velocity.VY = b.MinVY + ep.rng.Intn(b.MaxVY-b.MinVY+1)
	}
	return Step{Position: ep.position, Velocity: ep.velocity}
}

// Simulate runs the episode and returns its trajectory, and true if it finished rather
// than being truncated at the step budget. The first record is the start state; crashes
// reset the car to a new start state, appended with a nil action, and the step count
// keeps running, so repeated crashes always end in truncation.
func (ep *Episode) Simulate() (trajectory Trajectory, finished bool) {
	trajectory = append(trajectory, ep.reset())

	for steps := 0; steps < ep.params.MaxEpisodeLength; steps++ {
		legal := LegalActions(ep.velocity, ep.params.Bounds)
		ep.rng.Shuffle(len(legal), func(i, j int) {
			legal[i], legal[j] = legal[j], legal[i]
		})
		action := SelectAction(ep.rng.Float64(), ep.params, ep.position, ep.velocity, legal, ep.values, ep.rng)

		vel := ep.velocity.Apply(action)
		pos := ep.position.Add(vel)

		if ep.track.HasFinished(pos, vel) {
			trajectory = append(trajectory, Step{Position: pos, Velocity: vel, Action: &action})
			return trajectory, true
		}

		if ep.track.CheckForCrash(ep.position, vel) {
			trajectory = append(trajectory, ep.reset())
			continue
		}

		ep.position, ep.velocity = pos, vel
		trajectory = append(trajectory, Step{Position: pos, Velocity: vel, Action: &action})
	}

	return trajectory, false
}
