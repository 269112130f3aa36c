// Package bandit implements the pluggable multi-armed-bandit cache
// selection strategies: Epsilon-Greedy, UCB1, Discounted-UCB, Random,
// No-Steering, and Oracle-Best.
package bandit

import (
	"math/rand/v2"
	"sort"

	"github.com/puzpuzpuz/xsync/v4"
)

// Selector is the shared contract every strategy implements.
type Selector interface {
	// Initialize resyncs the strategy's arm set against arms, preserving
	// state for surviving arms, creating defaults for new ones, and
	// dropping vanished ones. Idempotent.
	Initialize(arms []string)

	// SelectArm returns a full ranked permutation of the arm set given to
	// the last Initialize call. Position 0 is the chosen arm. It does not
	// resync arms itself; callers call Initialize first.
	SelectArm() []string

	// Update ingests feedback for arm. Strategies without learning ignore it.
	Update(arm string, latencyMs float64)

	// Counts and Values expose per-arm state for logging.
	Counts() map[string]float64
	Values() map[string]float64
}

// EnvironmentalAware is the optional capability set only D-UCB implements.
// The front-end branches on this capability, not on concrete type.
type EnvironmentalAware interface {
	UpdateEnvironmentalState(isMoving, shockDetected bool)
	CheckLatencyShock(arm string, latencyMs float64) bool
	RealCounts() map[string]float64
	CurrentGamma() float64
}

// reward converts a raw latency in ms to the bandit's reward signal.
// Lower latency -> higher reward. Latency <= 0 yields zero reward.
func reward(latencyMs float64) float64 {
	if latencyMs > 0 {
		return 1000 / latencyMs
	}
	return 0
}

// sortedCopy returns a sorted copy of arms without mutating the input.
func sortedCopy(arms []string) []string {
	out := make([]string, len(arms))
	copy(out, arms)
	sort.Strings(out)
	return out
}

// resync brings m's key set in line with arms: new keys get newState(),
// vanished keys are deleted. Existing entries are left untouched so their
// learned state survives.
func resync[T any](m *xsync.Map[string, T], arms []string, newState func() T) {
	want := make(map[string]struct{}, len(arms))
	for _, a := range arms {
		want[a] = struct{}{}
		if _, ok := m.Load(a); !ok {
			m.Store(a, newState())
		}
	}
	var stale []string
	m.Range(func(name string, _ T) bool {
		if _, ok := want[name]; !ok {
			stale = append(stale, name)
		}
		return true
	})
	for _, name := range stale {
		m.Delete(name)
	}
}

// mapKeysSorted returns the map's current keys in a stable, deterministic
// (lexicographic) order — the base ordering strategies permute from.
func mapKeysSorted[T any](m *xsync.Map[string, T]) []string {
	var out []string
	m.Range(func(name string, _ T) bool {
		out = append(out, name)
		return true
	})
	sort.Strings(out)
	return out
}

// shuffle permutes names uniformly at random in place.
func shuffle(names []string) {
	rand.Shuffle(len(names), func(i, j int) {
		names[i], names[j] = names[j], names[i]
	})
}

var (
	_ Selector = (*EpsilonGreedy)(nil)
	_ Selector = (*UCB1)(nil)
	_ Selector = (*DUCB)(nil)
	_ Selector = (*Random)(nil)
	_ Selector = (*NoSteering)(nil)
	_ Selector = (*OracleBest)(nil)

	_ EnvironmentalAware = (*DUCB)(nil)
)
