package bandit

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

type egArm struct {
	count      int
	avgLatency float64 // math.Inf(1) sentinel until first sample
}

// EpsilonGreedy selects the arm with the lowest observed average latency
// with probability 1-epsilon, exploring uniformly at random otherwise.
// Unvisited arms are always tried before the learned ranking kicks in.
type EpsilonGreedy struct {
	epsilon func() float64

	// mu guards every field of every *egArm; the map is only safe for
	// its own key/value operations.
	mu   sync.Mutex
	arms *xsync.Map[string, *egArm]
}

// NewEpsilonGreedy builds an EpsilonGreedy strategy. epsilonFn is called on
// every SelectArm so the exploration rate can be hot-swapped at runtime
// (see config.RuntimeConfig).
func NewEpsilonGreedy(epsilonFn func() float64) *EpsilonGreedy {
	return &EpsilonGreedy{
		epsilon: epsilonFn,
		arms:    xsync.NewMap[string, *egArm](),
	}
}

func (e *EpsilonGreedy) Initialize(arms []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	resync(e.arms, arms, func() *egArm {
		return &egArm{avgLatency: math.Inf(1)}
	})
}

func (e *EpsilonGreedy) SelectArm() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := mapKeysSorted(e.arms)
	if len(names) == 0 {
		return nil
	}

	var unvisited, rest []string
	for _, n := range names {
		a, _ := e.arms.Load(n)
		if a.count == 0 {
			unvisited = append(unvisited, n)
		} else {
			rest = append(rest, n)
		}
	}

	eps := e.epsilon()

	if len(unvisited) > 0 {
		headIdx := rand.IntN(len(unvisited))
		head := unvisited[headIdx]

		remainder := make([]string, 0, len(names)-1)
		remainder = append(remainder, unvisited[:headIdx]...)
		remainder = append(remainder, unvisited[headIdx+1:]...)
		remainder = append(remainder, rest...)

		if rand.Float64() < eps {
			shuffle(remainder)
		} else {
			e.sortByAvgLatency(remainder)
		}
		return append([]string{head}, remainder...)
	}

	out := append([]string{}, names...)
	if rand.Float64() < eps {
		shuffle(out)
	} else {
		e.sortByAvgLatency(out)
	}
	return out
}

func (e *EpsilonGreedy) sortByAvgLatency(names []string) {
	sort.Slice(names, func(i, j int) bool {
		ai, _ := e.arms.Load(names[i])
		aj, _ := e.arms.Load(names[j])
		return ai.avgLatency < aj.avgLatency
	})
}

func (e *EpsilonGreedy) Update(arm string, latencyMs float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.arms.Load(arm)
	if !ok {
		return
	}
	a.count++
	if math.IsInf(a.avgLatency, 1) {
		a.avgLatency = latencyMs
	} else {
		n := float64(a.count)
		a.avgLatency = ((n-1)*a.avgLatency + latencyMs) / n
	}
}

func (e *EpsilonGreedy) Counts() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]float64)
	e.arms.Range(func(name string, a *egArm) bool {
		out[name] = float64(a.count)
		return true
	})
	return out
}

func (e *EpsilonGreedy) Values() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]float64)
	e.arms.Range(func(name string, a *egArm) bool {
		out[name] = a.avgLatency
		return true
	})
	return out
}
