package bandit

import (
	"sync"
)

// Random returns a uniformly shuffled permutation of the current arms on
// every call and ignores all feedback.
type Random struct {
	mu   sync.RWMutex
	arms []string
}

// NewRandom builds a Random strategy.
func NewRandom() *Random {
	return &Random{}
}

func (r *Random) Initialize(arms []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.arms = sortedCopy(arms)
}

func (r *Random) SelectArm() []string {
	r.mu.RLock()
	out := append([]string{}, r.arms...)
	r.mu.RUnlock()
	shuffle(out)
	return out
}

func (r *Random) Update(string, float64) {}

func (r *Random) Counts() map[string]float64 { return map[string]float64{} }
func (r *Random) Values() map[string]float64 { return map[string]float64{} }
