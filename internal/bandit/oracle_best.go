package bandit

import (
	"errors"
	"math"
	"sort"
	"sync"
)

// LatencySource is the subset of the latency oracle's contract Oracle-Best
// depends on.
type LatencySource interface {
	GetAllCurrentLatencies() map[string]float64
}

// OracleBest ranks arms ascending by the latency oracle's current estimate
// — "what would the ideal, fully-informed chooser have picked".
type OracleBest struct {
	oracle LatencySource
	mu     sync.RWMutex
	arms   []string
}

// NewOracleBest builds an Oracle-Best strategy. Returns an error if oracle
// is nil — this strategy cannot function without one, so it fails fast at
// construction rather than at request time.
func NewOracleBest(oracle LatencySource) (*OracleBest, error) {
	if oracle == nil {
		return nil, errors.New("bandit: oracle_best_choice strategy requires a non-nil latency oracle")
	}
	return &OracleBest{oracle: oracle}, nil
}

func (o *OracleBest) Initialize(arms []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.arms = sortedCopy(arms)
}

func (o *OracleBest) SelectArm() []string {
	o.mu.RLock()
	arms := append([]string{}, o.arms...)
	o.mu.RUnlock()

	latencies := o.oracle.GetAllCurrentLatencies()
	out := append([]string{}, arms...)
	sort.Slice(out, func(i, j int) bool {
		li, liOK := latencies[out[i]]
		lj, ljOK := latencies[out[j]]
		if !liOK {
			li = math.Inf(1)
		}
		if !ljOK {
			lj = math.Inf(1)
		}
		return li < lj
	})
	return out
}

func (o *OracleBest) Update(string, float64) {}

func (o *OracleBest) Counts() map[string]float64 { return map[string]float64{} }
func (o *OracleBest) Values() map[string]float64 {
	out := make(map[string]float64)
	for name, lat := range o.oracle.GetAllCurrentLatencies() {
		out[name] = lat
	}
	return out
}
