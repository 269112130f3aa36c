package bandit

import (
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// D-UCB discount-factor regimes, per environmental state.
const (
	gammaStill = 0.995
	gammaMove  = 0.75
	gammaShock = 0.60

	shockRecoveryWindow = 7 * time.Second
	shockFactor         = 2.5
	shockMinSamples     = 5
)

type ducbArm struct {
	discCount     float64
	discSumReward float64
	rawCount      int
	rawSumLatency float64
	actualCount   int
}

// DUCB is the Discounted-UCB strategy: it reacts to environmental change
// (client movement, latency shocks) by shrinking its discount factor so
// recent observations dominate the running statistics.
type DUCB struct {
	verbose bool

	// mu guards every field of every *ducbArm plus the global counters
	// below; the map is only safe for its own key/value operations. It
	// also serialises Update's multi-step decay-then-credit sequence.
	mu         sync.Mutex
	arms       *xsync.Map[string, *ducbArm]
	t          int
	gamma      float64
	shockUntil time.Time
	everMoved  bool
}

// NewDUCB builds a D-UCB strategy, starting in the "still" regime. When
// verbose is set, every gamma regime transition is traced to the log.
func NewDUCB(verbose bool) *DUCB {
	return &DUCB{
		arms:    xsync.NewMap[string, *ducbArm](),
		gamma:   gammaStill,
		verbose: verbose,
	}
}

func (d *DUCB) Initialize(arms []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	resync(d.arms, arms, func() *ducbArm { return &ducbArm{} })
}

func (d *DUCB) SelectArm() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := mapKeysSorted(d.arms)
	if len(names) == 0 {
		return nil
	}

	var unpulled, rest []string
	for _, n := range names {
		a, _ := d.arms.Load(n)
		if a.discCount < 1e-5 {
			unpulled = append(unpulled, n)
		} else {
			rest = append(rest, n)
		}
	}

	if len(unpulled) > 0 {
		head := unpulled[0]
		remainder := append(append([]string{}, unpulled[1:]...), rest...)
		shuffle(remainder)
		return append([]string{head}, remainder...)
	}

	t := d.t
	explorationCoef := 2.0
	if d.gamma == gammaShock {
		explorationCoef = 1.5
	}

	score := func(n string) float64 {
		a, _ := d.arms.Load(n)
		return a.discSumReward/a.discCount + math.Sqrt(explorationCoef*math.Log(float64(t)+1e-5)/a.discCount)
	}

	out := append([]string{}, names...)
	sort.Slice(out, func(i, j int) bool { return score(out[i]) > score(out[j]) })
	return out
}

// UpdateEnvironmentalState recomputes gamma from the current environmental
// hints. Must be called before Update for the same feedback event.
func (d *DUCB) UpdateEnvironmentalState(isMoving, shockDetected bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if isMoving {
		d.everMoved = true
	}

	now := time.Now()
	prevGamma, reason := d.gamma, ""
	switch {
	case shockDetected:
		d.gamma = gammaShock
		d.shockUntil = now.Add(shockRecoveryWindow)
		reason = "latency shock detected"
	case now.Before(d.shockUntil):
		d.gamma = gammaShock
		reason = "post-shock recovery window"
	case d.everMoved:
		d.gamma = gammaMove
		reason = "persistent movement"
	default:
		d.gamma = gammaStill
		reason = "normal state"
	}
	if d.verbose && d.gamma != prevGamma {
		log.Printf("bandit: d_ucb gamma -> %.3f (%s)", d.gamma, reason)
	}
}

// CheckLatencyShock reports whether latencyMs exceeds arm's adaptive
// shock threshold, derived from its raw observation history.
func (d *DUCB) CheckLatencyShock(arm string, latencyMs float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.arms.Load(arm)
	if !ok || a.rawCount < shockMinSamples {
		return false
	}
	avg := a.rawSumLatency / float64(a.rawCount)
	thresh := avg * shockFactor
	if avg < 10 {
		thresh = math.Max(thresh, avg+15)
	}
	return latencyMs > thresh
}

// Update performs the 5-step D-UCB update: record raw stats, compute
// reward, advance t, decay every arm by the active gamma exactly once,
// then credit the updated arm. The step order is load-bearing: the new
// sample must not be decayed by the gamma applied for its own update.
func (d *DUCB) Update(arm string, latencyMs float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.arms.Load(arm)
	if !ok {
		return
	}

	a.rawCount++
	a.rawSumLatency += latencyMs
	a.actualCount++

	r := reward(latencyMs)
	d.t++

	gamma := d.gamma
	d.arms.Range(func(_ string, x *ducbArm) bool {
		x.discCount *= gamma
		x.discSumReward *= gamma
		return true
	})

	a.discCount += 1
	a.discSumReward += r
}

// Counts returns discCount per arm (a float, not an integer pull tally).
func (d *DUCB) Counts() map[string]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]float64)
	d.arms.Range(func(name string, a *ducbArm) bool {
		out[name] = a.discCount
		return true
	})
	return out
}

// RealCounts returns the true (undiscounted) pull count per arm.
func (d *DUCB) RealCounts() map[string]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]float64)
	d.arms.Range(func(name string, a *ducbArm) bool {
		out[name] = float64(a.actualCount)
		return true
	})
	return out
}

// Values returns the discounted mean reward per arm.
func (d *DUCB) Values() map[string]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]float64)
	d.arms.Range(func(name string, a *ducbArm) bool {
		if a.discCount < 1e-9 {
			out[name] = 0
		} else {
			out[name] = a.discSumReward / a.discCount
		}
		return true
	})
	return out
}

// CurrentGamma returns the discount factor currently in effect.
func (d *DUCB) CurrentGamma() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gamma
}
