package bandit

import (
	"math"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

type ucb1Arm struct {
	count     int
	sumReward float64
}

// UCB1 selects arms by the upper-confidence-bound formula, favoring
// under-sampled arms until every arm has been pulled at least once.
type UCB1 struct {
	// mu guards every field of every *ucb1Arm plus totalPulls; the map is
	// only safe for its own key/value operations.
	mu         sync.Mutex
	arms       *xsync.Map[string, *ucb1Arm]
	totalPulls int
}

// NewUCB1 builds a UCB1 strategy.
func NewUCB1() *UCB1 {
	return &UCB1{arms: xsync.NewMap[string, *ucb1Arm]()}
}

func (u *UCB1) Initialize(arms []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	resync(u.arms, arms, func() *ucb1Arm { return &ucb1Arm{} })
}

func (u *UCB1) SelectArm() []string {
	u.mu.Lock()
	defer u.mu.Unlock()

	names := mapKeysSorted(u.arms)
	if len(names) == 0 {
		return nil
	}

	var unpulled, rest []string
	for _, n := range names {
		a, _ := u.arms.Load(n)
		if a.count == 0 {
			unpulled = append(unpulled, n)
		} else {
			rest = append(rest, n)
		}
	}

	if len(unpulled) > 0 {
		head := unpulled[0]
		remainder := append(append([]string{}, unpulled[1:]...), rest...)
		return append([]string{head}, remainder...)
	}

	totalPulls := float64(u.totalPulls)
	score := func(n string) float64 {
		a, _ := u.arms.Load(n)
		count := float64(a.count)
		mean := a.sumReward / count
		return mean + math.Sqrt(2*math.Log(math.Max(1, totalPulls)+1e-5)/count)
	}

	out := append([]string{}, names...)
	sort.Slice(out, func(i, j int) bool { return score(out[i]) > score(out[j]) })
	return out
}

func (u *UCB1) Update(arm string, latencyMs float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	a, ok := u.arms.Load(arm)
	if !ok {
		return
	}
	a.sumReward += reward(latencyMs)
	a.count++
	u.totalPulls++
}

func (u *UCB1) Counts() map[string]float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]float64)
	u.arms.Range(func(name string, a *ucb1Arm) bool {
		out[name] = float64(a.count)
		return true
	})
	return out
}

func (u *UCB1) Values() map[string]float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]float64)
	u.arms.Range(func(name string, a *ucb1Arm) bool {
		out[name] = a.sumReward
		return true
	})
	return out
}
