package config

import "sync/atomic"

// RuntimeConfig holds the settings that legitimately change after process
// startup without a restart. Currently that is just the Epsilon-Greedy
// exploration rate, which the strategy reads on every selection.
type RuntimeConfig struct {
	epsilon atomic.Pointer[float64]
}

// NewRuntimeConfig returns a RuntimeConfig seeded with the given epsilon.
func NewRuntimeConfig(epsilon float64) *RuntimeConfig {
	rc := &RuntimeConfig{}
	rc.SetEpsilon(epsilon)
	return rc
}

// Epsilon returns the current exploration rate.
func (rc *RuntimeConfig) Epsilon() float64 {
	p := rc.epsilon.Load()
	if p == nil {
		return 0
	}
	return *p
}

// SetEpsilon hot-swaps the exploration rate. Values outside [0,1] are
// clamped rather than rejected. The service exposes no HTTP route or CLI
// command that calls it; NewRuntimeConfig is its only caller here.
func (rc *RuntimeConfig) SetEpsilon(epsilon float64) {
	if epsilon < 0 {
		epsilon = 0
	}
	if epsilon > 1 {
		epsilon = 1
	}
	rc.epsilon.Store(&epsilon)
}
