package config

import "time"

// clampMinDuration returns d if it is at least min, else min.
func clampMinDuration(d, min time.Duration) time.Duration {
	if d < min {
		return min
	}
	return d
}
