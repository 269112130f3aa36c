package config

import (
	"testing"
	"time"
)

func TestClampMinDuration(t *testing.T) {
	cases := []struct {
		d, min, want time.Duration
	}{
		{d: 100 * time.Millisecond, min: 500 * time.Millisecond, want: 500 * time.Millisecond},
		{d: 2 * time.Second, min: 500 * time.Millisecond, want: 2 * time.Second},
		{d: 500 * time.Millisecond, min: 500 * time.Millisecond, want: 500 * time.Millisecond},
	}
	for _, c := range cases {
		if got := clampMinDuration(c.d, c.min); got != c.want {
			t.Errorf("clampMinDuration(%v, %v) = %v, want %v", c.d, c.min, got, c.want)
		}
	}
}
