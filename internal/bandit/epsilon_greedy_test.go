package bandit

import (
	"reflect"
	"testing"
)

func zeroEpsilon() float64 { return 0 }

func TestEpsilonGreedyColdStart(t *testing.T) {
	eg := NewEpsilonGreedy(zeroEpsilon)
	eg.Initialize([]string{"c1", "c2", "c3"})

	eg.Update("c1", 40)
	eg.Update("c2", 30)
	eg.Update("c3", 80)

	got := eg.SelectArm()
	want := []string{"c2", "c1", "c3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SelectArm() = %v, want %v", got, want)
	}
}

func TestEpsilonGreedyAverageLatency(t *testing.T) {
	eg := NewEpsilonGreedy(zeroEpsilon)
	eg.Initialize([]string{"c1"})

	samples := []float64{10, 20, 30}
	for _, s := range samples {
		eg.Update("c1", s)
	}

	counts := eg.Counts()
	if counts["c1"] != 3 {
		t.Fatalf("count = %v, want 3", counts["c1"])
	}
	values := eg.Values()
	want := (10.0 + 20.0 + 30.0) / 3
	if values["c1"] != want {
		t.Fatalf("avgLatency = %v, want %v", values["c1"], want)
	}
}

func TestEpsilonGreedySelectArmIsPermutation(t *testing.T) {
	eg := NewEpsilonGreedy(func() float64 { return 0.5 })
	arms := []string{"c1", "c2", "c3", "c4"}
	eg.Initialize(arms)
	eg.Update("c1", 10)

	for i := 0; i < 20; i++ {
		got := eg.SelectArm()
		if len(got) != len(arms) {
			t.Fatalf("SelectArm() length = %d, want %d", len(got), len(arms))
		}
		seen := make(map[string]bool)
		for _, a := range got {
			seen[a] = true
		}
		if len(seen) != len(arms) {
			t.Fatalf("SelectArm() = %v is not a permutation of %v", got, arms)
		}
	}
}

func TestEpsilonGreedyInitializeDropsVanishedArms(t *testing.T) {
	eg := NewEpsilonGreedy(zeroEpsilon)
	eg.Initialize([]string{"c1", "c2"})
	eg.Update("c1", 10)
	eg.Initialize([]string{"c2"})

	counts := eg.Counts()
	if _, ok := counts["c1"]; ok {
		t.Fatal("expected c1 to be dropped after resync")
	}
}
