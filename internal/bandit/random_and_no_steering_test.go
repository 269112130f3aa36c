package bandit

import (
	"reflect"
	"testing"
)

func TestRandomSelectArmIsPermutation(t *testing.T) {
	r := NewRandom()
	arms := []string{"c1", "c2", "c3"}
	r.Initialize(arms)

	got := r.SelectArm()
	seen := make(map[string]bool)
	for _, a := range got {
		seen[a] = true
	}
	if len(seen) != len(arms) {
		t.Fatalf("SelectArm() = %v is not a permutation of %v", got, arms)
	}
}

func TestNoSteeringIsLexicographicAndStable(t *testing.T) {
	n := NewNoSteering()
	n.Initialize([]string{"c3", "c1", "c2"})

	want := []string{"c1", "c2", "c3"}
	for i := 0; i < 5; i++ {
		got := n.SelectArm()
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("SelectArm() = %v, want %v", got, want)
		}
	}
}
