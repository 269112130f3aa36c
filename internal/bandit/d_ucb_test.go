package bandit

import (
	"math"
	"testing"
	"time"
)

func TestDUCBShockRecoveryWindowElapses(t *testing.T) {
	d := NewDUCB(false)
	d.Initialize([]string{"c1", "c2"})

	d.UpdateEnvironmentalState(false, true)
	if d.CurrentGamma() != gammaShock {
		t.Fatalf("gamma after shock = %v, want gammaShock", d.CurrentGamma())
	}

	// Force the recovery window into the past, then confirm gamma returns
	// to the still regime on the next environmental update.
	d.mu.Lock()
	d.shockUntil = time.Now().Add(-time.Millisecond)
	d.mu.Unlock()

	d.UpdateEnvironmentalState(false, false)
	if d.CurrentGamma() != gammaStill {
		t.Fatalf("gamma after recovery window = %v, want gammaStill", d.CurrentGamma())
	}
}

func TestDUCBShockDetectionAndRecovery(t *testing.T) {
	d := NewDUCB(false)
	d.Initialize([]string{"c1", "c2", "c3"})

	for i := 0; i < 10; i++ {
		shock := d.CheckLatencyShock("c1", 30)
		d.UpdateEnvironmentalState(false, shock)
		d.Update("c1", 30)
	}

	shock := d.CheckLatencyShock("c1", 200)
	if !shock {
		t.Fatal("expected a shock to be detected for a 200ms sample after 10x30ms baseline")
	}
	d.UpdateEnvironmentalState(false, shock)
	d.Update("c1", 200)

	if d.CurrentGamma() != gammaShock {
		t.Fatalf("gamma = %v, want gammaShock (%v)", d.CurrentGamma(), gammaShock)
	}

	// Within the recovery window, gamma stays at the shock value even
	// without a fresh shock.
	d.UpdateEnvironmentalState(false, false)
	if d.CurrentGamma() != gammaShock {
		t.Fatalf("gamma during recovery window = %v, want gammaShock", d.CurrentGamma())
	}
}

func TestDUCBMovementTransitionsGamma(t *testing.T) {
	d := NewDUCB(false)
	d.Initialize([]string{"c1", "c2"})

	if d.CurrentGamma() != gammaStill {
		t.Fatalf("initial gamma = %v, want gammaStill", d.CurrentGamma())
	}

	d.UpdateEnvironmentalState(true, false)
	if d.CurrentGamma() != gammaMove {
		t.Fatalf("gamma after movement = %v, want gammaMove", d.CurrentGamma())
	}

	d.UpdateEnvironmentalState(false, false)
	if d.CurrentGamma() != gammaMove {
		t.Fatalf("gamma should remain gammaMove once everMoved is set, got %v", d.CurrentGamma())
	}
}

func TestDUCBUpdateIncrementsTAndDecaysOtherArms(t *testing.T) {
	d := NewDUCB(false)
	d.Initialize([]string{"c1", "c2"})

	d.Update("c1", 50)
	d.Update("c2", 40)

	c1, _ := d.arms.Load("c1")
	c2Before := snapshotArm(d, "c2")

	gammaActive := d.gamma
	d.Update("c1", 60)

	c2After := snapshotArm(d, "c2")
	if math.Abs(c2After.discCount-c2Before.discCount*gammaActive) > 1e-9 {
		t.Fatalf("c2 discCount = %v, want %v (decayed by active gamma)", c2After.discCount, c2Before.discCount*gammaActive)
	}

	if d.t != 3 {
		t.Fatalf("t = %d, want 3", d.t)
	}
	_ = c1
}

func snapshotArm(d *DUCB, name string) ducbArm {
	a, _ := d.arms.Load(name)
	return *a
}

func TestDUCBSelectArmIsPermutation(t *testing.T) {
	d := NewDUCB(false)
	arms := []string{"c1", "c2", "c3"}
	d.Initialize(arms)
	for _, a := range arms {
		d.Update(a, 30)
	}

	got := d.SelectArm()
	seen := make(map[string]bool)
	for _, a := range got {
		seen[a] = true
	}
	if len(seen) != len(arms) {
		t.Fatalf("SelectArm() = %v is not a permutation of %v", got, arms)
	}
}
