package brightness

import (
	"testing"
	"time"
)

// scriptedRand returns vals in order, repeating the last one.
type scriptedRand struct {
	vals []float64
	i    int
}

func (r *scriptedRand) Float64() float64 {
	if len(r.vals) == 0 {
		return 0
	}
	if r.i >= len(r.vals) {
		return r.vals[len(r.vals)-1]
	}
	v := r.vals[r.i]
	r.i++
	return v
}

func TestFlickerTick_OnlyInsideBand(t *testing.T) {
	cfg := DefaultConfig()
	rng := NewRand(7)

	outside := []float64{0, 0.005, 0.01, 0.25, 0.3, 0.5, 1}
	for _, current := range outside {
		f := NewFlicker()
		for i := 0; i < 200; i++ {
			var plan FlickerPlan
			f, plan = FlickerTick(f, current, rng, cfg)
			if f.Factor != 1 {
				t.Fatalf("current=%v: factor changed outside band: %v", current, f.Factor)
			}
			if plan.Dip {
				t.Fatalf("current=%v: dip planned outside band", current)
			}
		}
	}

	// Inside the band dips happen at roughly 40%.
	f := NewFlicker()
	dips := 0
	for i := 0; i < 2000; i++ {
		var plan FlickerPlan
		f, plan = FlickerTick(f, 0.1, rng, cfg)
		if plan.Dip {
			dips++
			if f.Factor < 0.5 || f.Factor > 0.9 {
				t.Fatalf("dip factor out of range: %v", f.Factor)
			}
		}
		f = FlickerRestore(f, f.DipSeq)
	}
	if dips < 600 || dips > 1000 {
		t.Fatalf("expected about 800 dips out of 2000, got %d", dips)
	}
}

func TestFlickerTick_ForcedDip(t *testing.T) {
	cfg := DefaultConfig()
	// chance, depth, duration, period
	rng := &scriptedRand{vals: []float64{0.61, 0.25, 0.5, 0.5}}

	f, plan := FlickerTick(NewFlicker(), 0.1, rng, cfg)
	if !plan.Dip || !f.Dipping {
		t.Fatalf("expected dip when draw exceeds threshold")
	}
	if f.Factor != 0.6 {
		t.Fatalf("expected factor=0.6, got %v", f.Factor)
	}
	if plan.RestoreAfter != 100*time.Millisecond {
		t.Fatalf("expected restore after 100ms, got %v", plan.RestoreAfter)
	}
	if plan.Next != 300*time.Millisecond {
		t.Fatalf("expected next firing after 300ms, got %v", plan.Next)
	}

	f = FlickerRestore(f, plan.DipSeq)
	if f.Factor != 1 || f.Dipping {
		t.Fatalf("expected restore to factor=1, got %+v", f)
	}
}

func TestFlickerTick_ThresholdIsStrict(t *testing.T) {
	cfg := DefaultConfig()
	rng := &scriptedRand{vals: []float64{0.6, 0}}

	f, plan := FlickerTick(NewFlicker(), 0.1, rng, cfg)
	if plan.Dip || f.Factor != 1 {
		t.Fatalf("draw equal to threshold must not dip")
	}
	if plan.Next != 150*time.Millisecond {
		t.Fatalf("expected minimum period, got %v", plan.Next)
	}
}

func TestFlickerTick_LeavingBandResetsFactor(t *testing.T) {
	cfg := DefaultConfig()
	rng := &scriptedRand{vals: []float64{0.9, 0, 0, 0}}

	f, _ := FlickerTick(NewFlicker(), 0.1, rng, cfg)
	if f.Factor != 0.5 {
		t.Fatalf("expected factor=0.5, got %v", f.Factor)
	}

	f, _ = FlickerTick(f, 0.6, rng, cfg)
	if f.Factor != 1 || f.Dipping {
		t.Fatalf("expected factor forced to 1 outside band, got %+v", f)
	}
}

func TestFlickerRestore_IgnoresStaleSequence(t *testing.T) {
	cfg := DefaultConfig()
	rng := &scriptedRand{vals: []float64{0.9}}

	f, first := FlickerTick(NewFlicker(), 0.1, rng, cfg)
	f, second := FlickerTick(f, 0.1, rng, cfg)
	if first.DipSeq == second.DipSeq {
		t.Fatalf("expected distinct dip sequences")
	}

	dipped := f.Factor
	f = FlickerRestore(f, first.DipSeq)
	if f.Factor != dipped || !f.Dipping {
		t.Fatalf("stale restore applied: %+v", f)
	}
	f = FlickerRestore(f, second.DipSeq)
	if f.Factor != 1 {
		t.Fatalf("expected current restore to apply, got %+v", f)
	}
}
