package brightness

import (
	"math/rand/v2"
	"time"
)

// Rand is the random source behind flicker probability, dip depth and timer jitter.
// *rand.Rand from math/rand/v2 satisfies it; tests pass scripted sources.
type Rand interface {
	Float64() float64
}

// NewRand returns a seeded PCG source.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// FlickerPlan tells the host what to schedule after a FlickerTick.
type FlickerPlan struct {
	// Next is the delay until the following FlickerTick.
	Next time.Duration

	// Dip is true when a dip started. The host must call FlickerRestore with DipSeq
	// after RestoreAfter.
	Dip          bool
	RestoreAfter time.Duration
	DipSeq       uint64
}

// InFlickerBand reports whether current is strictly inside the unstable band.
func InFlickerBand(current float64, cfg Config) bool {
	return current > cfg.FlickerBandLow && current < cfg.FlickerBandHigh
}

// FlickerTick runs one firing of the flicker scheduler.
//
// Inside the band a dip starts with probability 1-FlickerThreshold. Outside the band
// the factor is forced back to 1 immediately. The random draws happen in a fixed order
// (chance, depth, duration, period) so a scripted source is reproducible.
func FlickerTick(f Flicker, current float64, rng Rand, cfg Config) (Flicker, FlickerPlan) {
	if rng == nil {
		rng = globalRand{}
	}

	var plan FlickerPlan
	if InFlickerBand(current, cfg) {
		if rng.Float64() > cfg.FlickerThreshold {
			f.Factor = clampFactor(cfg.DipMin + rng.Float64()*cfg.DipSpan)
			f.DipSeq++
			f.Dipping = true

			plan.Dip = true
			plan.DipSeq = f.DipSeq
			plan.RestoreAfter = cfg.DipMinDuration + jitter(rng, cfg.DipSpanDuration)
		}
	} else {
		f.Factor = 1
		f.Dipping = false
	}

	plan.Next = cfg.FlickerMinPeriod + jitter(rng, cfg.FlickerSpanPeriod)
	if plan.Next <= 0 {
		plan.Next = DefaultFlickerMinPeriod
	}
	return f, plan
}

// FlickerRestore ends the dip identified by seq. Stale restores are ignored.
func FlickerRestore(f Flicker, seq uint64) Flicker {
	if !f.Dipping || f.DipSeq != seq {
		return f
	}
	f.Factor = 1
	f.Dipping = false
	return f
}

// jitter draws a duration uniformly from [0, span).
func jitter(rng Rand, span time.Duration) time.Duration {
	if span <= 0 {
		return 0
	}
	return time.Duration(rng.Float64() * float64(span))
}
