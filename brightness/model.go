package brightness

import (
	"math"
	"time"
)

// Controller defaults.
const (
	DefaultWheelSensitivity = 0.001 // brightness per wheel pixel
	DefaultTouchSensitivity = 0.003 // brightness per dragged pixel

	// Spring constants. Heavy damping gives the control a weighted feel:
	// damping ratio = 20 / (2*sqrt(50*1)) ~= 1.41, so the spring never rings.
	DefaultStiffness = 50.0
	DefaultDamping   = 20.0
	DefaultMass      = 1.0

	// Flicker band bounds (exclusive).
	DefaultFlickerBandLow  = 0.01
	DefaultFlickerBandHigh = 0.25

	// A dip starts when the uniform draw exceeds this threshold (40% chance).
	DefaultFlickerThreshold = 0.6

	DefaultDipMin  = 0.5 // smallest dip factor
	DefaultDipSpan = 0.4 // dip factor is DipMin + DipSpan*u

	DefaultDipMinDuration  = 50 * time.Millisecond
	DefaultDipSpanDuration = 100 * time.Millisecond

	DefaultFlickerMinPeriod  = 150 * time.Millisecond
	DefaultFlickerSpanPeriod = 300 * time.Millisecond
)

// Config contains all tunable parameters of the controller.
type Config struct {
	WheelSensitivity float64
	TouchSensitivity float64

	Stiffness float64
	Damping   float64
	Mass      float64

	FlickerBandLow   float64
	FlickerBandHigh  float64
	FlickerThreshold float64

	DipMin          float64
	DipSpan         float64
	DipMinDuration  time.Duration
	DipSpanDuration time.Duration

	FlickerMinPeriod  time.Duration
	FlickerSpanPeriod time.Duration
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		WheelSensitivity:  DefaultWheelSensitivity,
		TouchSensitivity:  DefaultTouchSensitivity,
		Stiffness:         DefaultStiffness,
		Damping:           DefaultDamping,
		Mass:              DefaultMass,
		FlickerBandLow:    DefaultFlickerBandLow,
		FlickerBandHigh:   DefaultFlickerBandHigh,
		FlickerThreshold:  DefaultFlickerThreshold,
		DipMin:            DefaultDipMin,
		DipSpan:           DefaultDipSpan,
		DipMinDuration:    DefaultDipMinDuration,
		DipSpanDuration:   DefaultDipSpanDuration,
		FlickerMinPeriod:  DefaultFlickerMinPeriod,
		FlickerSpanPeriod: DefaultFlickerSpanPeriod,
	}
}

// State is the spring-smoothed brightness.
//
// Input handlers only ever write Target. Step is the only writer of Current and Velocity.
type State struct {
	Target   float64 `json:"target"`
	Current  float64 `json:"current"`
	Velocity float64 `json:"velocity"`
}

// Flicker is the multiplicative dimming applied on top of State.Current.
type Flicker struct {
	// Factor is always in (0,1]. 1 means no dip.
	Factor float64 `json:"factor"`

	// NextToggleAt is when the flicker scheduler fires next (zero while unmounted).
	NextToggleAt time.Time `json:"next_toggle_at"`

	// DipSeq identifies the in-flight dip. A restore carrying an older sequence is stale.
	DipSeq uint64 `json:"-"`
	// Dipping is true between a dip and its restore.
	Dipping bool `json:"dipping"`
}

// NewFlicker returns a flicker at rest.
func NewFlicker() Flicker {
	return Flicker{Factor: 1}
}

// clamp01 clamps v to [0,1]. NaN collapses to 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// nanToZero drops NaN input samples. Infinities are left for clamp01.
func nanToZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// clampFactor keeps a flicker factor inside (0,1].
func clampFactor(f float64) float64 {
	if math.IsNaN(f) || f > 1 {
		return 1
	}
	if f <= 0 {
		return math.SmallestNonzeroFloat64
	}
	return f
}
