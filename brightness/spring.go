package brightness

import (
	"math"

	"github.com/charmbracelet/harmonica"
)

// springParams converts mass/stiffness/damping into harmonica's angular frequency and damping ratio.
func springParams(cfg Config) (angularFrequency, dampingRatio float64) {
	mass := cfg.Mass
	if mass <= 0 {
		mass = DefaultMass
	}
	k := math.Max(cfg.Stiffness, 0)
	c := math.Max(cfg.Damping, 0)

	angularFrequency = math.Sqrt(k / mass)
	if k == 0 {
		return 0, 0
	}
	dampingRatio = c / (2 * math.Sqrt(k*mass))
	return angularFrequency, dampingRatio
}

// Step advances the spring by dt seconds, moving Current toward Target.
//
// The spring is solved analytically, so a large dt (dropped frames) integrates the
// full elapsed time in one step without going unstable. dt <= 0 leaves s unchanged.
func Step(s State, dt float64, cfg Config) State {
	if !(dt > 0) || math.IsInf(dt, 1) {
		return s
	}

	freq, ratio := springParams(cfg)
	spring := harmonica.NewSpring(dt, freq, ratio)
	pos, vel := spring.Update(s.Current, s.Velocity, s.Target)

	if math.IsNaN(pos) || math.IsNaN(vel) {
		// Degenerate coefficients; settle on the target.
		pos, vel = s.Target, 0
	}

	// Clamp to the legal range and kill velocity at the walls.
	if pos <= 0 {
		pos, vel = 0, 0
	} else if pos >= 1 {
		pos, vel = 1, 0
	}

	s.Current = pos
	s.Velocity = vel
	return s
}

// Settled reports whether the spring is within eps of its target and effectively at rest.
func Settled(s State, eps float64) bool {
	return math.Abs(s.Current-s.Target) <= eps && math.Abs(s.Velocity) <= eps
}
