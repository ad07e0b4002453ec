// Package brightness turns wheel and touch input into a spring-smoothed brightness
// in [0,1], dims it with a random flicker while it sits in a low unstable band, and
// derives the colors a renderer needs.
//
// The step functions (Wheel, TouchMove, Step, FlickerTick, Derive) are pure.
// Controller strings them together with a Scheduler and owns the mount lifecycle:
// after Unmount no timer it armed can fire into its state.
package brightness
