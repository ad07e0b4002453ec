package brightness

// Both input modes are relative: a wheel notch or a drag moves the target by a
// delta, like turning a physical scroll wheel. Nothing maps an absolute position
// to a brightness value.

// Touch tracks the reference position of an in-progress drag.
type Touch struct {
	Y      float64
	Active bool
}

// Wheel applies a wheel delta (screen pixels, positive = scroll down) to the target.
// Scrolling up (negative deltaY) increases brightness.
func Wheel(s State, deltaY float64, cfg Config) State {
	delta := -nanToZero(deltaY) * cfg.WheelSensitivity
	s.Target = clamp01(s.Target + nanToZero(delta))
	return s
}

// TouchStart records the reference position for a new drag. The target is not touched.
func TouchStart(y float64) Touch {
	return Touch{Y: nanToZero(y), Active: true}
}

// TouchMove applies the drag from the reference position to y and moves the reference to y.
// Dragging upward (y decreasing) increases brightness.
//
// A move without a preceding start adopts y as the reference and leaves the target as is.
func TouchMove(s State, t Touch, y float64, cfg Config) (State, Touch) {
	y = nanToZero(y)
	if !t.Active {
		return s, Touch{Y: y, Active: true}
	}

	delta := (t.Y - y) * cfg.TouchSensitivity
	s.Target = clamp01(s.Target + nanToZero(delta))
	t.Y = y
	return s, t
}

// TouchEnd finishes a drag.
func TouchEnd() Touch {
	return Touch{}
}

// SetTarget sets the target directly (used by hosts for absolute requests).
func SetTarget(s State, target float64) State {
	s.Target = clamp01(target)
	return s
}
