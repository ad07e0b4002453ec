package brightness

import "time"

// InputResult tells the host what to do with the platform event it delivered.
type InputResult struct {
	// PreventDefault suppresses the platform default (page scroll).
	PreventDefault bool
	// StopPropagation keeps the event from reaching enclosing handlers.
	StopPropagation bool
}

// Controller owns one brightness control: spring state, flicker state and the
// touch reference, plus the timers of its flicker loop.
//
// A Controller is not safe for concurrent use. The host calls every method, and
// runs every Scheduler callback, on one owner goroutine.
type Controller struct {
	cfg Config
	rng Rand

	state   State
	flicker Flicker
	touch   Touch

	sched   Scheduler
	mounted bool
	// gen changes on every Mount and Unmount. Callbacks capture it and do nothing
	// once it moved on.
	gen uint64

	flickerTimer Timer
	restoreTimer Timer
}

// New creates an unmounted controller with Target=0. A nil rng falls back to the
// process-wide generator.
func New(cfg Config, rng Rand) *Controller {
	if rng == nil {
		rng = globalRand{}
	}
	return &Controller{
		cfg:     cfg,
		rng:     rng,
		flicker: NewFlicker(),
	}
}

// Mount attaches the controller to a scheduler and starts the flicker loop.
// The first flicker firing runs synchronously. Mounting a mounted controller is a no-op.
func (c *Controller) Mount(s Scheduler) {
	if c.mounted || s == nil {
		return
	}
	c.sched = s
	c.mounted = true
	c.gen++
	c.runFlicker(c.gen)
}

// Unmount cancels the flicker loop and any in-flight restore, and detaches input.
// After it returns no scheduled callback can change the controller's state.
func (c *Controller) Unmount() {
	if !c.mounted {
		return
	}
	c.mounted = false
	c.gen++
	stopTimer(&c.flickerTimer)
	stopTimer(&c.restoreTimer)
	c.touch = TouchEnd()
	c.flicker.NextToggleAt = time.Time{}
	c.sched = nil
}

// Mounted reports whether the controller is attached.
func (c *Controller) Mounted() bool { return c.mounted }

// ============================================================================
// Input
// ============================================================================

// OnWheel applies a wheel delta. While mounted the event is consumed.
func (c *Controller) OnWheel(deltaY float64) InputResult {
	if !c.mounted {
		return InputResult{}
	}
	c.state = Wheel(c.state, deltaY, c.cfg)
	return InputResult{PreventDefault: true, StopPropagation: true}
}

// OnTouchStart records the drag reference. Touch start is passive.
func (c *Controller) OnTouchStart(y float64) InputResult {
	if !c.mounted {
		return InputResult{}
	}
	c.touch = TouchStart(y)
	return InputResult{}
}

// OnTouchMove applies a drag step. Default scrolling is suppressed only when the
// platform allows it (cancelable).
func (c *Controller) OnTouchMove(y float64, cancelable bool) InputResult {
	if !c.mounted {
		return InputResult{}
	}
	c.state, c.touch = TouchMove(c.state, c.touch, y, c.cfg)
	return InputResult{PreventDefault: cancelable, StopPropagation: true}
}

// OnTouchEnd finishes the drag.
func (c *Controller) OnTouchEnd() InputResult {
	if !c.mounted {
		return InputResult{}
	}
	c.touch = TouchEnd()
	return InputResult{}
}

// SetTarget moves the target directly, clamped.
func (c *Controller) SetTarget(target float64) {
	if !c.mounted {
		return
	}
	c.state = SetTarget(c.state, target)
}

// ============================================================================
// Animation and flicker
// ============================================================================

// Tick advances the spring by dt seconds. Hosts pass the full elapsed time since
// the previous tick, including dropped frames.
func (c *Controller) Tick(dt float64) {
	if !c.mounted {
		return
	}
	c.state = Step(c.state, dt, c.cfg)
}

// FlickerTick runs the flicker scheduler now and restarts its period.
func (c *Controller) FlickerTick() {
	if !c.mounted {
		return
	}
	stopTimer(&c.flickerTimer)
	c.runFlicker(c.gen)
}

func (c *Controller) runFlicker(gen uint64) {
	if !c.mounted || gen != c.gen {
		return
	}

	f, plan := FlickerTick(c.flicker, c.state.Current, c.rng, c.cfg)
	if plan.Dip {
		stopTimer(&c.restoreTimer)
		seq := plan.DipSeq
		c.restoreTimer = c.sched.AfterFunc(plan.RestoreAfter, func() {
			c.restore(gen, seq)
		})
	} else if !f.Dipping {
		stopTimer(&c.restoreTimer)
	}

	f.NextToggleAt = c.sched.Now().Add(plan.Next)
	c.flicker = f
	c.flickerTimer = c.sched.AfterFunc(plan.Next, func() {
		c.runFlicker(gen)
	})
}

func (c *Controller) restore(gen, seq uint64) {
	if !c.mounted || gen != c.gen {
		return
	}
	c.restoreTimer = nil
	c.flicker = FlickerRestore(c.flicker, seq)
}

func stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// ============================================================================
// Read side
// ============================================================================

// State returns the spring state.
func (c *Controller) State() State { return c.state }

// Flicker returns the flicker state.
func (c *Controller) Flicker() Flicker { return c.flicker }

// Touch returns the drag reference.
func (c *Controller) Touch() Touch { return c.touch }

// Config returns the controller tuning.
func (c *Controller) Config() Config { return c.cfg }

// Output derives the frame output from the current state.
func (c *Controller) Output() Output {
	return Derive(c.state.Current, c.flicker.Factor)
}
