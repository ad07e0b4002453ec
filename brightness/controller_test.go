package brightness

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Unix(1000, 0).UTC()

// recordingScheduler keeps every callback so a test can fire them at will,
// including after they were stopped.
type recordingScheduler struct {
	now       time.Time
	callbacks []func()
}

type noopTimer struct{}

func (noopTimer) Stop() bool { return true }

func (s *recordingScheduler) Now() time.Time { return s.now }

func (s *recordingScheduler) AfterFunc(_ time.Duration, f func()) Timer {
	s.callbacks = append(s.callbacks, f)
	return noopTimer{}
}

// tickUntil drives the spring at 60 fps until current is within eps of want.
func tickUntil(t *testing.T, c *Controller, want, eps float64) {
	t.Helper()
	for i := 0; i < 600; i++ {
		if math.Abs(c.State().Current-want) < eps {
			return
		}
		c.Tick(frameDt)
	}
	t.Fatalf("current did not reach %v: %+v", want, c.State())
}

func TestController_WheelScenario(t *testing.T) {
	sched := NewVirtualScheduler(t0)
	c := New(DefaultConfig(), NewRand(1))
	c.Mount(sched)
	defer c.Unmount()

	res := c.OnWheel(-500)
	if !res.PreventDefault || !res.StopPropagation {
		t.Fatalf("expected wheel to be consumed, got %+v", res)
	}
	if math.Abs(c.State().Target-0.5) > 1e-12 {
		t.Fatalf("expected target=0.5, got %v", c.State().Target)
	}
	if c.State().Current != 0 {
		t.Fatalf("input must not move current")
	}

	for i := 0; i < 300; i++ {
		c.Tick(frameDt)
	}
	if got := c.State().Current; math.Abs(got-0.5) > 0.01 {
		t.Fatalf("expected current within 0.01 of 0.5, got %v", got)
	}
}

func TestController_TouchEventResults(t *testing.T) {
	c := New(DefaultConfig(), NewRand(1))
	c.Mount(NewVirtualScheduler(t0))
	defer c.Unmount()

	if res := c.OnTouchStart(500); res.PreventDefault || res.StopPropagation {
		t.Fatalf("touch start must be passive, got %+v", res)
	}

	res := c.OnTouchMove(400, true)
	if !res.PreventDefault || !res.StopPropagation {
		t.Fatalf("expected cancelable move to be consumed, got %+v", res)
	}
	if math.Abs(c.State().Target-0.3) > 1e-12 {
		t.Fatalf("expected target=0.3, got %v", c.State().Target)
	}

	res = c.OnTouchMove(300, false)
	if res.PreventDefault || !res.StopPropagation {
		t.Fatalf("non-cancelable move must not prevent default, got %+v", res)
	}
	if math.Abs(c.State().Target-0.6) > 1e-12 {
		t.Fatalf("expected target=0.6, got %v", c.State().Target)
	}

	c.OnTouchEnd()
	if c.Touch().Active {
		t.Fatalf("expected touch to end")
	}
}

func TestController_ForcedFlickerDipRestoresInWindow(t *testing.T) {
	sched := NewVirtualScheduler(t0)
	// Every draw is 0.99: mount (outside band) consumes one period draw, then the
	// forced tick dips to 0.896 for 149ms.
	c := New(DefaultConfig(), &scriptedRand{vals: []float64{0.99}})
	c.Mount(sched)
	defer c.Unmount()

	c.SetTarget(0.1)
	tickUntil(t, c, 0.1, 1e-4)
	if !InFlickerBand(c.State().Current, c.Config()) {
		t.Fatalf("expected current inside band, got %v", c.State().Current)
	}

	c.FlickerTick()
	f := c.Flicker()
	if f.Factor < 0.5 || f.Factor > 0.9 {
		t.Fatalf("expected factor in [0.5,0.9], got %v", f.Factor)
	}
	if next := f.NextToggleAt.Sub(t0); next < 150*time.Millisecond || next > 450*time.Millisecond {
		t.Fatalf("next toggle outside the 150-450ms period: %v", next)
	}

	sched.Advance(50 * time.Millisecond)
	if c.Flicker().Factor == 1 {
		t.Fatalf("dip restored before 50ms")
	}

	sched.Advance(100 * time.Millisecond)
	if c.Flicker().Factor != 1 {
		t.Fatalf("expected factor restored within 150ms, got %v", c.Flicker().Factor)
	}
}

func TestController_FlickerLoopIgnoresBrightLamp(t *testing.T) {
	sched := NewVirtualScheduler(t0)
	c := New(DefaultConfig(), NewRand(3))
	c.Mount(sched)
	defer c.Unmount()

	c.SetTarget(0.8)
	tickUntil(t, c, 0.8, 1e-3)

	for i := 0; i < 100; i++ {
		sched.Advance(100 * time.Millisecond)
		if c.Flicker().Factor != 1 {
			t.Fatalf("flicker active at current=%v", c.State().Current)
		}
	}
	// One loop timer, never a restore.
	if got := sched.Pending(); got != 1 {
		t.Fatalf("expected exactly the loop timer pending, got %d", got)
	}
}

func TestController_UnmountFreezesState(t *testing.T) {
	sched := NewVirtualScheduler(t0)
	c := New(DefaultConfig(), &scriptedRand{vals: []float64{0.99}})
	c.Mount(sched)

	c.SetTarget(0.1)
	c.Tick(0.2)
	c.FlickerTick()
	if !c.Flicker().Dipping {
		t.Fatalf("expected an in-flight dip before unmount")
	}
	if sched.Pending() != 2 {
		t.Fatalf("expected loop and restore timers, got %d", sched.Pending())
	}

	c.Unmount()
	if got := sched.Pending(); got != 0 {
		t.Fatalf("expected no pending timers after unmount, got %d", got)
	}

	state, flicker := c.State(), c.Flicker()

	if fired := sched.Advance(time.Hour); fired != 0 {
		t.Fatalf("expected no callbacks after unmount, %d fired", fired)
	}
	c.Tick(1)
	c.FlickerTick()
	c.SetTarget(1)
	if res := c.OnWheel(-1000); res.PreventDefault || res.StopPropagation {
		t.Fatalf("detached controller must not consume input, got %+v", res)
	}
	c.OnTouchStart(10)
	c.OnTouchMove(0, true)

	if c.State() != state {
		t.Fatalf("state changed after unmount: %+v -> %+v", state, c.State())
	}
	if c.Flicker() != flicker {
		t.Fatalf("flicker changed after unmount: %+v -> %+v", flicker, c.Flicker())
	}
}

func TestController_StaleCallbacksAfterUnmount(t *testing.T) {
	sched := &recordingScheduler{now: t0}
	c := New(DefaultConfig(), &scriptedRand{vals: []float64{0.99}})
	c.Mount(sched)

	c.SetTarget(0.1)
	c.Tick(0.2)
	c.FlickerTick()
	c.Unmount()

	state, flicker := c.State(), c.Flicker()

	// Fire everything that was ever scheduled, as a racing timer would.
	for _, f := range sched.callbacks {
		f()
	}

	if c.State() != state || c.Flicker() != flicker {
		t.Fatalf("stale callback mutated state")
	}
	if c.Flicker().Factor == 1 {
		t.Fatalf("expected the dip to stay frozen")
	}
}

func TestController_RemountIgnoresOldCallbacks(t *testing.T) {
	sched := &recordingScheduler{now: t0}
	c := New(DefaultConfig(), &scriptedRand{vals: []float64{0.99}})
	c.Mount(sched)
	c.SetTarget(0.1)
	c.Tick(0.2)
	c.FlickerTick()
	old := len(sched.callbacks)
	c.Unmount()

	c.Mount(sched)
	c.FlickerTick()
	dipped := c.Flicker()

	for _, f := range sched.callbacks[:old] {
		f()
	}
	if c.Flicker() != dipped {
		t.Fatalf("callback from a previous mount applied")
	}
}

func TestController_OutputMatchesState(t *testing.T) {
	c := New(DefaultConfig(), &scriptedRand{vals: []float64{0.99}})
	c.Mount(NewVirtualScheduler(t0))
	defer c.Unmount()

	c.SetTarget(0.2)
	c.Tick(0.5)
	c.FlickerTick()

	out := c.Output()
	want := c.State().Current * c.Flicker().Factor
	if out.Opacity != want {
		t.Fatalf("expected opacity=%v, got %v", want, out.Opacity)
	}
}
