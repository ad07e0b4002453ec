package main

import (
	"errors"
	"testing"
	"time"

	"filament/brightness"
)

func testLoopConfig() LoopConfig {
	return LoopConfig{
		UpdateHz:           60,
		LightMinInterval:   100 * time.Millisecond,
		LightPublishActive: true,
		FramePrecision:     frameOpacityPrecision,
	}
}

// frameAt builds a frame for a steady lamp at brightness current.
func frameAt(current, factor float64) Frame {
	return Frame{
		State:   brightness.State{Target: current, Current: current},
		Flicker: brightness.Flicker{Factor: factor},
		Output:  brightness.Derive(current, factor),
		Mounted: true,
	}
}

func TestReduce_FrameBroadcastOnlyOnRoundedChange(t *testing.T) {
	cfg := testLoopConfig()
	cfg.LightPublishActive = false

	rr := Reduce(&DaemonState{}, Tick{Now: t0, Dt: 1.0 / 60, Frame: frameAt(0.5, 1)}, cfg)
	if len(rr.Broadcasts) != 1 {
		t.Fatalf("expected the first frame to broadcast, got %d", len(rr.Broadcasts))
	}
	bf, ok := rr.Broadcasts[0].(BroadcastFrame)
	if !ok {
		t.Fatalf("expected BroadcastFrame, got %T", rr.Broadcasts[0])
	}
	if bf.Frame.Output.Opacity != 0.5 || !bf.At.Equal(t0) {
		t.Fatalf("unexpected broadcast: %+v", bf)
	}

	// Below the rounding precision: no broadcast, but the state keeps full precision.
	rr2 := Reduce(rr.State, Tick{Now: t0.Add(time.Second / 60), Frame: frameAt(0.5001, 1)}, cfg)
	if len(rr2.Broadcasts) != 0 {
		t.Fatalf("expected no broadcast for a sub-precision change, got %d", len(rr2.Broadcasts))
	}
	if rr2.State.Frame.State.Current != 0.5001 {
		t.Fatalf("state must keep the unrounded frame, got %v", rr2.State.Frame.State.Current)
	}

	// A flicker dip changes the opacity without moving the brightness.
	rr3 := Reduce(rr2.State, Tick{Now: t0.Add(2 * time.Second / 60), Frame: frameAt(0.5001, 0.6)}, cfg)
	if len(rr3.Broadcasts) != 1 {
		t.Fatalf("expected a broadcast for a flicker dip, got %d", len(rr3.Broadcasts))
	}
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	s := &DaemonState{}
	rr := Reduce(s, Tick{Now: t0, Frame: frameAt(0.3, 1)}, testLoopConfig())
	if s.Broadcast.Sent || s.Light.LastPublishAt != (time.Time{}) || s.FrameAt != (time.Time{}) {
		t.Fatalf("reducer mutated its input: %+v", s)
	}
	if rr.State == s {
		t.Fatalf("reducer must return a new state")
	}
}

func TestReduce_LightPublishThrottled(t *testing.T) {
	cfg := testLoopConfig()
	s := &DaemonState{}

	rr := Reduce(s, Tick{Now: t0, Frame: frameAt(0.5, 1)}, cfg)
	if len(rr.Commands) != 1 {
		t.Fatalf("expected a light command on the first frame, got %d", len(rr.Commands))
	}
	cmd, ok := rr.Commands[0].(CmdPublishLight)
	if !ok {
		t.Fatalf("expected CmdPublishLight, got %T", rr.Commands[0])
	}
	if cmd.Level != 128 || !cmd.On {
		t.Fatalf("expected level 128 (round(0.5*255)), got %+v", cmd)
	}
	s = Reduce(rr.State, LightPublished{Level: cmd.Level, On: cmd.On, At: t0}, cfg).State

	// Changed, but within the minimum interval.
	rr = Reduce(s, Tick{Now: t0.Add(50 * time.Millisecond), Frame: frameAt(0.6, 1)}, cfg)
	if len(rr.Commands) != 0 {
		t.Fatalf("expected throttling inside the interval, got %v", rr.Commands)
	}
	s = rr.State

	// Due again.
	rr = Reduce(s, Tick{Now: t0.Add(100 * time.Millisecond), Frame: frameAt(0.6, 1)}, cfg)
	if len(rr.Commands) != 1 || rr.Commands[0].(CmdPublishLight).Level != 153 {
		t.Fatalf("expected level 153 once due, got %v", rr.Commands)
	}
	s = Reduce(rr.State, LightPublished{Level: 153, On: true, At: t0.Add(100 * time.Millisecond)}, cfg).State

	// Unchanged level never republishes.
	rr = Reduce(s, Tick{Now: t0.Add(time.Second), Frame: frameAt(0.6, 1)}, cfg)
	if len(rr.Commands) != 0 {
		t.Fatalf("expected no command for an unchanged level, got %v", rr.Commands)
	}
}

func TestReduce_LightOff(t *testing.T) {
	rr := Reduce(&DaemonState{}, Tick{Now: t0, Frame: frameAt(0, 1)}, testLoopConfig())
	if len(rr.Commands) != 1 {
		t.Fatalf("expected the initial state to be published, got %d", len(rr.Commands))
	}
	if cmd := rr.Commands[0].(CmdPublishLight); cmd.Level != 0 || cmd.On {
		t.Fatalf("expected OFF at level 0, got %+v", cmd)
	}
}

func TestReduce_LightPublishFailedRetries(t *testing.T) {
	cfg := testLoopConfig()
	rr := Reduce(&DaemonState{}, Tick{Now: t0, Frame: frameAt(0.5, 1)}, cfg)
	s := Reduce(rr.State, LightPublished{Level: 128, On: true, At: t0}, cfg).State

	rr = Reduce(s, Tick{Now: t0.Add(200 * time.Millisecond), Frame: frameAt(0.2, 1)}, cfg)
	if len(rr.Commands) != 1 {
		t.Fatalf("expected a command, got %d", len(rr.Commands))
	}
	s = Reduce(rr.State, LightPublishFailed{Command: rr.Commands[0], Err: errors.New("broker down"), At: t0}, cfg).State
	if s.Light.Known || s.Light.Failures != 1 {
		t.Fatalf("expected the light to become unknown, got %+v", s.Light)
	}

	// Same level as the failed attempt is retried once due.
	rr = Reduce(s, Tick{Now: t0.Add(300 * time.Millisecond), Frame: frameAt(0.2, 1)}, cfg)
	if len(rr.Commands) != 1 {
		t.Fatalf("expected a retry after failure, got %d", len(rr.Commands))
	}
}

func TestReduce_LightPublishedBroadcastsChanges(t *testing.T) {
	cfg := testLoopConfig()
	rr := Reduce(&DaemonState{}, LightPublished{Level: 40, On: true, At: t0}, cfg)
	if len(rr.Broadcasts) != 1 {
		t.Fatalf("expected a light broadcast, got %d", len(rr.Broadcasts))
	}
	if b := rr.Broadcasts[0].(BroadcastLightChanged); b.Level != 40 || !b.On {
		t.Fatalf("unexpected broadcast: %+v", b)
	}

	rr = Reduce(rr.State, LightPublished{Level: 40, On: true, At: t0.Add(time.Second)}, cfg)
	if len(rr.Broadcasts) != 0 {
		t.Fatalf("expected no broadcast for an unchanged light")
	}
	if !rr.State.Light.At.Equal(t0.Add(time.Second)) {
		t.Fatalf("expected the observation time to refresh")
	}
}

func TestReduce_SnapshotRequest(t *testing.T) {
	cfg := testLoopConfig()
	s := Reduce(&DaemonState{}, Tick{Now: t0, Frame: frameAt(0.4, 1)}, cfg).State
	s = Reduce(s, TimedEvent{Event: Wheel{DeltaY: -100}, At: t0}, cfg).State
	s = Reduce(s, TimedEvent{Event: TouchEnd{}, At: t0.Add(time.Second)}, cfg).State

	reply := make(chan StateSnapshot, 1)
	rr := Reduce(s, RequestStateSnapshot{Reply: reply}, cfg)
	if len(rr.Commands) != 1 {
		t.Fatalf("expected one command, got %d", len(rr.Commands))
	}
	cmd, ok := rr.Commands[0].(CmdPublishStateSnapshot)
	if !ok {
		t.Fatalf("expected CmdPublishStateSnapshot, got %T", rr.Commands[0])
	}
	snap := cmd.Snapshot
	if snap.Frame.Output.Opacity != 0.4 || !snap.FrameAt.Equal(t0) {
		t.Fatalf("unexpected frame in snapshot: %+v", snap)
	}
	if snap.Inputs.Count != 2 || snap.Inputs.LastType != typeTouchEnd {
		t.Fatalf("unexpected input stats: %+v", snap.Inputs)
	}
	if len(rr.Broadcasts) != 0 {
		t.Fatalf("snapshot requests must not broadcast")
	}
}

func TestLightLevel(t *testing.T) {
	tests := []struct {
		opacity float64
		want    int
	}{
		{-1, 0}, {0, 0}, {0.001, 0}, {0.002, 1}, {0.5, 128}, {1, 255}, {3, 255},
	}
	for _, tt := range tests {
		if got := lightLevel(tt.opacity); got != tt.want {
			t.Fatalf("lightLevel(%v) = %d, want %d", tt.opacity, got, tt.want)
		}
	}
}
