package main

import "math"

// ReduceResult is the output of Reduce(): next state plus Commands to execute and
// Broadcasts to fan out.
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate its input state; the next state is returned
//
// The daemon loop must:
// - execute Commands
// - translate responses into Events
// - feed those Events back into Reduce()
func Reduce(s *DaemonState, e Event, cfg LoopConfig) ReduceResult {
	var next DaemonState
	if s != nil {
		next = *s
	}

	var cmds []Command
	var bcasts []StateBroadcast

	switch ev := e.(type) {
	case Tick:
		next.Frame = ev.Frame
		next.FrameAt = ev.Now

		// Frames only go out when their rounded value moved.
		key := roundFrame(ev.Frame, cfg.FramePrecision)
		if !next.Broadcast.Sent || key != next.Broadcast.Key {
			next.Broadcast = BroadcastState{Sent: true, Key: key}
			bcasts = append(bcasts, BroadcastFrame{Frame: ev.Frame, At: ev.Now})
		}

		if cfg.LightPublishActive {
			level := lightLevel(ev.Frame.Output.Opacity)
			changed := !next.Light.Known || level != next.Light.Level
			due := next.Light.LastPublishAt.IsZero() || ev.Now.Sub(next.Light.LastPublishAt) >= cfg.LightMinInterval
			if changed && due {
				next.Light.LastPublishAt = ev.Now
				cmds = append(cmds, CmdPublishLight{Level: level, On: level > 0})
			}
		}

	case TimedEvent:
		next.Inputs.Count++
		next.Inputs.LastType = actionType(ev.Event)
		next.Inputs.LastAt = ev.At

	case RequestStateSnapshot:
		cmds = append(cmds, CmdPublishStateSnapshot{
			Reply:    ev.Reply,
			Snapshot: next.Snapshot(),
		})

	case LightPublished:
		changed := !next.Light.Known || next.Light.Level != ev.Level || next.Light.On != ev.On
		next.Light.Level = ev.Level
		next.Light.On = ev.On
		next.Light.Known = true
		next.Light.At = ev.At
		next.Light.Failures = 0
		if changed {
			bcasts = append(bcasts, BroadcastLightChanged{Level: ev.Level, On: ev.On, At: ev.At})
		}

	case LightPublishFailed:
		// Forget the level so the next due tick retries.
		next.Light.Known = false
		next.Light.Failures++
	}

	return ReduceResult{
		State:      &next,
		Commands:   cmds,
		Broadcasts: bcasts,
	}
}

// lightLevel maps a displayed opacity to the 0..255 range of the light sink.
func lightLevel(opacity float64) int {
	if !(opacity > 0) {
		return 0
	}
	if opacity >= 1 {
		return 255
	}
	return int(math.Round(opacity * 255))
}

func roundFrame(f Frame, precision float64) frameKey {
	return frameKey{
		Opacity: roundTo(f.Output.Opacity, precision),
		Current: roundTo(f.State.Current, precision),
	}
}

func roundTo(v, precision float64) float64 {
	if precision <= 0 {
		return v
	}
	return math.Round(v/precision) * precision
}
