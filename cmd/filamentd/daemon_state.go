package main

import "time"

// DaemonState is the reducer-owned state container.
//
// The controller itself lives in the daemon loop (it owns timers). The reducer
// only sees the frame the loop hands it on every Tick, plus what it observed from
// the light sink and the input sources.
type DaemonState struct {
	// Frame is the latest frame reported by the loop.
	Frame   Frame
	FrameAt time.Time

	// Broadcast remembers what subscribers last saw.
	Broadcast BroadcastState

	// Light is the cached view of the external lamp (MQTT).
	Light LightState

	Inputs InputStats
}

// BroadcastState holds the rounded key of the last broadcast frame.
type BroadcastState struct {
	Sent bool
	Key  frameKey
}

// frameKey is a frame output rounded to the broadcast precision.
type frameKey struct {
	Opacity float64
	Current float64
}

// LightState is the daemon's view of the lamp behind the light sink.
type LightState struct {
	Level int       `json:"level"` // 0..255
	On    bool      `json:"on"`
	Known bool      `json:"known"`
	At    time.Time `json:"at"`

	// LastPublishAt throttles CmdPublishLight.
	LastPublishAt time.Time `json:"-"`
	Failures      int       `json:"failures"`
}

// InputStats counts reduced actions.
type InputStats struct {
	Count    uint64    `json:"count"`
	LastType string    `json:"last_type,omitempty"`
	LastAt   time.Time `json:"last_at"`
}

// StateSnapshot is a coherent, read-only view of the daemon, served to IPC/HTTP/WS
// clients.
type StateSnapshot struct {
	Frame   Frame      `json:"frame"`
	FrameAt time.Time  `json:"frame_at"`
	Light   LightState `json:"light"`
	Inputs  InputStats `json:"inputs"`
}

// Snapshot returns a copy of the state suitable for publishing.
func (s *DaemonState) Snapshot() StateSnapshot {
	if s == nil {
		return StateSnapshot{}
	}
	return StateSnapshot{
		Frame:   s.Frame,
		FrameAt: s.FrameAt,
		Light:   s.Light,
		Inputs:  s.Inputs,
	}
}
