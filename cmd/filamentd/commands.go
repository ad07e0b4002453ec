package main

import (
	"fmt"
	"time"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop.
type Command interface {
	commandMarker()
	String() string
}

// CmdPublishLight pushes the lamp level to the light sink (MQTT).
type CmdPublishLight struct {
	Level int // 0..255
	On    bool
}

func (CmdPublishLight) commandMarker() {}
func (c CmdPublishLight) String() string {
	return fmt.Sprintf("CmdPublishLight(level=%d, on=%v)", c.Level, c.On)
}

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan<- StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }

// ==============================
// Broadcasts (state fan-out)
// ==============================

// StateBroadcast is a reducer-emitted, externally consumable state change.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastFrame carries the derived output of a frame whose rounded value changed.
type BroadcastFrame struct {
	Frame Frame
	At    time.Time
}

func (BroadcastFrame) broadcastMarker() {}

// BroadcastLightChanged is emitted when the sink confirms a new lamp level.
type BroadcastLightChanged struct {
	Level int
	On    bool
	At    time.Time
}

func (BroadcastLightChanged) broadcastMarker() {}
