package main

import (
	"encoding/json"
	"fmt"
	"time"

	"filament/brightness"
)

// ============================================================================
// Events
// ============================================================================
// Events are the input to the reducer: user actions (from input devices, IPC,
// HTTP and MQTT), frame ticks and observations produced by effects.
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// Action is a user intent. Actions are applied to the controller by the daemon
// loop and then reduced (wrapped in TimedEvent) for bookkeeping.
type Action interface {
	Event
	actionMarker()
}

// Wheel is a wheel delta in screen pixels (positive = scroll down).
type Wheel struct {
	DeltaY float64 `json:"delta_y"`
}

// TouchStart begins a drag at screen Y.
type TouchStart struct {
	Y float64 `json:"y"`
}

// TouchMove continues a drag to screen Y.
type TouchMove struct {
	Y          float64 `json:"y"`
	Cancelable bool    `json:"cancelable"`
}

// TouchEnd finishes a drag.
type TouchEnd struct{}

// SetTarget moves the brightness target directly.
type SetTarget struct {
	Target float64 `json:"target"`
	Origin string  `json:"origin,omitempty"` // e.g. "ipc", "http", "mqtt"
}

func (Wheel) eventMarker()      {}
func (TouchStart) eventMarker() {}
func (TouchMove) eventMarker()  {}
func (TouchEnd) eventMarker()   {}
func (SetTarget) eventMarker()  {}

func (Wheel) actionMarker()      {}
func (TouchStart) actionMarker() {}
func (TouchMove) actionMarker()  {}
func (TouchEnd) actionMarker()   {}
func (SetTarget) actionMarker()  {}

// TimedEvent attaches the arrival time to an action.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// Frame is what the controller looked like right after a tick.
type Frame struct {
	State   brightness.State   `json:"state"`
	Flicker brightness.Flicker `json:"flicker"`
	Output  brightness.Output  `json:"output"`
	Mounted bool               `json:"mounted"`
}

// Tick is emitted by the daemon loop at a fixed cadence, after the controller
// has been stepped. Dt is the wall-clock delta in seconds between ticks.
type Tick struct {
	Now   time.Time
	Dt    float64
	Frame Frame
}

func (Tick) eventMarker() {}

// RequestStateSnapshot asks the daemon for a coherent snapshot.
// The reply is delivered by the effects layer; it never blocks.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// LightPublished is emitted after the light sink accepted a state update.
type LightPublished struct {
	Level int
	On    bool
	At    time.Time
}

func (LightPublished) eventMarker() {}

// LightPublishFailed is emitted when a light command fails.
type LightPublishFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (LightPublishFailed) eventMarker() {}

// applyAction delivers an action to the controller.
func applyAction(c *brightness.Controller, a Action) brightness.InputResult {
	switch a := a.(type) {
	case Wheel:
		return c.OnWheel(a.DeltaY)
	case TouchStart:
		return c.OnTouchStart(a.Y)
	case TouchMove:
		return c.OnTouchMove(a.Y, a.Cancelable)
	case TouchEnd:
		return c.OnTouchEnd()
	case SetTarget:
		c.SetTarget(a.Target)
	}
	return brightness.InputResult{}
}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an action with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Wire names of the actions.
const (
	typeWheel      = "wheel"
	typeTouchStart = "touch_start"
	typeTouchMove  = "touch_move"
	typeTouchEnd   = "touch_end"
	typeSetTarget  = "set_target"
)

// UnmarshalEvent deserializes a JSON event envelope into a concrete Action
func UnmarshalEvent(data []byte) (Action, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case typeWheel:
		var a Wheel
		if err := unmarshalData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal Wheel: %w", err)
		}
		return a, nil

	case typeTouchStart:
		var a TouchStart
		if err := unmarshalData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal TouchStart: %w", err)
		}
		return a, nil

	case typeTouchMove:
		var a TouchMove
		if err := unmarshalData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal TouchMove: %w", err)
		}
		return a, nil

	case typeTouchEnd:
		return TouchEnd{}, nil

	case typeSetTarget:
		var a SetTarget
		if err := unmarshalData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetTarget: %w", err)
		}
		return a, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// unmarshalData requires a payload for actions that carry one.
func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(data, v)
}

// MarshalEvent serializes an Action into a JSON envelope with type discriminator
func MarshalEvent(a Action) ([]byte, error) {
	var env EventEnvelope

	switch a := a.(type) {
	case Wheel:
		env.Type = typeWheel
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal Wheel: %w", err)
		}
		env.Data = data

	case TouchStart:
		env.Type = typeTouchStart
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal TouchStart: %w", err)
		}
		env.Data = data

	case TouchMove:
		env.Type = typeTouchMove
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal TouchMove: %w", err)
		}
		env.Data = data

	case TouchEnd:
		env.Type = typeTouchEnd

	case SetTarget:
		env.Type = typeSetTarget
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal SetTarget: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unsupported event type: %T", a)
	}

	return json.Marshal(env)
}

// actionType returns the wire name of an action (used for logs and stats).
func actionType(a Event) string {
	switch a.(type) {
	case Wheel:
		return typeWheel
	case TouchStart:
		return typeTouchStart
	case TouchMove:
		return typeTouchMove
	case TouchEnd:
		return typeTouchEnd
	case SetTarget:
		return typeSetTarget
	default:
		return fmt.Sprintf("%T", a)
	}
}
