package main

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// deviceEvent tags an input event with the index of the device it came from.
type deviceEvent struct {
	Dev int
	Ev  inputEvent
}

// readInputEvents reads input events from one device until a read fails.
func readInputEvents(f *os.File, dev int, events chan<- deviceEvent, readErr chan<- error) {
	buf := make([]byte, binary.Size(inputEvent{}))
	reader := bytes.NewReader(buf)

	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			readErr <- err
			return
		}

		reader.Reset(buf)
		var ev inputEvent
		if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
			continue
		}

		events <- deviceEvent{Dev: dev, Ev: ev}
	}
}

// ============================================================================
// Translation: evdev -> actions
// ============================================================================
//
// evdev reports a device's state changes as a packet of events terminated by
// SYN_REPORT. The translator accumulates a packet and commits it as actions:
//   - REL_WHEEL / REL_WHEEL_HI_RES -> Wheel (browser-style deltaY in px)
//   - BTN_TOUCH (or BTN_LEFT on a touch panel) + ABS_MT_POSITION_Y / ABS_Y
//     -> TouchStart / TouchMove / TouchEnd
// ============================================================================

// TranslatorConfig scales device units to screen pixels.
type TranslatorConfig struct {
	PixelsPerDetent float64
	TouchUnitsPerPx float64
}

// deviceTranslator holds the per-device packet state.
type deviceTranslator struct {
	cfg TranslatorConfig

	// Wheel
	detents  float64 // accumulated in the current packet, in detents (scroll up positive)
	sawWheel bool
	hiRes    bool // device reports REL_WHEEL_HI_RES; low-res events are duplicates

	// Touch
	down        bool    // finger is down (committed)
	pendingDown *bool   // press/release seen in this packet
	y           float64 // last committed Y in device units
	yKnown      bool
	pendingY    *float64
	mtY         bool // device reports MT positions; ABS_Y is ignored
	started     bool // TouchStart emitted for the current contact
}

func newDeviceTranslator(cfg TranslatorConfig) *deviceTranslator {
	if cfg.PixelsPerDetent <= 0 {
		cfg.PixelsPerDetent = defaultPixelsPerDetent
	}
	if cfg.TouchUnitsPerPx <= 0 {
		cfg.TouchUnitsPerPx = defaultTouchUnitsPerPx
	}
	return &deviceTranslator{cfg: cfg}
}

// Feed consumes one event and returns the actions committed by it (only on SYN_REPORT).
func (t *deviceTranslator) Feed(ev inputEvent) []Action {
	switch ev.Type {
	case EV_REL:
		t.feedRel(ev)

	case EV_KEY:
		if ev.Code == BTN_TOUCH || ev.Code == BTN_LEFT {
			down := ev.Value != evValueRelease
			t.pendingDown = &down
		}

	case EV_ABS:
		switch ev.Code {
		case ABS_MT_POSITION_Y:
			t.mtY = true
			y := float64(ev.Value)
			t.pendingY = &y
		case ABS_Y:
			if !t.mtY {
				y := float64(ev.Value)
				t.pendingY = &y
			}
		}

	case EV_SYN:
		switch ev.Code {
		case SYN_REPORT:
			return t.commit()
		case SYN_DROPPED:
			// The packet is incomplete; forget it until the next report.
			t.reset()
		}
	}
	return nil
}

func (t *deviceTranslator) feedRel(ev inputEvent) {
	switch ev.Code {
	case REL_WHEEL_HI_RES:
		if !t.hiRes {
			// Drop low-res detents already counted in this packet.
			t.hiRes = true
			t.detents = 0
			t.sawWheel = false
		}
		t.detents += float64(ev.Value) / hiResUnitsPerDetent
		t.sawWheel = true
	case REL_WHEEL:
		if t.hiRes {
			return
		}
		t.detents += float64(ev.Value)
		t.sawWheel = true
	}
}

func (t *deviceTranslator) commit() []Action {
	var out []Action

	if t.sawWheel && t.detents != 0 {
		// evdev: positive = away from the user (scroll up); browsers: negative deltaY.
		out = append(out, Wheel{DeltaY: -t.detents * t.cfg.PixelsPerDetent})
	}
	t.detents = 0
	t.sawWheel = false

	if t.pendingY != nil {
		t.y = *t.pendingY
		t.yKnown = true
	}
	movedY := t.pendingY != nil
	t.pendingY = nil

	if t.pendingDown != nil {
		t.down = *t.pendingDown
		t.pendingDown = nil
		if !t.down && t.started {
			out = append(out, TouchEnd{})
			t.started = false
		}
	}

	if t.down && t.yKnown {
		py := t.y / t.cfg.TouchUnitsPerPx
		switch {
		case !t.started:
			out = append(out, TouchStart{Y: py})
			t.started = true
		case movedY:
			out = append(out, TouchMove{Y: py, Cancelable: true})
		}
	}

	return out
}

func (t *deviceTranslator) reset() {
	t.detents = 0
	t.sawWheel = false
	t.pendingY = nil
	t.pendingDown = nil
}

// Translator multiplexes per-device translators.
type Translator struct {
	cfg     TranslatorConfig
	devices map[int]*deviceTranslator
}

func NewTranslator(cfg TranslatorConfig) *Translator {
	return &Translator{cfg: cfg, devices: make(map[int]*deviceTranslator)}
}

// Feed routes an event to its device's translator.
func (tr *Translator) Feed(de deviceEvent) []Action {
	t, ok := tr.devices[de.Dev]
	if !ok {
		t = newDeviceTranslator(tr.cfg)
		tr.devices[de.Dev] = t
	}
	return t.Feed(de.Ev)
}
