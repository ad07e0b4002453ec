package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_REL = 0x02
	EV_ABS = 0x03

	SYN_REPORT  = 0
	SYN_DROPPED = 3

	BTN_LEFT  = 0x110
	BTN_TOUCH = 0x14a

	REL_WHEEL        = 0x08
	REL_WHEEL_HI_RES = 0x0b

	ABS_Y             = 0x01
	ABS_MT_POSITION_Y = 0x36
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
)

// One wheel detent in REL_WHEEL_HI_RES units.
const hiResUnitsPerDetent = 120

// Daemon defaults
const (
	defaultUpdateHz        = 60  // Frame loop frequency (Hz)
	defaultPixelsPerDetent = 100 // Wheel deltaY per detent, matching common browser line scrolling
	defaultTouchUnitsPerPx = 1.0 // Touch panel units per screen pixel

	defaultIPCSocket  = "/tmp/filament.sock"
	defaultHTTPListen = "127.0.0.1:8088"

	defaultMQTTBroker        = "tcp://127.0.0.1:1883"
	defaultMQTTClientID      = "filamentd"
	defaultMQTTName          = "Filament"
	defaultMQTTMinIntervalMS = 100

	// Frame broadcasts are deduplicated at this opacity precision.
	frameOpacityPrecision = 1e-3
)
