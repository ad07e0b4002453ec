package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"filament/brightness"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for filamentd.
//
// Precedence, lowest first: DefaultConfig, config file, flags, environment
// (process env, then the optional .env file). Validate runs last.
type Config struct {
	// Linux input devices
	Input InputConfig `yaml:"input"`

	// Brightness controller tuning
	Controller ControllerConfig `yaml:"controller"`

	// Frame loop
	Daemon DaemonConfig `yaml:"daemon"`

	// IPC configuration (used by filament-ctl)
	IPC IPCConfig `yaml:"ipc"`

	// HTTP API + WebSocket frames
	HTTP HTTPConfig `yaml:"http"`

	// MQTT light sink (Home Assistant)
	MQTT MQTTConfig `yaml:"mqtt"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type InputConfig struct {
	Devices         []string `yaml:"devices,omitempty"` // evdev nodes to read; empty runs without local input
	PixelsPerDetent float64  `yaml:"pixels_per_detent"`
	TouchUnitsPerPx float64  `yaml:"touch_units_per_px"`
}

// ControllerConfig is the YAML view of brightness.Config. Durations are milliseconds.
type ControllerConfig struct {
	WheelSensitivity float64 `yaml:"wheel_sensitivity"`
	TouchSensitivity float64 `yaml:"touch_sensitivity"`

	Stiffness float64 `yaml:"stiffness"`
	Damping   float64 `yaml:"damping"`
	Mass      float64 `yaml:"mass"`

	FlickerBandLow   float64 `yaml:"flicker_band_low"`
	FlickerBandHigh  float64 `yaml:"flicker_band_high"`
	FlickerThreshold float64 `yaml:"flicker_threshold"`

	DipMin          float64 `yaml:"dip_min"`
	DipSpan         float64 `yaml:"dip_span"`
	DipMinMS        int     `yaml:"dip_min_ms"`
	DipSpanMS       int     `yaml:"dip_span_ms"`
	FlickerMinMS    int     `yaml:"flicker_min_ms"`
	FlickerSpanMS   int     `yaml:"flicker_span_ms"`
	Seed            uint64  `yaml:"seed,omitempty"` // 0 picks a random seed
	InitialTarget   float64 `yaml:"initial_target,omitempty"`
	SchedulerBuffer int     `yaml:"scheduler_buffer,omitempty"`
}

type DaemonConfig struct {
	UpdateHz int `yaml:"update_hz"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	GinMode string `yaml:"gin_mode,omitempty"` // debug|release|test
}

type MQTTConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Broker        string `yaml:"broker"`
	ClientID      string `yaml:"client_id"`
	Username      string `yaml:"username,omitempty"`
	Password      string `yaml:"password,omitempty"`
	Name          string `yaml:"name"`
	UniqueID      string `yaml:"unique_id,omitempty"`
	MinIntervalMS int    `yaml:"min_interval_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go and brightness.DefaultConfig.
func DefaultConfig() Config {
	b := brightness.DefaultConfig()
	return Config{
		Input: InputConfig{
			PixelsPerDetent: defaultPixelsPerDetent,
			TouchUnitsPerPx: defaultTouchUnitsPerPx,
		},
		Controller: ControllerConfig{
			WheelSensitivity: b.WheelSensitivity,
			TouchSensitivity: b.TouchSensitivity,
			Stiffness:        b.Stiffness,
			Damping:          b.Damping,
			Mass:             b.Mass,
			FlickerBandLow:   b.FlickerBandLow,
			FlickerBandHigh:  b.FlickerBandHigh,
			FlickerThreshold: b.FlickerThreshold,
			DipMin:           b.DipMin,
			DipSpan:          b.DipSpan,
			DipMinMS:         int(b.DipMinDuration / time.Millisecond),
			DipSpanMS:        int(b.DipSpanDuration / time.Millisecond),
			FlickerMinMS:     int(b.FlickerMinPeriod / time.Millisecond),
			FlickerSpanMS:    int(b.FlickerSpanPeriod / time.Millisecond),
		},
		Daemon: DaemonConfig{
			UpdateHz: defaultUpdateHz,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocket,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Listen:  defaultHTTPListen,
			GinMode: "release",
		},
		MQTT: MQTTConfig{
			Enabled:       false,
			Broker:        defaultMQTTBroker,
			ClientID:      defaultMQTTClientID,
			Name:          defaultMQTTName,
			MinIntervalMS: defaultMQTTMinIntervalMS,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
// Unknown fields are rejected via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries flag values on top of a loaded config.
// A nil pointer means the flag was not set.
type FlagOverrides struct {
	InputDevices *string // comma separated

	UpdateHz *int
	Seed     *uint64

	IPCSocketPath *string
	HTTPListen    *string

	MQTTEnabled *bool
	MQTTBroker  *string

	LogLevel *string
}

// Apply merges the overrides into cfg. If the pointer is non-nil, the value is
// applied (even if it is a zero value).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.InputDevices != nil {
		cfg.Input.Devices = splitList(*o.InputDevices)
	}
	if o.UpdateHz != nil {
		cfg.Daemon.UpdateHz = *o.UpdateHz
	}
	if o.Seed != nil {
		cfg.Controller.Seed = *o.Seed
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPListen != nil {
		cfg.HTTP.Listen = *o.HTTPListen
	}
	if o.MQTTEnabled != nil {
		cfg.MQTT.Enabled = *o.MQTTEnabled
	}
	if o.MQTTBroker != nil {
		cfg.MQTT.Broker = *o.MQTTBroker
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Environment variables read by ApplyEnv.
const (
	envInputDevices = "FILAMENT_INPUT_DEVICES"
	envLogLevel     = "FILAMENT_LOG_LEVEL"
	envIPCSocket    = "FILAMENT_IPC_SOCKET"
	envHTTPListen   = "FILAMENT_HTTP_LISTEN"
	envMQTTEnabled  = "FILAMENT_MQTT_ENABLED"
	envMQTTBroker   = "FILAMENT_MQTT_BROKER"
	envMQTTUsername = "FILAMENT_MQTT_USERNAME"
	envMQTTPassword = "FILAMENT_MQTT_PASSWORD"
)

// EnvLookup resolves an environment variable.
type EnvLookup func(key string) (string, bool)

// LoadEnvLookup returns a lookup that consults the process environment first and
// then the dotenv file at path. A missing file is not an error.
func LoadEnvLookup(path string) (EnvLookup, error) {
	file := map[string]string{}
	if path != "" {
		m, err := godotenv.Read(ExpandPath(path))
		switch {
		case err == nil:
			file = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read env file %s: %w", path, err)
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}, nil
}

// ApplyEnv applies FILAMENT_* variables to cfg.
func (c *Config) ApplyEnv(lookup EnvLookup) error {
	if lookup == nil {
		return nil
	}
	if v, ok := lookup(envInputDevices); ok {
		c.Input.Devices = splitList(v)
	}
	if v, ok := lookup(envLogLevel); ok {
		c.Logging.Level = v
	}
	if v, ok := lookup(envIPCSocket); ok {
		c.IPC.SocketPath = v
	}
	if v, ok := lookup(envHTTPListen); ok {
		c.HTTP.Listen = v
	}
	if v, ok := lookup(envMQTTEnabled); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", envMQTTEnabled, err)
		}
		c.MQTT.Enabled = b
	}
	if v, ok := lookup(envMQTTBroker); ok {
		c.MQTT.Broker = v
	}
	if v, ok := lookup(envMQTTUsername); ok {
		c.MQTT.Username = v
	}
	if v, ok := lookup(envMQTTPassword); ok {
		c.MQTT.Password = v
	}
	return nil
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}
	if c.Input.PixelsPerDetent <= 0 {
		return errors.New("input.pixels_per_detent must be > 0")
	}
	if c.Input.TouchUnitsPerPx <= 0 {
		return errors.New("input.touch_units_per_px must be > 0")
	}

	// Controller
	ctl := c.Controller
	if ctl.Stiffness < 0 || ctl.Damping < 0 {
		return errors.New("controller.stiffness and controller.damping must be >= 0")
	}
	if ctl.Mass <= 0 {
		return errors.New("controller.mass must be > 0")
	}
	if ctl.FlickerBandLow < 0 || ctl.FlickerBandHigh > 1 || ctl.FlickerBandLow > ctl.FlickerBandHigh {
		return errors.New("controller.flicker_band_low/high must satisfy 0 <= low <= high <= 1")
	}
	if ctl.FlickerThreshold < 0 || ctl.FlickerThreshold > 1 {
		return errors.New("controller.flicker_threshold must be between 0 and 1")
	}
	if ctl.DipMin <= 0 || ctl.DipSpan < 0 || ctl.DipMin+ctl.DipSpan > 1 {
		return errors.New("controller.dip_min/dip_span must keep the dip factor inside (0,1]")
	}
	if ctl.DipMinMS < 0 || ctl.DipSpanMS < 0 {
		return errors.New("controller.dip_min_ms/dip_span_ms must be >= 0")
	}
	if ctl.FlickerMinMS <= 0 || ctl.FlickerSpanMS < 0 {
		return errors.New("controller.flicker_min_ms must be > 0 and flicker_span_ms >= 0")
	}
	if ctl.InitialTarget < 0 || ctl.InitialTarget > 1 {
		return errors.New("controller.initial_target must be between 0 and 1")
	}

	// Daemon
	if c.Daemon.UpdateHz <= 0 || c.Daemon.UpdateHz > 1000 {
		return errors.New("daemon.update_hz must be between 1 and 1000")
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		return errors.New("http.enabled is true but http.listen is empty")
	}
	switch c.HTTP.GinMode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("http.gin_mode must be debug, release or test (got %q)", c.HTTP.GinMode)
	}

	// MQTT
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.enabled is true but mqtt.broker is empty")
		}
		if c.MQTT.Name == "" {
			return errors.New("mqtt.enabled is true but mqtt.name is empty")
		}
	}
	if c.MQTT.MinIntervalMS < 0 {
		return errors.New("mqtt.min_interval_ms must be >= 0")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ToBrightnessConfig converts the file config into the controller tuning.
func (c *Config) ToBrightnessConfig() brightness.Config {
	ctl := c.Controller
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return brightness.Config{
		WheelSensitivity:  ctl.WheelSensitivity,
		TouchSensitivity:  ctl.TouchSensitivity,
		Stiffness:         ctl.Stiffness,
		Damping:           ctl.Damping,
		Mass:              ctl.Mass,
		FlickerBandLow:    ctl.FlickerBandLow,
		FlickerBandHigh:   ctl.FlickerBandHigh,
		FlickerThreshold:  ctl.FlickerThreshold,
		DipMin:            ctl.DipMin,
		DipSpan:           ctl.DipSpan,
		DipMinDuration:    ms(ctl.DipMinMS),
		DipSpanDuration:   ms(ctl.DipSpanMS),
		FlickerMinPeriod:  ms(ctl.FlickerMinMS),
		FlickerSpanPeriod: ms(ctl.FlickerSpanMS),
	}
}

// ToLoopConfig extracts the frame loop settings.
func (c *Config) ToLoopConfig() LoopConfig {
	return LoopConfig{
		UpdateHz:           c.Daemon.UpdateHz,
		LightMinInterval:   time.Duration(c.MQTT.MinIntervalMS) * time.Millisecond,
		SchedulerBuffer:    c.Controller.SchedulerBuffer,
		InitialTarget:      c.Controller.InitialTarget,
		FramePrecision:     frameOpacityPrecision,
		LightPublishActive: c.MQTT.Enabled,
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
