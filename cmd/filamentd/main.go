package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"filament/brightness"
)

const version = "0.3.0"

func printVersion() {
	fmt.Printf("filamentd v%s\n", version)
	fmt.Println("Spring-smoothed lamp brightness daemon for wheel and touch input")
}

func printUsage() {
	printVersion()
	fmt.Print(`
USAGE:
  filamentd [OPTIONS]

DESCRIPTION:
  Reads wheel and touch gestures from Linux input devices (and from the IPC
  socket and HTTP API), turns them into a spring-smoothed brightness with a
  low-level flicker, and streams the derived frames to WebSocket subscribers.
  Optionally mirrors the lamp to Home Assistant over MQTT.

OPTIONS:
  -config string
        YAML config file (defaults are used when omitted)

  -env-file string
        dotenv file with FILAMENT_* overrides (default ".env", ignored if missing)

  -input-devices string
        Comma separated evdev devices, e.g. /dev/input/event3,/dev/input/event5

  -update-hz int
        Frame loop frequency in Hz (default 60)

  -seed uint
        Flicker random seed (0 = random)

  -ipc-socket string
        Unix domain socket path for IPC (default "/tmp/filament.sock")

  -http-listen string
        HTTP/WebSocket listen address (default "127.0.0.1:8088")

  -mqtt
        Enable the MQTT light

  -mqtt-broker string
        MQTT broker URL (default "tcp://127.0.0.1:1883")

  -log-level string
        Log level: error, warn, info, debug (default "info")

  -version
        Print version and exit

  -help
        Print this help message

ENVIRONMENT:
  FILAMENT_INPUT_DEVICES, FILAMENT_LOG_LEVEL, FILAMENT_IPC_SOCKET,
  FILAMENT_HTTP_LISTEN, FILAMENT_MQTT_ENABLED, FILAMENT_MQTT_BROKER,
  FILAMENT_MQTT_USERNAME, FILAMENT_MQTT_PASSWORD

PRECEDENCE:
  defaults < config file < flags < environment

EXAMPLES:
  # Mouse wheel on event3, frames on ws://127.0.0.1:8088/ws
  filamentd -input-devices /dev/input/event3

  # Full config with MQTT credentials in .env
  filamentd -config ~/.config/filament/filamentd.yaml -env-file ~/.config/filament/.env

NOTES:
  - Requires read access to input devices (run as root or add user to 'input' group)
  - Without input devices the daemon is driven by filament-ctl and the HTTP API only
`)
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath   = flag.String("config", "", "YAML config file")
		envFile      = flag.String("env-file", ".env", "dotenv file with FILAMENT_* overrides")
		inputDevices = flag.String("input-devices", "", "Comma separated evdev devices")
		updateHz     = flag.Int("update-hz", defaultUpdateHz, "Frame loop frequency in Hz")
		seed         = flag.Uint64("seed", 0, "Flicker random seed (0 = random)")
		ipcSocket    = flag.String("ipc-socket", defaultIPCSocket, "Unix domain socket path for IPC")
		httpListen   = flag.String("http-listen", defaultHTTPListen, "HTTP/WebSocket listen address")
		mqttEnabled  = flag.Bool("mqtt", false, "Enable the MQTT light")
		mqttBroker   = flag.String("mqtt-broker", defaultMQTTBroker, "MQTT broker URL")
		logLevelStr  = flag.String("log-level", "info", "Log level: error, warn, info, debug")
	)
	flag.Usage = printUsage
	flag.Parse()

	// Only flags given on the command line override the config file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input-devices":
			o.InputDevices = inputDevices
		case "update-hz":
			o.UpdateHz = updateHz
		case "seed":
			o.Seed = seed
		case "ipc-socket":
			o.IPCSocketPath = ipcSocket
		case "http-listen":
			o.HTTPListen = httpListen
		case "mqtt":
			o.MQTTEnabled = mqttEnabled
		case "mqtt-broker":
			o.MQTTBroker = mqttBroker
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})

	cfg, err := loadConfig(*configPath, *envFile, o)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level) // checked by Validate
	logger := setupLogger(logLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("filamentd failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig applies defaults, the config file, flags and the environment, then validates.
func loadConfig(path, envFile string, o FlagOverrides) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadConfigFile(path); err != nil {
			return Config{}, err
		}
	}

	o.Apply(&cfg)

	lookup, err := LoadEnvLookup(envFile)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(cfg Config, logger *slog.Logger) error {
	// Open input devices before starting anything else.
	var files []*os.File
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, dev := range cfg.Input.Devices {
		f, err := os.Open(ExpandPath(dev))
		if err != nil {
			logger.Error("failed to open input device", "device", dev, "error", err, "tip", "run as root or add user to 'input' group")
			return fmt.Errorf("open input device: %w", err)
		}
		files = append(files, f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rng brightness.Rand
	if cfg.Controller.Seed != 0 {
		rng = brightness.NewRand(cfg.Controller.Seed)
	}
	ctrl := brightness.New(cfg.ToBrightnessConfig(), rng)

	events := make(chan Event, 64)
	broadcasts := make(chan StateBroadcast, 256)

	// The sink stays a nil interface when MQTT is off.
	var sink LightSink
	if cfg.MQTT.Enabled {
		light := NewMQTTLight(cfg.MQTT, events, logger)
		if err := light.Connect(ctx); err != nil {
			return err
		}
		defer light.Close()
		sink = light
	}

	var wg sync.WaitGroup
	goFn := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	daemonDone := make(chan struct{})
	goFn(func() {
		defer close(daemonDone)
		runDaemon(ctx, events, ctrl, sink, broadcasts, cfg.ToLoopConfig(), logger)
	})

	ws := NewStateServer(logger, events, HubConfig{})
	goFn(func() { ws.Hub().Run(ctx) })
	goFn(func() { RunBroadcaster(ctx, ws.Hub(), broadcasts, logger) })

	if cfg.HTTP.Enabled {
		router := newRouter(cfg.HTTP.GinMode, events, ws, logger)
		goFn(func() {
			if err := runHTTPServer(ctx, cfg.HTTP.Listen, router, logger); err != nil {
				logger.Error("HTTP server error", "error", err)
				stop()
			}
		})
	}

	goFn(func() {
		if err := runIPCServer(ctx, ExpandPath(cfg.IPC.SocketPath), events, logger); err != nil {
			logger.Error("IPC server error", "error", err)
			stop()
		}
	})

	devEvents := make(chan deviceEvent, 64)
	readErr := make(chan error, len(files)+1)
	if len(files) > 0 {
		startInputReaders(files, devEvents, readErr)
	}
	translator := NewTranslator(TranslatorConfig{
		PixelsPerDetent: cfg.Input.PixelsPerDetent,
		TouchUnitsPerPx: cfg.Input.TouchUnitsPerPx,
	})

	logger.Info("listening",
		"input_devices", cfg.Input.Devices,
		"ipc", cfg.IPC.SocketPath,
		"http", cfg.HTTP.Listen,
		"http_enabled", cfg.HTTP.Enabled,
		"mqtt_enabled", cfg.MQTT.Enabled,
		"update_rate_hz", cfg.Daemon.UpdateHz)

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			break loop

		case <-daemonDone:
			break loop

		case err := <-readErr:
			logger.Error("input reader stopped", "error", err)
			runErr = fmt.Errorf("input reader: %w", err)
			break loop

		case de := <-devEvents:
			for _, a := range translator.Feed(de) {
				select {
				case events <- a:
				case <-ctx.Done():
				}
			}
		}
	}

	stop()
	// The daemon unmounts the controller (flicker timers stopped) before it returns.
	<-daemonDone
	wg.Wait()
	return runErr
}
