package main

import (
	"context"
	"log/slog"
	"time"

	"filament/brightness"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// One goroutine owns the brightness controller. It:
//   - applies actions from input devices, IPC, HTTP and MQTT
//   - steps the spring on a fixed cadence
//   - runs the controller's flicker timers (delivered through the scheduler channel)
//   - reduces events into (state, commands, broadcasts) and executes the commands
//
// The controller is never touched from any other goroutine, so it needs no locks.
// ============================================================================

// LoopConfig carries the frame loop and reducer settings.
type LoopConfig struct {
	UpdateHz int

	// LightMinInterval is the minimum spacing between CmdPublishLight commands.
	LightMinInterval time.Duration
	// LightPublishActive enables CmdPublishLight.
	LightPublishActive bool

	// FramePrecision is the rounding applied before comparing frames.
	FramePrecision float64

	SchedulerBuffer int
	InitialTarget   float64
}

type daemonLoop struct {
	ctrl   *brightness.Controller
	sched  *brightness.LoopScheduler
	sink   LightSink
	out    chan<- StateBroadcast
	cfg    LoopConfig
	logger *slog.Logger

	state    *DaemonState
	lastTick time.Time

	// Explicit queues:
	// - eventQueue holds events awaiting reduction
	// - cmdQueue holds commands awaiting execution
	eventQueue []Event
	cmdQueue   []Command
}

func newDaemonLoop(ctrl *brightness.Controller, sink LightSink, out chan<- StateBroadcast, cfg LoopConfig, logger *slog.Logger) *daemonLoop {
	return &daemonLoop{
		ctrl:   ctrl,
		sched:  brightness.NewLoopScheduler(cfg.SchedulerBuffer),
		sink:   sink,
		out:    out,
		cfg:    cfg,
		logger: logger,
		state:  &DaemonState{},
	}
}

// runDaemon mounts the controller and runs the loop until ctx is canceled or
// events is closed. On return the controller is unmounted and every flicker timer
// is stopped.
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	ctrl *brightness.Controller,
	sink LightSink,
	out chan<- StateBroadcast,
	cfg LoopConfig,
	logger *slog.Logger,
) {
	if ctrl == nil {
		logger.Error("brightness controller is nil")
		return
	}
	if cfg.UpdateHz <= 0 {
		cfg.UpdateHz = defaultUpdateHz
	}

	d := newDaemonLoop(ctrl, sink, out, cfg, logger)
	d.mount(time.Now())
	defer d.unmount()

	ticker := time.NewTicker(time.Second / time.Duration(cfg.UpdateHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			d.handleEvent(ev, time.Now())

		case f := <-d.sched.C():
			f()

		case now := <-ticker.C:
			d.handleTick(now)
		}
	}
}

func (d *daemonLoop) mount(now time.Time) {
	d.ctrl.Mount(d.sched)
	if d.cfg.InitialTarget > 0 {
		d.ctrl.SetTarget(d.cfg.InitialTarget)
	}
	d.lastTick = now
	d.logger.Info("brightness controller mounted", "target", d.ctrl.State().Target)
}

func (d *daemonLoop) unmount() {
	d.ctrl.Unmount()
	d.sched.Close()
	d.logger.Info("brightness controller unmounted", "current", d.ctrl.State().Current)
}

// handleEvent applies actions to the controller, then reduces.
func (d *daemonLoop) handleEvent(ev Event, now time.Time) {
	if a, ok := ev.(Action); ok {
		res := applyAction(d.ctrl, a)
		d.logger.Debug("action applied",
			"type", actionType(a),
			"target", d.ctrl.State().Target,
			"prevent_default", res.PreventDefault)
		ev = TimedEvent{Event: a, At: now}
	}
	d.enqueueEvent(ev)
	d.flushEvents()
	d.flushCommands()
}

// handleTick steps the spring by the wall-clock delta and reduces a Tick.
// The full delta is integrated even after a stall.
func (d *daemonLoop) handleTick(now time.Time) {
	dt := now.Sub(d.lastTick).Seconds()
	d.lastTick = now

	d.ctrl.Tick(dt)
	d.enqueueEvent(Tick{Now: now, Dt: dt, Frame: frameOf(d.ctrl)})
	d.flushEvents()
	d.flushCommands()
}

func (d *daemonLoop) enqueueEvent(ev Event) {
	d.eventQueue = append(d.eventQueue, ev)
}

// flushEvents reduces all queued events, enqueuing commands and publishing broadcasts.
func (d *daemonLoop) flushEvents() {
	for len(d.eventQueue) > 0 {
		ev := d.eventQueue[0]
		d.eventQueue = d.eventQueue[1:]

		rr := Reduce(d.state, ev, d.cfg)
		if rr.State != nil {
			d.state = rr.State
		}
		d.cmdQueue = append(d.cmdQueue, rr.Commands...)
		for _, b := range rr.Broadcasts {
			d.publish(b)
		}
	}
}

// flushCommands executes all queued commands, reducing observations promptly.
func (d *daemonLoop) flushCommands() {
	for len(d.cmdQueue) > 0 {
		cmd := d.cmdQueue[0]
		d.cmdQueue = d.cmdQueue[1:]

		runEffect(d.sink, cmd, d.logger, d.enqueueEvent)
		d.flushEvents()
	}
}

// publish hands a broadcast to the WS broadcaster without blocking the loop.
func (d *daemonLoop) publish(b StateBroadcast) {
	if d.out == nil {
		return
	}
	select {
	case d.out <- b:
	default:
		d.logger.Debug("broadcast queue full, dropping", "broadcast", b)
	}
}

func frameOf(c *brightness.Controller) Frame {
	return Frame{
		State:   c.State(),
		Flicker: c.Flicker(),
		Output:  c.Output(),
		Mounted: c.Mounted(),
	}
}
