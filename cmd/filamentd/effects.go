package main

import (
	"log/slog"
	"time"
)

// LightSink is an external lamp the daemon mirrors its output to.
type LightSink interface {
	PublishLight(level int, on bool) error
}

// runEffect executes a single reducer-emitted Command and emits an observation
// Event via onEvent.
//
// It may perform I/O but never calls Reduce(); the daemon loop sequences
// Reduce -> Commands -> runEffect -> Events -> Reduce.
func runEffect(
	sink LightSink,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		return
	}

	now := time.Now()

	switch c := cmd.(type) {
	case CmdPublishLight:
		if sink == nil {
			onEvent(LightPublishFailed{Command: cmd, Err: errNoSink{}, At: now})
			return
		}
		if err := sink.PublishLight(c.Level, c.On); err != nil {
			logger.Warn("light publish failed", "error", err, "level", c.Level, "on", c.On)
			onEvent(LightPublishFailed{Command: cmd, Err: err, At: now})
			return
		}
		onEvent(LightPublished{Level: c.Level, On: c.On, At: now})

	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		// Never block the daemon loop on a requester.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(LightPublishFailed{
			Command: cmd,
			Err:     errUnknownCommand{cmd: cmd},
			At:      now,
		})
	}
}

// errNoSink indicates a light command was emitted without a configured sink.
type errNoSink struct{}

func (errNoSink) Error() string { return "no light sink" }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
