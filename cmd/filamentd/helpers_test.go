package main

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var t0 = time.Unix(1000, 0).UTC()

func discardLogger() *slog.Logger {
	return newLogger(io.Discard, LogLevelError)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}

// fakeSink records light publishes.
type fakeSink struct {
	mu    sync.Mutex
	calls []CmdPublishLight
	err   error
}

func (s *fakeSink) PublishLight(level int, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, CmdPublishLight{Level: level, On: on})
	return s.err
}

func (s *fakeSink) Calls() []CmdPublishLight {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CmdPublishLight(nil), s.calls...)
}
