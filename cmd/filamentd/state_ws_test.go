package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// Hub tests use Clients with a nil conn; the hub tolerates it when closing.

func newTestClient(hub *Hub, name string, buf int) *Client {
	return &Client{
		hub:        hub,
		send:       make(chan []byte, buf),
		remoteAddr: name,
		logger:     discardLogger(),
	}
}

func startHub(t *testing.T, cfg HubConfig) (*Hub, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(discardLogger(), cfg)
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(cancel)
	return hub, cancel, done
}

func registerClient(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, c.remoteAddr+" not registered")
}

func recvMsg(t *testing.T, ch <-chan []byte, who string) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for %s", who)
		return nil
	}
}

func TestHub_FanOut(t *testing.T) {
	hub, cancel, done := startHub(t, HubConfig{SendBuf: 4, BroadcastBuf: 8})

	a := newTestClient(hub, "a", 4)
	b := newTestClient(hub, "b", 4)
	registerClient(t, hub, a)
	registerClient(t, hub, b)
	if n := hub.ClientCount(); n != 2 {
		t.Fatalf("expected 2 clients, got %d", n)
	}

	msg := []byte(`{"type":"frame","data":{"current":0.5}}`)
	hub.broadcast <- msg

	for _, c := range []*Client{a, b} {
		if got := recvMsg(t, c.send, c.remoteAddr); string(got) != string(msg) {
			t.Fatalf("%s got %q, want %q", c.remoteAddr, got, msg)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("hub did not stop")
	}
	if n := hub.ClientCount(); n != 0 {
		t.Fatalf("expected clients to be dropped on shutdown, got %d", n)
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub, _, _ := startHub(t, HubConfig{SendBuf: 1, BroadcastBuf: 8})

	slow := newTestClient(hub, "slow", 1)
	fast := newTestClient(hub, "fast", 8)
	registerClient(t, hub, slow)
	registerClient(t, hub, fast)

	// The slow client never drains.
	slow.send <- []byte(`"stale"`)

	msg := []byte(`{"type":"light","data":{"level":128,"on":true}}`)
	hub.broadcast <- msg

	if got := recvMsg(t, fast.send, "fast"); string(got) != string(msg) {
		t.Fatalf("fast got %q, want %q", got, msg)
	}

	<-slow.send
	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "slow client send channel not closed")

	waitUntil(t, 500*time.Millisecond, func() bool { return hub.ClientCount() == 1 }, "slow client still registered")
}

func TestHub_UnregisterTwiceIsSafe(t *testing.T) {
	hub, _, _ := startHub(t, HubConfig{})

	c := newTestClient(hub, "c", 1)
	registerClient(t, hub, c)

	hub.unregister <- c
	hub.unregister <- c
	waitUntil(t, 500*time.Millisecond, func() bool { return hub.ClientCount() == 0 }, "client not removed")
}

func decodeEnvelope(t *testing.T, msg []byte) (string, json.RawMessage) {
	t.Helper()
	var env struct {
		Type string          `json:"type"`
		Ts   *time.Time      `json:"ts"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode %q: %v", msg, err)
	}
	if env.Ts == nil {
		t.Fatalf("expected a timestamp in %q", msg)
	}
	return env.Type, env.Data
}

func TestRunBroadcaster_CoalescesFrames(t *testing.T) {
	hub, _, _ := startHub(t, HubConfig{SendBuf: 16})
	c := newTestClient(hub, "sub", 16)
	registerClient(t, hub, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := make(chan StateBroadcast, 8)
	go RunBroadcaster(ctx, hub, src, discardLogger())

	src <- BroadcastFrame{Frame: frameAt(0.3, 1), At: t0}
	src <- BroadcastFrame{Frame: frameAt(0.4, 1), At: t0}
	src <- BroadcastFrame{Frame: frameAt(0.5, 1), At: t0}

	typ, data := decodeEnvelope(t, recvMsg(t, c.send, "frame"))
	if typ != wsTypeFrame {
		t.Fatalf("expected %q, got %q", wsTypeFrame, typ)
	}
	var fd wsFrameData
	if err := json.Unmarshal(data, &fd); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if fd.Current != 0.5 || !fd.Mounted {
		t.Fatalf("expected the latest frame only, got %+v", fd)
	}

	select {
	case extra := <-c.send:
		t.Fatalf("expected a single coalesced frame, got extra %q", extra)
	case <-time.After(3 * wsFrameCoalesceWindow):
	}
}

func TestRunBroadcaster_LightFlushesPendingFrame(t *testing.T) {
	hub, _, _ := startHub(t, HubConfig{SendBuf: 16})
	c := newTestClient(hub, "sub", 16)
	registerClient(t, hub, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := make(chan StateBroadcast, 8)
	go RunBroadcaster(ctx, hub, src, discardLogger())

	src <- BroadcastFrame{Frame: frameAt(0.2, 1), At: t0}
	src <- BroadcastLightChanged{Level: 51, On: true, At: t0}

	// Both arrive well before the coalescing window closes, frame first.
	typ, _ := decodeEnvelope(t, recvMsg(t, c.send, "frame"))
	if typ != wsTypeFrame {
		t.Fatalf("expected the pending frame first, got %q", typ)
	}
	typ, data := decodeEnvelope(t, recvMsg(t, c.send, "light"))
	if typ != wsTypeLight {
		t.Fatalf("expected %q, got %q", wsTypeLight, typ)
	}
	var ld wsLightData
	if err := json.Unmarshal(data, &ld); err != nil {
		t.Fatalf("decode light: %v", err)
	}
	if ld != (wsLightData{Level: 51, On: true}) {
		t.Fatalf("unexpected light payload %+v", ld)
	}
}

func TestRunBroadcaster_StopsWhenSourceCloses(t *testing.T) {
	hub := NewHub(discardLogger(), HubConfig{})
	src := make(chan StateBroadcast)

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunBroadcaster(context.Background(), hub, src, discardLogger())
	}()

	close(src)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcaster did not stop")
	}
}
