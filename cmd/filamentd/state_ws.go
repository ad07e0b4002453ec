package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"filament/brightness"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Frame WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// Messages are JSON text frames with an envelope: {type, ts, data}.
//   - "state_init": StateSnapshot, sent once on connect (requested through the loop)
//   - "frame":      derived output, coalesced latest-wins within wsFrameCoalesceWindow
//   - "light":      lamp level confirmed by the light sink
//
// A client whose send queue fills up is disconnected.
// ============================================================================

// wsFrameData is the JSON `data` payload for "frame".
type wsFrameData struct {
	Target  float64           `json:"target"`
	Current float64           `json:"current"`
	Dipping bool              `json:"dipping"`
	Mounted bool              `json:"mounted"`
	Output  brightness.Output `json:"output"`
}

// wsLightData is the JSON `data` payload for "light".
type wsLightData struct {
	Level int  `json:"level"`
	On    bool `json:"on"`
}

// wsOutboundEvent is a pre-typed, externally-consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// Outbound message types.
const (
	wsTypeStateInit = "state_init"
	wsTypeFrame     = "frame"
	wsTypeLight     = "light"
)

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Serialized frames waiting for fan-out.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size (default 32).
	SendBuf int

	// BroadcastBuf is the hub inbound queue size (default 128).
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients under the lock, drop them after.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	// Closing send stops writePump.
	safeCloseChan(c.send)

	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // close of closed channel
	}()
	close(ch)
}

// BroadcastBytes enqueues a serialized frame. It never blocks; a full hub queue drops it.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// wsFrameCoalesceWindow bounds how often frames reach subscribers. The daemon
// renders at 60 Hz; clients get the latest frame at most every 50ms.
const wsFrameCoalesceWindow = 50 * time.Millisecond

// closeStatus extracts the websocket close code and text when present.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump, what string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting ("+what+" error)", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes queued messages and pings. It exits on write error or when
// send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub dropped us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", "write", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", "ping", err)
				return
			}
		}
	}
}

// readPump discards inbound messages to observe disconnects and control frames,
// then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", "read", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

// StateServer upgrades subscribers and sends them the initial snapshot.
type StateServer struct {
	logger *slog.Logger
	hub    *Hub

	// Snapshot requests go through the daemon loop.
	events chan<- Event
}

// NewStateServer constructs the WS state server. Start Hub().Run(ctx) and
// RunBroadcaster alongside it.
func NewStateServer(logger *slog.Logger, events chan<- Event, cfg HubConfig) *StateServer {
	return &StateServer{
		logger: logger,
		hub:    NewHub(logger, cfg),
		events: events,
	}
}

func (s *StateServer) Hub() *Hub { return s.hub }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// requestSnapshot asks the daemon loop for a snapshot, waiting at most one second
// (or until ctx ends).
func requestSnapshot(ctx context.Context, events chan<- Event) (StateSnapshot, error) {
	if events == nil {
		return StateSnapshot{}, errors.New("no daemon event channel")
	}
	reply := make(chan StateSnapshot, 1)

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	select {
	case <-waitCtx.Done():
		return StateSnapshot{}, waitCtx.Err()
	case events <- RequestStateSnapshot{Reply: reply}:
	}

	select {
	case <-waitCtx.Done():
		return StateSnapshot{}, waitCtx.Err()
	case snap := <-reply:
		return snap, nil
	}
}

// ServeHTTP upgrades and registers a client, then sends state_init.
func (s *StateServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)
	s.hub.register <- client

	// The pumps outlive the HTTP request; the hub and socket errors end them.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	snap, err := requestSnapshot(r.Context(), s.events)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}

	now := time.Now().UTC()
	initMsg, err := json.Marshal(envelope{Type: wsTypeStateInit, Ts: &now, Data: snap})
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return
	}

	select {
	case client.send <- initMsg:
	default:
		s.hub.unregister <- client
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster marshals reducer broadcasts and hands them to the hub.
// Frames are rate limited: the latest pending frame is flushed every
// wsFrameCoalesceWindow while frames keep arriving. Other broadcasts flush the
// pending frame first and go out immediately.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pending *wsOutboundEvent
	var timer *time.Timer
	var timerC <-chan time.Time

	emit := func(ev wsOutboundEvent) {
		ts := ev.At
		if ts.IsZero() {
			ts = time.Now()
		}
		ts = ts.UTC()
		msg, err := json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flush := func() {
		if pending == nil {
			return
		}
		emit(*pending)
		pending = nil
	}

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = nil
		timerC = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			stopTimer()
			return

		case <-timerC:
			flush()
			stopTimer()

		case b, ok := <-src:
			if !ok {
				flush()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.Type == wsTypeFrame {
				pending = &ev
				// No debounce-on-silence: the timer is not reset by newer frames.
				if timer == nil {
					timer = time.NewTimer(wsFrameCoalesceWindow)
					timerC = timer.C
				}
				continue
			}

			flush()
			stopTimer()
			emit(ev)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastFrame:
		return wsOutboundEvent{
			Type: wsTypeFrame,
			Data: wsFrameData{
				Target:  ev.Frame.State.Target,
				Current: ev.Frame.State.Current,
				Dipping: ev.Frame.Flicker.Dipping,
				Mounted: ev.Frame.Mounted,
				Output:  ev.Frame.Output,
			},
			At: ev.At,
		}, true

	case BroadcastLightChanged:
		return wsOutboundEvent{
			Type: wsTypeLight,
			Data: wsLightData{Level: ev.Level, On: ev.On},
			At:   ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
