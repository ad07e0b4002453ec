package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// answerSnapshots plays the daemon loop: it replies to snapshot requests and
// forwards everything else.
func answerSnapshots(ctx context.Context, events <-chan Event, snap StateSnapshot, other chan<- Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if req, ok := ev.(RequestStateSnapshot); ok {
				req.Reply <- snap
				continue
			}
			if other != nil {
				other <- ev
			}
		}
	}
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHTTP_PostEvent(t *testing.T) {
	events := make(chan Event, 1)
	r := newRouter(gin.TestMode, events, nil, discardLogger())

	w := doRequest(r, http.MethodPost, "/api/events", `{"type":"set_target","data":{"target":0.7}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp IPCResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Status != "ok" {
		t.Fatalf("unexpected response %q (err=%v)", w.Body.String(), err)
	}

	select {
	case ev := <-events:
		if ev != (SetTarget{Target: 0.7, Origin: "http"}) {
			t.Fatalf("unexpected event %#v", ev)
		}
	default:
		t.Fatalf("expected the event to be queued")
	}

	// Queue is full now.
	events <- TouchEnd{}
	w = doRequest(r, http.MethodPost, "/api/events", `{"type":"touch_end"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on a full queue, got %d", w.Code)
	}
}

func TestHTTP_PostEventRejectsBadInput(t *testing.T) {
	r := newRouter(gin.TestMode, make(chan Event, 1), nil, discardLogger())

	for _, body := range []string{`{`, `{"type":"nope","data":{}}`, `{"type":"wheel"}`} {
		w := doRequest(r, http.MethodPost, "/api/events", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, w.Code)
		}
		var resp IPCResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Status != "error" || resp.Error == "" {
			t.Fatalf("body %q: unexpected response %q", body, w.Body.String())
		}
	}
}

func TestHTTP_GetState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)
	want := StateSnapshot{Inputs: InputStats{Count: 3, LastType: typeWheel}, Light: LightState{Level: 10, On: true, Known: true}}
	go answerSnapshots(ctx, events, want, nil)

	r := newRouter(gin.TestMode, events, nil, discardLogger())
	w := doRequest(r, http.MethodGet, "/api/state", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got StateSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Inputs.Count != 3 || got.Inputs.LastType != typeWheel || got.Light.Level != 10 || !got.Light.On {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestHTTP_GetStateWithoutDaemon(t *testing.T) {
	r := newRouter(gin.TestMode, nil, nil, discardLogger())
	if w := doRequest(r, http.MethodGet, "/api/state", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHTTP_Healthz(t *testing.T) {
	ws := NewStateServer(discardLogger(), nil, HubConfig{})
	r := newRouter(gin.TestMode, nil, ws, discardLogger())

	w := doRequest(r, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Status    string `json:"status"`
		WSClients int    `json:"ws_clients"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.WSClients != 0 {
		t.Fatalf("unexpected health %+v", body)
	}
}

func TestHTTP_WebSocketStateInit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)
	go answerSnapshots(ctx, events, StateSnapshot{Inputs: InputStats{Count: 9}}, nil)

	ws := NewStateServer(discardLogger(), events, HubConfig{})
	go ws.Hub().Run(ctx)

	srv := httptest.NewServer(newRouter(gin.TestMode, events, ws, discardLogger()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	typ, data := decodeEnvelope(t, msg)
	if typ != wsTypeStateInit {
		t.Fatalf("expected %q, got %q", wsTypeStateInit, typ)
	}
	var snap StateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Inputs.Count != 9 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	waitUntil(t, time.Second, func() bool { return ws.Hub().ClientCount() == 1 }, "ws client not registered")

	// Broadcasts reach the subscriber.
	ws.Hub().BroadcastBytes([]byte(`{"type":"light","data":{"level":1,"on":true}}`))
	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if typ, _ := decodeEnvelopeType(msg); typ != wsTypeLight {
		t.Fatalf("expected a light message, got %q", msg)
	}
}

func decodeEnvelopeType(msg []byte) (string, error) {
	var env EventEnvelope
	err := json.Unmarshal(msg, &env)
	return env.Type, err
}
