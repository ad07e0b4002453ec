package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// filament-listen prints the frame stream of a running filamentd.

func main() {
	var (
		wsURL = flag.String("url", "ws://127.0.0.1:8088/ws", "filamentd websocket URL")
		raw   = flag.Bool("raw", false, "Print every message verbatim")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("connected! (press Ctrl+C to exit)")

	// The daemon pings every 20s; answering is automatic, extend the deadline on each.
	var writeMu sync.Mutex
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	p := &printer{out: os.Stdout, raw: *raw}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType == websocket.TextMessage {
				p.handle(message)
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

type message struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts"`
	Data json.RawMessage `json:"data"`
}

type frameData struct {
	Target  float64 `json:"target"`
	Current float64 `json:"current"`
	Dipping bool    `json:"dipping"`
	Output  struct {
		Opacity       float64 `json:"opacity"`
		FilamentColor string  `json:"filament_color"`
	} `json:"output"`
}

type lightData struct {
	Level int  `json:"level"`
	On    bool `json:"on"`
}

// printer writes one line per visible change.
type printer struct {
	out io.Writer
	raw bool

	lastTarget  *float64
	lastCurrent *float64
	lastDipping bool
}

func (p *printer) handle(msg []byte) {
	if p.raw {
		fmt.Fprintf(p.out, "%s\n", msg)
		return
	}

	var m message
	if err := json.Unmarshal(msg, &m); err != nil {
		fmt.Fprintf(p.out, "[TEXT] %s\n", msg)
		return
	}

	switch m.Type {
	case "state_init":
		var pretty map[string]any
		if err := json.Unmarshal(m.Data, &pretty); err != nil {
			fmt.Fprintf(p.out, "[INIT] %s\n", m.Data)
			return
		}
		b, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Fprintf(p.out, "[INIT]\n%s\n", b)

	case "frame":
		var f frameData
		if err := json.Unmarshal(m.Data, &f); err != nil {
			fmt.Fprintf(p.out, "[FRAME] %s\n", m.Data)
			return
		}
		p.frame(f)

	case "light":
		var l lightData
		if err := json.Unmarshal(m.Data, &l); err != nil {
			fmt.Fprintf(p.out, "[LIGHT] %s\n", m.Data)
			return
		}
		state := "OFF"
		if l.On {
			state = "ON"
		}
		fmt.Fprintf(p.out, "[LIGHT] %s level=%d\n", state, l.Level)

	default:
		fmt.Fprintf(p.out, "[%s] %s\n", m.Type, m.Data)
	}
}

func (p *printer) frame(f frameData) {
	// Two decimals avoid a line for every spring step.
	target := math.Round(f.Target*100) / 100
	current := math.Round(f.Current*100) / 100

	if p.lastTarget == nil || *p.lastTarget != target {
		fmt.Fprintf(p.out, "[TARGET] %.2f\n", target)
		p.lastTarget = &target
	}
	if p.lastCurrent == nil || *p.lastCurrent != current {
		fmt.Fprintf(p.out, "[CURRENT] %.2f opacity=%.3f color=%s\n", current, f.Output.Opacity, f.Output.FilamentColor)
		p.lastCurrent = &current
	}
	if f.Dipping != p.lastDipping {
		if f.Dipping {
			fmt.Fprintf(p.out, "[FLICKER] dip opacity=%.3f\n", f.Output.Opacity)
		} else {
			fmt.Fprintf(p.out, "[FLICKER] restored\n")
		}
		p.lastDipping = f.Dipping
	}
}
