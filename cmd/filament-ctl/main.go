package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// filament-ctl - Command-line IPC Client
// ============================================================================
// Sends gestures to filamentd over its Unix domain socket.
//
// Usage:
//   filament-ctl wheel -100
//   filament-ctl touch-start 300 && filament-ctl touch-move 250 && filament-ctl touch-end
//   filament-ctl up [px]
//   filament-ctl down [px]
//   filament-ctl set 0.4
//   filament-ctl drag 300 150
//   filament-ctl state
// ============================================================================

const (
	defaultSocket = "/tmp/filament.sock"
	defaultStepPx = 100.0 // one wheel notch
	dialTimeout   = 2 * time.Second
)

// envelope mirrors the daemon's event envelope.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type response struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	State  json.RawMessage `json:"state,omitempty"`
}

func main() {
	socketPath := defaultSocket
	if env := os.Getenv("FILAMENT_IPC_SOCKET"); env != "" {
		socketPath = env
	}

	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "-socket" || args[0] == "--socket") {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		return
	}

	msgs, err := buildMessages(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printUsage()
		os.Exit(1)
	}

	resps, err := send(socketPath, msgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	last := resps[len(resps)-1]
	if len(last.State) > 0 {
		var pretty map[string]any
		if err := json.Unmarshal(last.State, &pretty); err == nil {
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
			return
		}
		fmt.Println(string(last.State))
		return
	}
	fmt.Println("ok")
}

// buildMessages turns a command line into the envelopes to send, in order.
func buildMessages(args []string) ([]envelope, error) {
	switch args[0] {
	case "up", "down":
		px := defaultStepPx
		if len(args) > 1 {
			v, err := parseFloat(args[1], "pixels")
			if err != nil {
				return nil, err
			}
			px = v
		}
		// Scrolling up is a negative deltaY.
		if args[0] == "up" {
			px = -px
		}
		return []envelope{{Type: "wheel", Data: map[string]float64{"delta_y": px}}}, nil

	case "wheel":
		if len(args) < 2 {
			return nil, errors.New("wheel requires a deltaY in pixels (negative brightens)")
		}
		dy, err := parseFloat(args[1], "deltaY")
		if err != nil {
			return nil, err
		}
		return []envelope{{Type: "wheel", Data: map[string]float64{"delta_y": dy}}}, nil

	case "touch-start", "touch-move":
		if len(args) < 2 {
			return nil, fmt.Errorf("%s requires a y in pixels", args[0])
		}
		y, err := parseFloat(args[1], "y")
		if err != nil {
			return nil, err
		}
		if args[0] == "touch-start" {
			return []envelope{{Type: "touch_start", Data: map[string]float64{"y": y}}}, nil
		}
		return []envelope{{Type: "touch_move", Data: map[string]any{"y": y, "cancelable": true}}}, nil

	case "touch-end":
		return []envelope{{Type: "touch_end"}}, nil

	case "set":
		if len(args) < 2 {
			return nil, errors.New("set requires a target (0..1 or a percentage like 40%)")
		}
		target, err := parseTarget(args[1])
		if err != nil {
			return nil, err
		}
		return []envelope{{Type: "set_target", Data: map[string]any{"target": target, "origin": "filament-ctl"}}}, nil

	case "drag":
		if len(args) < 3 {
			return nil, errors.New("drag requires a start and an end y in pixels")
		}
		from, err := parseFloat(args[1], "start y")
		if err != nil {
			return nil, err
		}
		to, err := parseFloat(args[2], "end y")
		if err != nil {
			return nil, err
		}
		return []envelope{
			{Type: "touch_start", Data: map[string]float64{"y": from}},
			{Type: "touch_move", Data: map[string]any{"y": to, "cancelable": true}},
			{Type: "touch_end"},
		}, nil

	case "state", "get-state":
		return []envelope{{Type: "get_state"}}, nil

	default:
		return nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

func parseFloat(s, what string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return v, nil
}

// parseTarget accepts 0..1 or a percentage.
func parseTarget(s string) (float64, error) {
	if p, ok := strings.CutSuffix(s, "%"); ok {
		v, err := parseFloat(p, "percentage")
		if err != nil {
			return 0, err
		}
		return v / 100, nil
	}
	return parseFloat(s, "target")
}

// send writes each message as a JSON line and reads one response per message.
func send(socketPath string, msgs []envelope) ([]response, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	enc := json.NewEncoder(conn)
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)

	var out []response
	for _, m := range msgs {
		if err := enc.Encode(m); err != nil {
			return nil, fmt.Errorf("send %s: %w", m.Type, err)
		}
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return nil, fmt.Errorf("read response: %w", err)
			}
			return nil, errors.New("daemon closed the connection")
		}
		var r response
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if r.Status == "error" {
			return nil, fmt.Errorf("daemon error: %s", r.Error)
		}
		out = append(out, r)
	}
	return out, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `filament-ctl - Control filamentd via IPC

Usage:
  filament-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s, or $FILAMENT_IPC_SOCKET)

Commands:
  wheel <deltaY>      Raw wheel delta in pixels (negative brightens)
  touch-start <y>     Begin a drag at y pixels
  touch-move <y>      Continue the drag to y (moving up brightens)
  touch-end           Finish the drag
  up [px]             Scroll up (brighter), default one notch (100px)
  down [px]           Scroll down (dimmer)
  set <target>        Set the target, 0..1 or a percentage (e.g. 40%%)
  drag <y0> <y1>      Touch drag from y0 to y1 (pixels; dragging up brightens)
  state               Print the daemon state
  help, -h, --help    Show this help message

Examples:
  filament-ctl up
  filament-ctl set 25%%
  filament-ctl -socket /run/filament.sock drag 400 250
`, defaultSocket)
}
