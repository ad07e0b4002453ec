package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"filament/brightness"

	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"
)

// filament-tui runs a brightness controller in the terminal: scroll the mouse
// wheel over it or drag with the left button, and watch the bulb.

const (
	frameInterval = 16 * time.Millisecond // ~60 FPS

	wheelNotchPx = 100.0 // browsers report one notch as 100px
	cellHeightPx = 16.0  // terminal rows are reported in cells, touch works in px

	// Below this distance from the target the bulb no longer changes visibly.
	settleEpsilon = 1e-4
)

var background = colorful.Color{R: 0.04, G: 0.04, B: 0.05}

// canvas is the part of tcell.Screen the renderer draws on.
type canvas interface {
	SetContent(x, y int, primary rune, combining []rune, style tcell.Style)
	Size() (width, height int)
}

type app struct {
	ctrl  *brightness.Controller
	sched *brightness.LoopScheduler

	dragging bool
	lastTick time.Time

	// dirty forces the next frame to be drawn; drawnFactor is the flicker
	// factor on screen.
	dirty       bool
	drawnFactor float64
}

func newApp(ctrl *brightness.Controller, sched *brightness.LoopScheduler) *app {
	return &app{ctrl: ctrl, sched: sched, dirty: true}
}

// handleEvent applies one terminal event. It returns false when the user quits.
func (a *app) handleEvent(ev tcell.Event) bool {
	a.dirty = true
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyUp:
			a.ctrl.OnWheel(-wheelNotchPx)
		case tcell.KeyDown:
			a.ctrl.OnWheel(wheelNotchPx)
		case tcell.KeyRune:
			return a.handleRune(ev.Rune())
		}

	case *tcell.EventMouse:
		a.handleMouse(ev)
	}
	return true
}

func (a *app) handleRune(r rune) bool {
	switch {
	case r == 'q':
		return false
	case r >= '0' && r <= '9':
		// '1'..'9' are tenths, '0' is full.
		target := float64(r-'0') / 10
		if r == '0' {
			target = 1
		}
		a.ctrl.SetTarget(target)
	case r == 'x':
		a.ctrl.SetTarget(0)
	}
	return true
}

func (a *app) handleMouse(ev *tcell.EventMouse) {
	_, y := ev.Position()
	py := float64(y) * cellHeightPx
	btn := ev.Buttons()

	if btn&tcell.WheelUp != 0 {
		a.ctrl.OnWheel(-wheelNotchPx)
	}
	if btn&tcell.WheelDown != 0 {
		a.ctrl.OnWheel(wheelNotchPx)
	}

	switch {
	case btn&tcell.Button1 != 0 && !a.dragging:
		a.dragging = true
		a.ctrl.OnTouchStart(py)
	case btn&tcell.Button1 != 0:
		a.ctrl.OnTouchMove(py, true)
	case a.dragging:
		a.dragging = false
		a.ctrl.OnTouchEnd()
	}
}

// needsDraw reports whether the screen is out of date: an event arrived, the
// spring is still moving, or the flicker factor changed since the last draw.
func (a *app) needsDraw() bool {
	return a.dirty ||
		!brightness.Settled(a.ctrl.State(), settleEpsilon) ||
		a.ctrl.Flicker().Factor != a.drawnFactor
}

// tick advances the spring by the time since the previous tick.
func (a *app) tick(now time.Time) {
	if a.lastTick.IsZero() {
		a.lastTick = now
		return
	}
	a.ctrl.Tick(now.Sub(a.lastTick).Seconds())
	a.lastTick = now
}

func toTcell(c colorful.Color) tcell.Color {
	r, g, b := c.Clamped().RGB255()
	return tcell.NewRGBColor(int32(r), int32(g), int32(b))
}

// draw renders the bulb, its halo and a gauge line.
func (a *app) draw(scr canvas) {
	w, h := scr.Size()
	if w <= 0 || h <= 0 {
		return
	}
	out := a.ctrl.Output()
	st := a.ctrl.State()
	a.dirty = false
	a.drawnFactor = out.Factor

	bgStyle := tcell.StyleDefault.Background(toTcell(background))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			scr.SetContent(x, y, ' ', nil, bgStyle)
		}
	}

	cx, cy := w/2, (h-2)/2
	radius := math.Max(2, math.Min(float64(h-2)/3, float64(w)/6))
	filament := background.BlendRgb(out.Filament, out.Opacity)
	glass := background.BlendRgb(out.Glow, out.GlassOpacity*0.5)

	haloR := radius * out.HaloScale
	for y := 0; y < h-2; y++ {
		for x := 0; x < w; x++ {
			// Cells are about twice as tall as wide.
			dx := float64(x-cx) / 2
			dy := float64(y - cy)
			d := math.Hypot(dx, dy)

			switch {
			case d <= radius*0.35:
				scr.SetContent(x, y, '█', nil, tcell.StyleDefault.Foreground(toTcell(filament)).Background(toTcell(background)))
			case d <= radius:
				scr.SetContent(x, y, '░', nil, tcell.StyleDefault.Foreground(toTcell(glass)).Background(toTcell(background)))
			case d <= haloR:
				falloff := 1 - (d-radius)/(haloR-radius)
				halo := background.BlendRgb(out.Glow, out.HaloOpacity*out.GlowAlpha*falloff)
				scr.SetContent(x, y, ' ', nil, tcell.StyleDefault.Background(toTcell(halo)))
			}
		}
	}

	textStyle := tcell.StyleDefault.Foreground(tcell.ColorSilver).Background(toTcell(background))
	status := fmt.Sprintf(" target %.2f  current %.2f  factor %.2f ", st.Target, st.Current, out.Factor)
	if a.ctrl.Flicker().Dipping {
		status += "[dip] "
	}
	drawText(scr, 0, h-1, status, textStyle)

	gaugeX := len(status)
	gaugeW := w - gaugeX - 1
	if gaugeW > 2 {
		filled := int(math.Round(st.Current * float64(gaugeW)))
		gauge := tcell.StyleDefault.Foreground(toTcell(filament)).Background(toTcell(background))
		for i := 0; i < gaugeW; i++ {
			r := '░'
			if i < filled {
				r = '█'
			}
			scr.SetContent(gaugeX+i, h-1, r, nil, gauge)
		}
	}

	drawText(scr, 0, 0, " wheel/↑↓ adjust · drag to dim · 1-9,0 set · x off · q quit ", textStyle)
}

func drawText(scr canvas, x, y int, s string, style tcell.Style) {
	for _, r := range s {
		scr.SetContent(x, y, r, nil, style)
		x++
	}
}

func (a *app) run(screen tcell.Screen) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	eventChan := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			eventChan <- ev
		}
	}()

	for {
		select {
		case ev := <-eventChan:
			if _, ok := ev.(*tcell.EventResize); ok {
				screen.Sync()
			}
			if !a.handleEvent(ev) {
				return
			}

		case f := <-a.sched.C():
			f()

		case now := <-ticker.C:
			a.tick(now)
			if a.needsDraw() {
				a.draw(screen)
				screen.Show()
			}
		}
	}
}

func main() {
	seed := flag.Uint64("seed", 0, "Flicker random seed (0 = random)")
	target := flag.Float64("target", 0, "Initial target brightness (0..1)")
	flag.Parse()

	var rng brightness.Rand
	if *seed != 0 {
		rng = brightness.NewRand(*seed)
	}
	ctrl := brightness.New(brightness.DefaultConfig(), rng)
	sched := brightness.NewLoopScheduler(0)

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	screen.EnableMouse()

	a := newApp(ctrl, sched)
	ctrl.Mount(sched)
	if *target > 0 {
		ctrl.SetTarget(*target)
	}

	a.run(screen)

	ctrl.Unmount()
	sched.Close()
	screen.Fini()
}
