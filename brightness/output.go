package brightness

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorStop is one breakpoint of a color ramp.
type ColorStop struct {
	At    float64
	Color colorful.Color
	Alpha float64
}

// Ramp is a piecewise-linear color gradient over [0,1]. Stops must be sorted by At.
type Ramp []ColorStop

// Filament: cool grey when off, hot orange, then bright white.
var FilamentRamp = Ramp{
	{At: 0, Color: rgb255(0x33, 0x33, 0x33), Alpha: 1},
	{At: 0.2, Color: rgb255(0xff, 0x6b, 0x00), Alpha: 1},
	{At: 1, Color: rgb255(0xff, 0xff, 0xff), Alpha: 1},
}

// GlowRamp drives the drop-shadow around the filament.
var GlowRamp = Ramp{
	{At: 0, Color: colorful.Color{}, Alpha: 0},
	{At: 0.4, Color: rgb255(255, 100, 0), Alpha: 0.3},
	{At: 1, Color: rgb255(255, 220, 150), Alpha: 0.6},
}

func rgb255(r, g, b uint8) colorful.Color {
	return colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
}

// At interpolates the ramp at x. Values outside the stops clamp to the end stops and NaN maps to the first stop.
// Channels are blended in linear RGB.
func (r Ramp) At(x float64) (colorful.Color, float64) {
	if len(r) == 0 {
		return colorful.Color{}, 0
	}
	if math.IsNaN(x) || x <= r[0].At {
		return r[0].Color, r[0].Alpha
	}
	last := r[len(r)-1]
	if x >= last.At {
		return last.Color, last.Alpha
	}
	for i := 1; i < len(r); i++ {
		lo, hi := r[i-1], r[i]
		if x > hi.At {
			continue
		}
		t := 0.0
		if span := hi.At - lo.At; span > 0 {
			t = (x - lo.At) / span
		}
		c := lo.Color.BlendLinearRgb(hi.Color, t).Clamped()
		return c, lo.Alpha + (hi.Alpha-lo.Alpha)*t
	}
	return last.Color, last.Alpha
}

// Output is what a rendering layer consumes each frame.
type Output struct {
	Brightness float64 `json:"brightness"` // smoothed brightness (State.Current)
	Factor     float64 `json:"factor"`     // flicker factor
	Opacity    float64 `json:"opacity"`    // Brightness * Factor

	FilamentColor string  `json:"filament_color"`
	GlowColor     string  `json:"glow_color"`
	GlowAlpha     float64 `json:"glow_alpha"`

	GlassOpacity float64 `json:"glass_opacity"`
	HaloOpacity  float64 `json:"halo_opacity"`
	HaloScale    float64 `json:"halo_scale"` // glow intensity

	WheelOffsetPx    float64 `json:"wheel_offset_px"`
	WheelHighlight   float64 `json:"wheel_highlight"`
	IndicatorOpacity float64 `json:"indicator_opacity"`

	Filament colorful.Color `json:"-"`
	Glow     colorful.Color `json:"-"`
}

// Derive computes the frame output from the smoothed brightness and the flicker factor.
// It has no side effects.
func Derive(current, factor float64) Output {
	b := clamp01(current)
	f := clampFactor(factor)
	opacity := b * f

	filament, _ := FilamentRamp.At(opacity)
	glow, glowAlpha := GlowRamp.At(opacity)

	return Output{
		Brightness: b,
		Factor:     f,
		Opacity:    opacity,

		FilamentColor: filament.Hex(),
		GlowColor:     glow.Hex(),
		GlowAlpha:     glowAlpha,

		GlassOpacity: mapRange(opacity, 0, 1, 0.1, 0.9),
		HaloOpacity:  mapRange(opacity, 0, 1, 0, 0.95),
		HaloScale:    mapRange(opacity, 0, 1, 0.8, 1.8),

		// The wheel tracks the brightness itself, not the flickering light.
		WheelOffsetPx:    mapRange(b, 0, 1, 0, -150),
		WheelHighlight:   mapRange(b, 0, 1, 0, 0.3),
		IndicatorOpacity: mapRange(b, 0, 0.1, 0, 1),

		Filament: filament,
		Glow:     glow,
	}
}

// mapRange maps x from [inLo,inHi] to [outLo,outHi], clamped to the output range.
func mapRange(x, inLo, inHi, outLo, outHi float64) float64 {
	if inHi == inLo {
		return outLo
	}
	t := (x - inLo) / (inHi - inLo)
	t = math.Max(0, math.Min(1, t))
	return outLo + (outHi-outLo)*t
}
