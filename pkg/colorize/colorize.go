// Package colorize maps a scalar stress field to per-vertex colours.
// Low stress is violet-blue, high stress is red.
package colorize

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// HueSpan is the fraction of the hue circle used: hue runs from
// HueSpan turns at zero stress down to 0 (red) at full stress.
const HueSpan = 0.7

// RGB is a colour with components in [0, 1].
type RGB struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// Hex returns the colour as #rrggbb.
func (c RGB) Hex() string {
	return colorful.Color{R: c.R, G: c.G, B: c.B}.Clamped().Hex()
}

// Bytes returns the colour as 8-bit channels.
func (c RGB) Bytes() (r, g, b uint8) {
	return colorful.Color{R: c.R, G: c.G, B: c.B}.Clamped().RGB255()
}

// Normalize scales field by its largest finite magnitude and clamps the
// result to [0, 1]. When that magnitude is zero or there are no finite
// values, every entry is 0. Non-finite entries become 0.
func Normalize(field []float64) []float64 {
	out := make([]float64, len(field))

	var peak float64
	for _, v := range field {
		if finite(v) {
			peak = math.Max(peak, math.Abs(v))
		}
	}
	if !(peak > 0) || !finite(peak) {
		return out
	}

	for i, v := range field {
		if !finite(v) {
			continue
		}
		out[i] = clamp01(v / peak)
	}
	return out
}

// Color maps one normalised value to its colour: hue HueSpan*(1-n) turns
// at full saturation and half lightness.
func Color(n float64) RGB {
	if !finite(n) {
		n = 0
	}
	n = clamp01(n)
	c := colorful.Hsl(HueSpan*(1-n)*360, 1, 0.5)
	return RGB{R: c.R, G: c.G, B: c.B}
}

// Colorize returns one colour per field entry, order-aligned.
func Colorize(field []float64) []RGB {
	norm := Normalize(field)
	out := make([]RGB, len(norm))
	for i, n := range norm {
		out[i] = Color(n)
	}
	return out
}

// Degenerate reports whether field normalises to a flat colour: it is
// empty, all zero, or has no finite values.
func Degenerate(field []float64) bool {
	for _, v := range field {
		if finite(v) && v != 0 {
			return false
		}
	}
	return true
}

// Flatten writes colours as an interleaved [r0,g0,b0, r1,...] float32
// buffer parallel to a mesh vertex buffer.
func Flatten(colors []RGB) []float32 {
	out := make([]float32, 0, 3*len(colors))
	for _, c := range colors {
		out = append(out, float32(c.R), float32(c.G), float32(c.B))
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
