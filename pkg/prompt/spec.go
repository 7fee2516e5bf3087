// Package prompt turns a free-text part description into a ShapeSpec.
// Matching is a coarse, case-sensitive substring classifier driven by an
// ordered keyword table; it never fails and always yields positive
// dimensions.
package prompt

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidPrompt is reserved for prompts the parser refuses. Parse never
// returns it: unrecognised text degrades to a default Beam.
var ErrInvalidPrompt = errors.New("prompt: invalid prompt")

// Archetype is a named parametric shape family.
type Archetype int

const (
	Beam     Archetype = iota // axis-aligned rectangular prism
	LBracket                  // L-shaped outline extruded along the width
)

func (a Archetype) String() string {
	switch a {
	case Beam:
		return "beam"
	case LBracket:
		return "l-bracket"
	default:
		return "unknown"
	}
}

// Known reports whether a is one of the supported archetypes.
func (a Archetype) Known() bool {
	return a == Beam || a == LBracket
}

// MarshalText encodes the archetype by name.
func (a Archetype) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes an archetype name.
func (a *Archetype) UnmarshalText(b []byte) error {
	v, ok := ParseArchetype(string(b))
	if !ok {
		return fmt.Errorf("prompt: unknown archetype %q", b)
	}
	*a = v
	return nil
}

// ParseArchetype maps an archetype name back to its value. Unknown names
// return Beam and false.
func ParseArchetype(name string) (Archetype, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "beam":
		return Beam, true
	case "l-bracket", "lbracket", "l_bracket":
		return LBracket, true
	}
	return Beam, false
}

// Param names one scalar dimension of a shape.
type Param string

const (
	ParamLength    Param = "length"
	ParamWidth     Param = "width"
	ParamHeight    Param = "height"
	ParamThickness Param = "thickness"
)

// Params lists every known parameter in a stable order.
var Params = []Param{ParamLength, ParamWidth, ParamHeight, ParamThickness}

// ParseParam validates a parameter name.
func ParseParam(name string) (Param, bool) {
	p := Param(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Params {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// Dimensions maps parameter names to strictly positive values.
// A Dimensions value handed out by this package is never shared; callers
// may keep it without copying.
type Dimensions map[Param]float64

// Get returns the value of p and whether it is set.
func (d Dimensions) Get(p Param) (float64, bool) {
	v, ok := d[p]
	return v, ok
}

func (d Dimensions) Length() float64    { return d[ParamLength] }
func (d Dimensions) Width() float64     { return d[ParamWidth] }
func (d Dimensions) Height() float64    { return d[ParamHeight] }
func (d Dimensions) Thickness() float64 { return d[ParamThickness] }

// Clone returns an independent copy.
func (d Dimensions) Clone() Dimensions {
	out := make(Dimensions, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// String renders the dimensions in parameter order, e.g. "length=10 width=2".
func (d Dimensions) String() string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, string(k))
	}
	sort.Slice(keys, func(i, j int) bool { return paramRank(Param(keys[i])) < paramRank(Param(keys[j])) })
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, d[Param(k)]))
	}
	return strings.Join(parts, " ")
}

func paramRank(p Param) int {
	for i, known := range Params {
		if p == known {
			return i
		}
	}
	return len(Params)
}

// ShapeSpec is the parameterization handed to the geometry generator.
type ShapeSpec struct {
	Archetype  Archetype  `json:"archetype"`
	Dimensions Dimensions `json:"dimensions"`
}

// Valid reports whether the archetype is known and every dimension is
// strictly positive.
func (s ShapeSpec) Valid() bool {
	if !s.Archetype.Known() || len(s.Dimensions) == 0 {
		return false
	}
	for _, v := range s.Dimensions {
		if !(v > 0) {
			return false
		}
	}
	return true
}

func (s ShapeSpec) String() string {
	return fmt.Sprintf("%s(%s)", s.Archetype, s.Dimensions)
}
