package prompt

import "strings"

// ArchetypeRule selects an archetype when Keyword occurs in the prompt.
type ArchetypeRule struct {
	Keyword   string
	Archetype Archetype
}

// DimensionRule overrides one parameter when Keyword occurs in the prompt.
type DimensionRule struct {
	Keyword string
	Param   Param
	Value   float64
}

// Table is an ordered keyword table. Rules are evaluated in slice order and
// the last matching rule wins for a given archetype or parameter, so
// "long and short" resolves to whichever of the two rules comes later in
// the table, independent of word order in the prompt.
type Table struct {
	Archetypes []ArchetypeRule
	Dimensions []DimensionRule
	Defaults   map[Archetype]Dimensions
}

// builtinDefaults are the fixed per-archetype defaults.
var builtinDefaults = map[Archetype]Dimensions{
	Beam: {
		ParamLength: 10,
		ParamWidth:  2,
		ParamHeight: 2,
	},
	LBracket: {
		ParamLength:    10,
		ParamWidth:     2,
		ParamHeight:    10,
		ParamThickness: 2,
	},
}

// DefaultDimensions returns a fresh copy of the built-in defaults for a.
// Unknown archetypes get the Beam defaults.
func DefaultDimensions(a Archetype) Dimensions {
	d, ok := builtinDefaults[a]
	if !ok {
		d = builtinDefaults[Beam]
	}
	return d.Clone()
}

// DefaultTable returns the built-in keyword table.
func DefaultTable() *Table {
	return &Table{
		Archetypes: []ArchetypeRule{
			{Keyword: "l-bracket", Archetype: LBracket},
		},
		Dimensions: []DimensionRule{
			{Keyword: "long", Param: ParamLength, Value: 20},
			{Keyword: "short", Param: ParamLength, Value: 5},
			{Keyword: "wide", Param: ParamWidth, Value: 4},
			{Keyword: "narrow", Param: ParamWidth, Value: 1},
			{Keyword: "tall", Param: ParamHeight, Value: 4},
			{Keyword: "flat", Param: ParamHeight, Value: 1},
		},
		Defaults: map[Archetype]Dimensions{
			Beam:     DefaultDimensions(Beam),
			LBracket: DefaultDimensions(LBracket),
		},
	}
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{
		Archetypes: append([]ArchetypeRule(nil), t.Archetypes...),
		Dimensions: append([]DimensionRule(nil), t.Dimensions...),
		Defaults:   make(map[Archetype]Dimensions, len(t.Defaults)),
	}
	for a, d := range t.Defaults {
		out.Defaults[a] = d.Clone()
	}
	return out
}

// Parser applies a fixed Table. It is immutable and safe for concurrent use.
type Parser struct {
	table *Table
}

// NewParser returns a parser over a private copy of t. A nil table selects
// the built-in one.
func NewParser(t *Table) *Parser {
	if t == nil {
		t = DefaultTable()
	}
	return &Parser{table: t.Clone()}
}

// Table returns a copy of the parser's table.
func (p *Parser) Table() *Table {
	return p.table.Clone()
}

var defaultParser = NewParser(nil)

// Parse maps text to a ShapeSpec using the built-in table.
func Parse(text string) ShapeSpec {
	return defaultParser.Parse(text)
}

// Parse maps text to a ShapeSpec. It never fails: text without any
// keyword yields a Beam with default dimensions.
func (p *Parser) Parse(text string) ShapeSpec {
	arch := Beam
	for _, r := range p.table.Archetypes {
		if r.Keyword != "" && strings.Contains(text, r.Keyword) {
			arch = r.Archetype
		}
	}
	if !arch.Known() {
		arch = Beam
	}

	dims := p.defaults(arch)
	for _, r := range p.table.Dimensions {
		if r.Keyword == "" || !(r.Value > 0) {
			continue
		}
		if strings.Contains(text, r.Keyword) {
			dims[r.Param] = r.Value
		}
	}

	return ShapeSpec{Archetype: arch, Dimensions: dims}
}

// defaults merges the table defaults for a over the built-in ones, keeping
// only strictly positive values.
func (p *Parser) defaults(a Archetype) Dimensions {
	dims := DefaultDimensions(a)
	for k, v := range p.table.Defaults[a] {
		if v > 0 {
			dims[k] = v
		}
	}
	return dims
}
