package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/tensile/pkg/prompt"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Table builder
// ---------------------------------------------------------------------------

// tableBuilder accumulates rules in script order. A script starts from an
// empty rule list and the built-in defaults.
type tableBuilder struct {
	table *prompt.Table
}

func newTableBuilder() *tableBuilder {
	base := prompt.DefaultTable()
	return &tableBuilder{table: &prompt.Table{Defaults: base.Defaults}}
}

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	order      []string
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments,
// remembering keyword order.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			i++
			continue
		}
		if _, seen := result.kw[name]; !seen {
			result.order = append(result.order, name)
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i += 2
		} else {
			result.kw[name] = zygo.SexpNull
			i++
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toPositive extracts a strictly positive number.
func toPositive(s zygo.Sexp) (float64, error) {
	f, err := toFloat64(s)
	if err != nil {
		return 0, err
	}
	if !(f > 0) {
		return 0, fmt.Errorf("value %v must be positive", f)
	}
	return f, nil
}

// toString extracts a plain string from a Sexp. Keywords are rejected so
// that (dimension :long ...) is not mistaken for a prompt keyword.
func toString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return "", fmt.Errorf("expected string, got keyword :%s", str.S[len(kwPrefix):])
	}
	return str.S, nil
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_beam) and plain strings ("beam").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

// toArchetype converts a keyword or string to a prompt.Archetype.
func toArchetype(s zygo.Sexp) (prompt.Archetype, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, fmt.Errorf("expected archetype keyword (:beam, :l-bracket): %w", err)
	}
	a, ok := prompt.ParseArchetype(name)
	if !ok {
		return 0, fmt.Errorf("unknown archetype %q, expected beam or l-bracket", name)
	}
	return a, nil
}

// toParam converts a keyword name to a prompt.Param.
func toParam(name string) (prompt.Param, error) {
	p, ok := prompt.ParseParam(name)
	if !ok {
		return "", fmt.Errorf("unknown dimension %q, expected length, width, height or thickness", name)
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the rule builtins into a zygomys environment.
// The builtins append to b's table during evaluation.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, b *tableBuilder) {

	// -----------------------------------------------------------------------
	// (archetype "l-bracket" :l-bracket)
	// -----------------------------------------------------------------------
	env.AddFunction("archetype", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("archetype requires a prompt keyword and an archetype, got %d arguments", len(args))
		}
		kw, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("archetype: keyword: %w", err)
		}
		if kw == "" {
			return zygo.SexpNull, fmt.Errorf("archetype: keyword must not be empty")
		}
		a, err := toArchetype(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("archetype: %w", err)
		}
		b.table.Archetypes = append(b.table.Archetypes, prompt.ArchetypeRule{Keyword: kw, Archetype: a})
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (dimension "long" :length 20)
	// (dimension "huge" :length 40 :width 8)
	// -----------------------------------------------------------------------
	env.AddFunction("dimension", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("dimension requires exactly one prompt keyword")
		}
		kw, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("dimension: keyword: %w", err)
		}
		if kw == "" {
			return zygo.SexpNull, fmt.Errorf("dimension: keyword must not be empty")
		}
		if len(pa.order) == 0 {
			return zygo.SexpNull, fmt.Errorf("dimension %q sets no parameter", kw)
		}

		rules := make([]prompt.DimensionRule, 0, len(pa.order))
		for _, pname := range pa.order {
			p, err := toParam(pname)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("dimension %q: %w", kw, err)
			}
			v, err := toPositive(pa.kw[pname])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("dimension %q: %s: %w", kw, pname, err)
			}
			rules = append(rules, prompt.DimensionRule{Keyword: kw, Param: p, Value: v})
		}
		b.table.Dimensions = append(b.table.Dimensions, rules...)
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (defaults :l-bracket :height 12 :thickness 3)
	// -----------------------------------------------------------------------
	env.AddFunction("defaults", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 1 {
			return zygo.SexpNull, fmt.Errorf("defaults requires an archetype")
		}
		a, err := toArchetype(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defaults: %w", err)
		}
		pa := parseArgs(args[1:])
		if len(pa.positional) > 0 {
			return zygo.SexpNull, fmt.Errorf("defaults: unexpected positional argument %s", pa.positional[0].SexpString(nil))
		}

		dims := b.table.Defaults[a].Clone()
		if len(dims) == 0 {
			dims = prompt.DefaultDimensions(a)
		}
		for _, pname := range pa.order {
			p, err := toParam(pname)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("defaults %s: %w", a, err)
			}
			v, err := toPositive(pa.kw[pname])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("defaults %s: %s: %w", a, pname, err)
			}
			dims[p] = v
		}
		b.table.Defaults[a] = dims
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (include-defaults)
	//
	// Appends the built-in keyword rules at this point in the script.
	// Registered as "include_defaults"; the preprocessor converts the
	// kebab-case name.
	// -----------------------------------------------------------------------
	env.AddFunction("include_defaults", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 0 {
			return zygo.SexpNull, fmt.Errorf("include-defaults takes no arguments")
		}
		base := prompt.DefaultTable()
		b.table.Archetypes = append(b.table.Archetypes, base.Archetypes...)
		b.table.Dimensions = append(b.table.Dimensions, base.Dimensions...)
		return zygo.SexpNull, nil
	})
}
