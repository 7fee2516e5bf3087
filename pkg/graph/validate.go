package graph

import "fmt"

// ValidationError describes a single structural problem with a graph.
// It unwraps to ErrInvalidGraph.
type ValidationError struct {
	Field   string // "features", "edge_index" or "dim"
	Index   int    // offending position, -1 if graph-level
	Message string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("graph: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("graph: %s[%d]: %s", e.Field, e.Index, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidGraph }

// Validate checks a graph built elsewhere: every node must carry at least
// an x coordinate, the feature buffer must be whole rows, and every edge
// endpoint must name an existing node. It reports the first problem found.
func (g *Graph) Validate() error {
	if g == nil {
		return &ValidationError{Field: "graph", Index: -1, Message: "nil graph"}
	}
	if g.Dim < 1 {
		return &ValidationError{Field: "dim", Index: -1, Message: fmt.Sprintf("feature width %d has no x coordinate", g.Dim)}
	}
	if len(g.Features)%g.Dim != 0 {
		return &ValidationError{Field: "features", Index: -1,
			Message: fmt.Sprintf("length %d is not a multiple of %d", len(g.Features), g.Dim)}
	}
	if len(g.EdgeIndex)%2 != 0 {
		return &ValidationError{Field: "edge_index", Index: -1,
			Message: fmt.Sprintf("length %d is odd", len(g.EdgeIndex))}
	}
	n := int64(g.NodeCount())
	for i, v := range g.EdgeIndex {
		if v < 0 || v >= n {
			return &ValidationError{Field: "edge_index", Index: i,
				Message: fmt.Sprintf("node %d out of range (%d nodes)", v, n)}
		}
	}
	return nil
}
