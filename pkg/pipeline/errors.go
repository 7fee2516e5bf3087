package pipeline

import "fmt"

// Stage names one step of a run.
type Stage string

const (
	StageParse     Stage = "parse"
	StageGeometry  Stage = "geometry"
	StageGraph     Stage = "graph"
	StageInference Stage = "inference"
	StageColorize  Stage = "colorize"
)

// StageError wraps a failure with the stage it happened in.
type StageError struct {
	RunID   string
	Stage   Stage
	Wrapped error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Wrapped)
}

func (e *StageError) Unwrap() error {
	return e.Wrapped
}
