package generation

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrFetchExhausted marks a fetch that failed on every allowed attempt.
	ErrFetchExhausted = errors.New("fetch attempts exhausted")
)

const (
	ErrorCodePlanner    = "PLANNER_ERROR"
	ErrorCodeGeneration = "GENERATION_ERROR"
	ErrorCodeStorage    = "STORAGE_ERROR"
	ErrorCodeInternal   = "INTERNAL_ERROR"
)

// StructuralError marks a failure in a sequential prerequisite step (concept
// or structure planning). It aborts the whole pipeline and fails the job.
type StructuralError struct {
	Step string
	Err  error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

func structural(step string, err error) *StructuralError {
	return &StructuralError{Step: step, Err: err}
}

// UnitError marks a single fan-out unit's failure. It is caught at the fan-out
// boundary, recorded, and never propagates past the pipeline.
type UnitError struct {
	UnitName string
	Err      error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %q failed: %v", e.UnitName, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }
