package review

import (
	"errors"
	"fmt"
)

// Sentinel errors for the request-level failure taxonomy. Individual
// analyzer failures are metadata on the result, not errors.
var (
	// ErrAllAnalyzersFailed means no analyzer produced findings at all.
	ErrAllAnalyzersFailed = errors.New("all analyzers failed")
	// ErrDeadlineExceeded means the caller's budget expired before the
	// pipeline settled. Nothing is cached on this path.
	ErrDeadlineExceeded = errors.New("review deadline exceeded")
	// ErrFindingNotFound means the finding id is unknown or its result
	// has been evicted.
	ErrFindingNotFound = errors.New("finding not found")
	// ErrResultNotFound means no result exists for the fingerprint.
	ErrResultNotFound = errors.New("review result not found")
)

// StageError wraps a failure with the pipeline stage that produced it, for
// diagnosability.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}
