package task

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("task not found")
	ErrQueueFull         = errors.New("task queue is full")
	ErrInvalidTransition = errors.New("invalid task state transition")
	ErrDuplicateID       = errors.New("duplicate task id")
)

// Phase names the pipeline step a failure originated in.
type Phase string

const (
	PhaseAcquire   Phase = "acquire"
	PhaseProbe     Phase = "probe"
	PhaseTranscode Phase = "transcode"
	PhaseMerge     Phase = "merge"
	PhaseFinalize  Phase = "finalize"
	PhaseRunner    Phase = "runner"
)

// PhaseError attaches the originating phase to a job failure.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string { return fmt.Sprintf("%s: %v", e.Phase, e.Err) }

func (e *PhaseError) Unwrap() error { return e.Err }

// InPhase wraps err with phase. A nil err stays nil.
func InPhase(phase Phase, err error) error {
	if err == nil {
		return nil
	}
	return &PhaseError{Phase: phase, Err: err}
}

// phaseOf extracts the phase and the user facing description of err.
func phaseOf(err error) (Phase, string) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase, pe.Err.Error()
	}
	return PhaseRunner, err.Error()
}
