package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Lifecycle errors
	ErrAlreadyLoaded = errors.New("model already loaded")
	ErrNotLoaded     = errors.New("model not loaded")

	// ErrModelNotLoaded is returned by inference operations. It matches
	// ErrNotLoaded under errors.Is.
	ErrModelNotLoaded = fmt.Errorf("inference requires a loaded model: %w", ErrNotLoaded)

	// Backend errors
	ErrBackendConstructionFailed = errors.New("backend construction failed")
	ErrBackendCallFailed         = errors.New("backend call failed")
	ErrProviderMissing           = errors.New("no backend provider registered")

	// Request errors
	ErrInvalidInput = errors.New("invalid input")
	ErrQueueFull    = errors.New("model queue is full")
	ErrEngineClosed = errors.New("inference engine is shut down")

	// Audio errors
	ErrCaptureLimit = errors.New("too many active capture sessions")
	ErrAudioClosed  = errors.New("audio bridge is shut down")
)

// BackendError wraps a failure raised by a backend instance. It matches both
// the taxonomy sentinel (construction or call failure) and the native error.
type BackendError struct {
	Kind ModelKind
	Op   OperationKind
	Err  error
}

func (e *BackendError) sentinel() error {
	if e.Op == OpLoad {
		return ErrBackendConstructionFailed
	}
	return ErrBackendCallFailed
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Kind, e.Op, e.sentinel(), e.Err)
}

// Unwrap exposes the sentinel and the native error to errors.Is / errors.As.
func (e *BackendError) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}
