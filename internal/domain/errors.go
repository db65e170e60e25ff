package domain

import "errors"

// ErrorKind identifies the category of an engine-reported error (spec §7).
type ErrorKind string

const (
	FileUnsupported           ErrorKind = "file_unsupported"
	DecoderTransient          ErrorKind = "decoder_transient"
	OutOfRangeSeek            ErrorKind = "out_of_range_seek"
	BudgetExceeded            ErrorKind = "budget_exceeded"
	InternalInvariantViolation ErrorKind = "internal_invariant_violation"
)

// EngineError pairs an ErrorKind with the underlying cause, satisfying the
// error interface so it can travel through normal Go error handling and
// still be published on the on_error topic with its kind intact.
type EngineError struct {
	Kind ErrorKind
	Err  error
}

func (e *EngineError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func NewEngineError(kind ErrorKind, err error) *EngineError {
	return &EngineError{Kind: kind, Err: err}
}

var (
	ErrNoSeekPending   = errors.New("no seek request pending")
	ErrNotLoaded       = errors.New("no media loaded")
	ErrWorkerNotRunning = errors.New("worker is not running")
)
