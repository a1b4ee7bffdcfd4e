package domain

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrChecksumMismatch  = errors.New("artifact checksum mismatch")
	ErrValidation        = errors.New("validation failed")
	ErrForbidden         = errors.New("access denied")
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindTransport   ErrorKind = "transport"
	KindNotFound    ErrorKind = "not_found"
	KindIntegrity   ErrorKind = "integrity"
	KindPersistence ErrorKind = "persistence"
)

// Retryable reports whether a task failing with this kind may succeed if run again.
func (k ErrorKind) Retryable() bool {
	return k == KindTransport || k == KindPersistence
}

// StageError is the error a stage handler returns after recording a failure.
type StageError struct {
	Err   error
	Stage Stage
	Kind  ErrorKind
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewValidationError wraps a formatted message with ErrValidation.
func NewValidationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// kinded is implemented by errors from other packages that know their own kind,
// such as transport failures raised by the service clients.
type kinded interface {
	ErrorKind() ErrorKind
}

// KindOf classifies err. Unknown errors are treated as persistence failures,
// the only remaining kind raised from inside the orchestrator.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	var k kinded
	switch {
	case errors.As(err, &k):
		return k.ErrorKind()
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidTransition):
		return KindValidation
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrArtifactNotFound):
		return KindNotFound
	case errors.Is(err, ErrChecksumMismatch):
		return KindIntegrity
	}
	return KindPersistence
}
