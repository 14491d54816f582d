package scheduler

import (
	"errors"
	"fmt"
)

// Sentinel errors for outcomes callers are expected to branch on.
// ErrAlreadyAssigned and ErrNoEligibleAgent are benign: the first means a
// concurrent caller won the assignment race, the second means the task stays
// pending until an agent becomes available.
var (
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyExists   = errors.New("record already exists")
	ErrVersionConflict = errors.New("version conflict")
	ErrAlreadyAssigned = errors.New("task already assigned")
	ErrNoEligibleAgent = errors.New("no eligible agent")
)

// ValidationError reports a caller mistake: unknown ids, dependency cycles,
// invalid state transitions. Never retried automatically.
type ValidationError struct {
	Op     string // The operation that rejected the request
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func validationErr(op, format string, args ...any) error {
	return &ValidationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a caller mistake rather than a
// transient condition, so calling UIs can decide whether to retry.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UnsatisfiableError reports a task that can never become runnable because a
// dependency is missing, cancelled, or terminally failed.
type UnsatisfiableError struct {
	TaskID       string
	DependencyID string
	Reason       string // "missing", "cancelled", or "failed"
}

func (e *UnsatisfiableError) Error() string {
	return fmt.Sprintf("task %s can never run: dependency %s is %s", e.TaskID, e.DependencyID, e.Reason)
}
