package catalog

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a design or variant does not exist or is
	// not owned by the caller. Both cases are reported the same way.
	ErrNotFound = errors.New("not found")
	// ErrConflict matches every *ConflictError.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable reports a failing cache or audit queue. It never leaves
	// the component that produced it.
	ErrUnavailable = errors.New("upstream unavailable")
)

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError reports a duplicate size within a design or a batch.
type ConflictError struct {
	DesignID string
	Size     string
}

func (e *ConflictError) Error() string {
	if e.DesignID == "" {
		return fmt.Sprintf("duplicate size %q", e.Size)
	}
	return fmt.Sprintf("design %s already has size %q", e.DesignID, e.Size)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// PartialWriteError is returned when the design write succeeded but some
// variant writes did not. Nothing is rolled back; re-running an update with
// the Failed sizes as a batch completes the design.
type PartialWriteError struct {
	DesignID string
	Created  []Variant
	Updated  []Variant
	Failed   []string
	Err      error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("design %s partially written, failed sizes [%s]: %v",
		e.DesignID, strings.Join(e.Failed, ", "), e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
