package analysis

import (
	"errors"
	"fmt"

	"github.com/levelx/growth-cli/pkg/completion"
	"github.com/levelx/growth-cli/pkg/xapi"
)

// NotFoundError reports an account or handle that does not exist.
type NotFoundError struct {
	Kind string // "account", "handle", "analysis"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

// NewNotFoundError creates a NotFoundError for the given kind and key.
func NewNotFoundError(kind, key string) *NotFoundError {
	return &NotFoundError{Kind: kind, Key: key}
}

// IsNotFound returns true if the error chain contains a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// ValidationError reports model output that is structurally invalid for the
// phase that requested it. It aborts the run: nothing is persisted.
type ValidationError struct {
	Phase  string // "profile", "synthesis"
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Phase, e.Reason)
}

// NewValidationError creates a ValidationError for the given phase.
func NewValidationError(phase, reason string) *ValidationError {
	return &ValidationError{Phase: phase, Reason: reason}
}

// IsValidation returns true if the error chain contains a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCompletionError returns true if the error originated in the LLM client.
func IsCompletionError(err error) bool {
	var ce *completion.Error
	return errors.As(err, &ce)
}

// IsXAPIError returns true if the error originated in the X API client.
func IsXAPIError(err error) bool {
	var xe *xapi.Error
	return errors.As(err, &xe)
}
