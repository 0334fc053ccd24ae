package models

import "fmt"

// ValidationError marks a malformed Recommendation or ChangeRecord. Fatal
// for that one item only.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// GuardrailViolation is expected, non-exceptional: the policy said no. It is
// surfaced as a failed result with the check name and reason, never a crash.
type GuardrailViolation struct {
	Check  string
	Reason string
}

func (e *GuardrailViolation) Error() string {
	return fmt.Sprintf("guardrail %s: %s", e.Check, e.Reason)
}

// ExternalCallError is a timeout or rejection from the ads platform or the
// metrics collaborator. The core never auto-retries within one run, to avoid
// double execution; the caller may re-submit.
type ExternalCallError struct {
	Operation string
	Err       error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("external call %s failed: %v", e.Operation, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

// PersistenceError means the audit store is unavailable. It aborts the
// current run; items already appended remain valid.
type PersistenceError struct {
	Operation string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("audit store %s failed: %v", e.Operation, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// InconsistentStateError reports an audit-log state the reconciliation scan
// found that should be impossible. Detected and reported, never silently
// repaired.
type InconsistentStateError struct {
	Inconsistencies []Inconsistency
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("audit log inconsistent: %d violations found", len(e.Inconsistencies))
}
