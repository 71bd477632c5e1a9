// Package orcherr implements the five-class error taxonomy (§7): user
// input, plan, storage, provider and cancellation failures, each a typed
// error with Unwrap so callers can classify with errors.As the way the
// teacher's internal/recovery/state/failures.go classifies graph/workspace/
// execution/system failures.
package orcherr

import (
	"errors"
	"fmt"
)

// Class is the stable taxonomy discriminator.
type Class string

const (
	ClassUserInput    Class = "user_input"
	ClassPlan         Class = "plan"
	ClassStorage      Class = "storage"
	ClassProvider     Class = "provider"
	ClassCancellation Class = "cancellation"
)

// UserInputError: missing required input, invalid enum, quota/character
// limits, invalid model/voice selection, schema violation. Not retried;
// surfaced to the user verbatim.
type UserInputError struct {
	Code    string
	Message string
	Cause   error
}

func (e *UserInputError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("user input error (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("user input error: %s", e.Message)
}
func (e *UserInputError) Unwrap() error { return e.Cause }

// PlanError: cycle, unsatisfied binding, ambiguous fan-in, unknown producer
// reference. Fatal for the run; carries the offending ID for machine parsing.
type PlanError struct {
	Code        string
	Message     string
	OffendingID string
	Cause       error
}

func (e *PlanError) Error() string {
	if e.OffendingID != "" {
		return fmt.Sprintf("plan error (%s) at %s: %s", e.Code, e.OffendingID, e.Message)
	}
	return fmt.Sprintf("plan error (%s): %s", e.Code, e.Message)
}
func (e *PlanError) Unwrap() error { return e.Cause }

// StorageError: I/O, or manifest hash Conflict. Conflicts prompt a re-plan;
// other I/O is transient and may be retried by the caller.
type StorageError struct {
	Code      string
	Message   string
	Conflict  bool
	Transient bool
	Cause     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %s", e.Code, e.Message)
}
func (e *StorageError) Unwrap() error { return e.Cause }

// ProviderError: rate-limited (retryable with backoff), upstream failure
// (retryable only if the provider marks it so), authentication (treated as
// user input by the caller, per §7).
type ProviderError struct {
	Code         string
	Message      string
	Retryable    bool
	RetryAfterMs int64
	Cause        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (%s): %s", e.Code, e.Message)
}
func (e *ProviderError) Unwrap() error { return e.Cause }

// CancellationError: clean cancellation, recorded and reported rather than
// treated as a failure.
type CancellationError struct {
	JobID string
	Cause error
}

func (e *CancellationError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("cancelled: job %s", e.JobID)
	}
	return "cancelled"
}
func (e *CancellationError) Unwrap() error { return e.Cause }

// Classify maps an arbitrary error into the taxonomy's Class using
// errors.As, falling back to ClassStorage for unrecognized errors (the most
// conservative class: unrecoverable unless proven transient).
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	var ui *UserInputError
	if errors.As(err, &ui) {
		return ClassUserInput
	}
	var pe *PlanError
	if errors.As(err, &pe) {
		return ClassPlan
	}
	var se *StorageError
	if errors.As(err, &se) {
		return ClassStorage
	}
	var prov *ProviderError
	if errors.As(err, &prov) {
		return ClassProvider
	}
	var ce *CancellationError
	if errors.As(err, &ce) {
		return ClassCancellation
	}
	return ClassStorage
}

// Retryable reports whether err's class is one the executor should retry,
// honoring a provider's retryAfterMs hint (§4.5).
func Retryable(err error) (retry bool, retryAfterMs int64) {
	var prov *ProviderError
	if errors.As(err, &prov) {
		return prov.Retryable, prov.RetryAfterMs
	}
	var se *StorageError
	if errors.As(err, &se) {
		return se.Transient, 0
	}
	return false, 0
}
