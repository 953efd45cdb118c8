// Package apperrors defines the error taxonomy shared by the job tracking core,
// the execution-service client and the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	// ErrRemoteService is a transient network or service-side fault. Callers may retry.
	ErrRemoteService = errors.New("remote service error")
	// ErrUnknownJob means the execution service has no record of the job id.
	ErrUnknownJob = errors.New("unknown job")
	// ErrUnknownState means the service reported a status string outside the lifecycle enum.
	ErrUnknownState = errors.New("unknown job state")
	// ErrJobNotReady means output was requested before the job completed with a result.
	ErrJobNotReady = errors.New("job not ready")
	// ErrMalformedPath means an output path expression could not be parsed or walked.
	ErrMalformedPath = errors.New("malformed output path")
	// ErrInvalidBinding means an output binding declares zero or several strategies.
	ErrInvalidBinding = errors.New("invalid output binding")
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	JobID    string // Job the failure relates to, if any
	Field    string // For validation errors (e.g., "job_id", "tag")
	Op       string // Operation that failed (e.g., "execsvc.CheckStatus")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel, then the cause, for errors.Is() classification.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// RemoteService wraps an upstream failure of op for jobID.
func RemoteService(jobID, op string, cause error) error {
	msg := fmt.Sprintf("%s failed for job %s", op, jobID)
	if jobID == "" {
		msg = fmt.Sprintf("%s failed", op)
	}
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &Error{
		Sentinel: ErrRemoteService,
		Message:  msg,
		JobID:    jobID,
		Op:       op,
		Cause:    cause,
	}
}

// UnknownJob reports that the execution service does not know jobID.
func UnknownJob(jobID string) error {
	return &Error{
		Sentinel: ErrUnknownJob,
		Message:  fmt.Sprintf("job %s is unknown to the execution service", jobID),
		JobID:    jobID,
	}
}

// UnknownState reports a raw status string that maps to no lifecycle state.
func UnknownState(jobID, raw string) error {
	return &Error{
		Sentinel: ErrUnknownState,
		Message:  fmt.Sprintf("job %s reported unrecognized state %q", jobID, raw),
		JobID:    jobID,
	}
}

// NotReady reports that jobID has no terminal result yet.
func NotReady(jobID, state string) error {
	return &Error{
		Sentinel: ErrJobNotReady,
		Message:  fmt.Sprintf("job %s is not complete (state %q)", jobID, state),
		JobID:    jobID,
	}
}

// MalformedPath reports an output path that cannot be parsed.
func MalformedPath(path, reason string) error {
	return &Error{
		Sentinel: ErrMalformedPath,
		Message:  fmt.Sprintf("malformed output path %q: %s", path, reason),
		Field:    path,
	}
}

// InvalidBinding reports a binding that cannot be loaded.
func InvalidBinding(target, reason string) error {
	return &Error{
		Sentinel: ErrInvalidBinding,
		Message:  fmt.Sprintf("output binding %q: %s", target, reason),
		Field:    target,
	}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
	}
}

// Conflict reports that resource id already exists.
func Conflict(resource, id string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  fmt.Sprintf("%s %s already exists", resource, id),
		JobID:    id,
	}
}
