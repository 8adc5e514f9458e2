package api

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports a uniqueness, required-field or forbidden-character
// violation. It is always raised before any side effect happens and should be
// surfaced to the caller verbatim.
type ValidationError struct {
	// Entity is the kind of record being validated (e.g. "container", "base")
	Entity string

	// Field is the offending attribute, empty when the violation spans fields
	Field string

	// Message describes the violation
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s: %s", e.Entity, e.Message)
	}
	return fmt.Sprintf("invalid %s %s: %s", e.Entity, e.Field, e.Message)
}

// NewValidationError creates a ValidationError for one field of an entity.
//
// Example:
//
//	return api.NewValidationError("container", "suffix", "only letters, digits and dashes are allowed")
func NewValidationError(entity, field, message string) *ValidationError {
	return &ValidationError{Entity: entity, Field: field, Message: message}
}

// IsValidation checks if an error is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ResolutionKind tells which resolution step failed.
type ResolutionKind string

const (
	ResolutionLink ResolutionKind = "link"
	ResolutionPort ResolutionKind = "port"
)

// ResolutionError is raised when a required link target cannot be found or a
// port range is exhausted. Resolution happens before any remote command is
// issued, so a ResolutionError never leaves partial runtime state behind.
type ResolutionError struct {
	Kind ResolutionKind

	// Owner is the name of the instance being resolved
	Owner string

	// Subject is the application code (links) or local port (ports)
	Subject string

	Message string
}

// Error implements the error interface for ResolutionError.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s %s for %s: %s", e.Kind, e.Subject, e.Owner, e.Message)
}

// NewLinkResolutionError reports a required link without any candidate target.
func NewLinkResolutionError(owner, application string) *ResolutionError {
	return &ResolutionError{
		Kind:    ResolutionLink,
		Owner:   owner,
		Subject: application,
		Message: "a target container is required but none could be found",
	}
}

// NewPortExhaustedError reports that no host port of the server range could
// be assigned to localPort.
func NewPortExhaustedError(owner, localPort string, start, end int) *ResolutionError {
	return &ResolutionError{
		Kind:    ResolutionPort,
		Owner:   owner,
		Subject: localPort,
		Message: fmt.Sprintf("no free host port in range [%d, %d); assign one manually or widen the server port range", start, end),
	}
}

// IsResolution checks if an error is or wraps a ResolutionError.
func IsResolution(err error) bool {
	var r *ResolutionError
	return errors.As(err, &r)
}

// ExecutionError is raised when a remote command exits non-zero or the host
// cannot be reached. Side effects of earlier steps are not rolled back.
type ExecutionError struct {
	Host     string
	Argv     []string
	ExitCode int
	Output   string
	Err      error
}

// Error implements the error interface for ExecutionError.
func (e *ExecutionError) Error() string {
	cmd := strings.Join(e.Argv, " ")
	if e.Err != nil && e.ExitCode == 0 {
		return fmt.Sprintf("command %q on %s failed: %v", cmd, e.Host, e.Err)
	}
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("command %q on %s exited with status %d", cmd, e.Host, e.ExitCode)
	}
	return fmt.Sprintf("command %q on %s exited with status %d: %s", cmd, e.Host, e.ExitCode, out)
}

// Unwrap returns the transport error, if any.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsExecution checks if an error is or wraps an ExecutionError.
func IsExecution(err error) bool {
	var x *ExecutionError
	return errors.As(err, &x)
}

// NotFoundError represents a resource not found error with contextual information.
type NotFoundError struct {
	// ResourceType categorizes the type of resource that was not found
	// (e.g., "container", "base", "application")
	ResourceType string

	// ResourceName is the specific identifier of the resource that was not found
	ResourceName string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// NewNotFoundError creates a new NotFoundError with the specified resource type and name.
func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceName: resourceName}
}

// IsNotFound checks if an error is a NotFoundError using error unwrapping.
//
// Example:
//
//	c, err := st.GetContainer(ctx, id)
//	if api.IsNotFound(err) {
//	    return nil
//	}
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}
