package common

import "fmt"

// ValidationError reports a malformed action, config value, or name.
// It is never wrapped into another error kind.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for a field
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DriverError reports a failed browser operation
type DriverError struct {
	Op    string
	Cause error
}

func (e *DriverError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("driver %s failed", e.Op)
	}
	return fmt.Sprintf("driver %s failed: %v", e.Op, e.Cause)
}

func (e *DriverError) Unwrap() error { return e.Cause }

// ActionError reports a failure during action execution. It carries the
// action name and type so execution logs can attribute the failure.
type ActionError struct {
	ActionName string
	ActionType string
	Cause      error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %q (%s) failed: %v", e.ActionName, e.ActionType, e.Cause)
}

func (e *ActionError) Unwrap() error { return e.Cause }

// RepositoryError reports an I/O or constraint failure at the persistence layer.
// Not-found is not an error; storage methods return (nil, nil) or false for it.
type RepositoryError struct {
	Op    string
	Cause error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s failed: %v", e.Op, e.Cause)
}

func (e *RepositoryError) Unwrap() error { return e.Cause }

// SerializationError reports a JSON or schema-level decode failure for stored data
type SerializationError struct {
	What  string
	Cause error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.What, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// CredentialError reports a missing credential, verification failure, or hashing failure
type CredentialError struct {
	Name   string
	Reason string
	Cause  error
}

func (e *CredentialError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("credential error: %s", e.Reason)
	}
	return fmt.Sprintf("credential %q: %s", e.Name, e.Reason)
}

func (e *CredentialError) Unwrap() error { return e.Cause }

// WorkflowError reports a top-level run failure. Stopped marks cooperative
// cancellation rather than a hard failure.
type WorkflowError struct {
	Workflow string
	Stopped  bool
	Cause    error
}

func (e *WorkflowError) Error() string {
	if e.Stopped {
		return fmt.Sprintf("workflow %q stopped by request", e.Workflow)
	}
	return fmt.Sprintf("workflow %q failed: %v", e.Workflow, e.Cause)
}

func (e *WorkflowError) Unwrap() error { return e.Cause }

// ConfigError reports an invalid configuration value at startup or reload
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Key, e.Reason)
}
