// Package errors provides standardized error handling patterns for rulescope
// components.
//
// The package implements a three-class error classification system: Transient
// (temporary, retryable), Invalid (bad input, non-retryable), and Fatal
// (unrecoverable, stop processing). Classification enables components to make
// informed decisions about retries and degradation without hardcoded error
// string matching, and integrates with Go's standard error handling patterns
// (errors.Is, errors.As, error wrapping chains).
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")
//	errors.WrapInvalid(err, "Component", "Method", "action")
//	errors.WrapFatal(err, "Component", "Method", "action")
//
// The generic Wrap() applies the format without changing classification.
//
// Standard error variables cover common conditions (lifecycle, connection,
// data, storage, configuration); use them instead of ad-hoc error messages so
// callers can match with errors.Is.
package errors
