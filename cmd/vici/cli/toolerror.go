// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies command errors so that scripts can tell bad
// input from an unreachable daemon without parsing error text. Each
// category has its own exit code.
type ErrorCategory string

const (
	// CategoryValidation indicates invalid input: wrong argument count,
	// unparseable flags, malformed messages. Fix the input and retry.
	CategoryValidation ErrorCategory = "validation"

	// CategoryNotFound indicates a referenced thing does not exist:
	// a missing file, a command or event the daemon does not know.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryTransient indicates a failure that may pass on retry:
	// the daemon socket is unreachable, a call timed out.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal indicates an unexpected failure: I/O errors,
	// corrupt captures, daemon protocol violations.
	CategoryInternal ErrorCategory = "internal"
)

// ExitCode returns the process exit code for errors of this category.
func (c ErrorCategory) ExitCode() int {
	switch c {
	case CategoryValidation:
		return 2
	case CategoryNotFound:
		return 3
	case CategoryTransient:
		return 4
	default:
		return 1
	}
}

// ToolError is a categorized error returned by commands. It wraps the
// inner error, preserving the chain for errors.Is and errors.As. Use
// the category constructors rather than building one directly.
type ToolError struct {
	// Category classifies the error for programmatic handling.
	Category ErrorCategory

	// Err is the underlying error with the human-readable message.
	Err error
}

// Error returns the underlying error message without the category.
func (e *ToolError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error { return e.Err }

// Validation creates a validation error: the caller provided bad input.
func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// Transient creates a transient error: a temporary failure that may succeed on retry.
func Transient(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

// Internal creates an internal error: an unexpected failure, bug, or I/O error.
func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}

// Categorize returns the category of err: the category of the first
// ToolError in its chain, or CategoryInternal.
func Categorize(err error) ErrorCategory {
	var toolError *ToolError
	if errors.As(err, &toolError) {
		return toolError.Category
	}
	return CategoryInternal
}
