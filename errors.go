// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers commonly branch on.
var (
	// ErrNotLoggedIn indicates an operation that needs an authenticated session
	ErrNotLoggedIn = errors.New("session is not logged in")

	// ErrNoTransaction indicates a transaction call without an open transaction
	ErrNoTransaction = errors.New("no transaction in progress")

	// ErrTransactionInProgress indicates StartTransaction on an open transaction
	ErrTransactionInProgress = errors.New("transaction already in progress")

	// ErrWatchTimeout is recorded on a watcher that expired before completion
	ErrWatchTimeout = errors.New("watch timed out")

	// ErrObjectNotFound indicates a DN that did not resolve to any object
	ErrObjectNotFound = errors.New("managed object not found")
)

// ValidationError reports contradictory or incomplete caller arguments.
//
// A ValidationError is always raised before any network activity.
type ValidationError struct {
	// Operation name that rejected the arguments
	Operation string

	// Human-readable error message
	Message string

	// Err is an optional sentinel the validation failure maps to
	Err error
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("ucs: %s: invalid arguments: %s", e.Operation, e.Message)
}

// Unwrap returns the sentinel error, if any
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a non-zero errorCode on an otherwise well-formed exchange.
type ProtocolError struct {
	// Operation is the wire name of the method that failed
	Operation string

	// Code is the server errorCode attribute
	Code int

	// Description is the server errorDescr attribute
	Description string

	// InvocationResult is the server invocationResult attribute
	InvocationResult string
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ucs: %s failed: [ErrorCode]: %d [ErrorDescription]: %s", e.Operation, e.Code, e.Description)
}

// DetailedError returns the full error message including the invocation result
//
// This should only be used in logging contexts where the raw server detail is
// acceptable.
//
// Example:
//
//	var perr *ucs.ProtocolError
//	if errors.As(err, &perr) {
//	    log.Debug(perr.DetailedError())
//	}
func (e *ProtocolError) DetailedError() string {
	if e.InvocationResult == "" {
		return e.Error()
	}
	return fmt.Sprintf("ucs: %s failed: [ErrorCode]: %d [ErrorDescription]: %s (invocation result: %s)",
		e.Operation, e.Code, e.Description, e.InvocationResult)
}

// TransportError wraps a network or HTTP failure.
//
// Err is the error returned by the HTTP stack, untouched; StatusCode is set
// when the server answered with an unexpected HTTP status.
type TransportError struct {
	// Operation is the wire name of the method being sent
	Operation string

	// StatusCode is the HTTP status when the failure is an HTTP status
	StatusCode int

	// Err is the underlying transport error
	Err error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ucs: %s: transport failed: HTTP %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("ucs: %s: transport failed: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying transport error
func (e *TransportError) Unwrap() error {
	return e.Err
}

func newValidationError(op, format string, args ...any) *ValidationError {
	return &ValidationError{Operation: op, Message: fmt.Sprintf(format, args...)}
}

// IsProtocolError reports whether err carries a server error code, returning it.
func IsProtocolError(err error) (*ProtocolError, bool) {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
