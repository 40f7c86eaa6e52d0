// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-basp.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrWouldBlock         = fmt.Errorf("operation would block")
	ErrSocketDisconnected = fmt.Errorf("socket disconnected")
	ErrRemoteLookupFailed = fmt.Errorf("remote lookup failed")
	ErrMultiplexerClosed  = fmt.Errorf("multiplexer is closed")
	ErrInvalidArgument    = fmt.Errorf("invalid argument")
	ErrNotSupported       = fmt.Errorf("operation not supported")
	ErrNotFound           = fmt.Errorf("resource not found")

	// ErrNetworkSyscallFailed matches every error built by NewSyscallError via errors.Is.
	ErrNetworkSyscallFailed = NewError(ErrCodeNetworkSyscallFailed, "network syscall failed")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeNetworkSyscallFailed
	ErrCodeTimeout
	ErrCodeNotSupported
	ErrCodeNotFound
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap exposes the underlying platform error.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches structured errors by code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// NewSyscallError wraps a failed OS call. The result carries the syscall
// name and the platform error string.
func NewSyscallError(syscall string, cause error) *Error {
	e := NewError(ErrCodeNetworkSyscallFailed, "network syscall failed").
		WithContext("syscall", syscall)
	if cause != nil {
		e.WithContext("error", cause.Error())
	}
	e.Cause = cause
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ExitReason describes why an actor terminated. It travels inside down messages.
type ExitReason uint8

const (
	ExitNormal ExitReason = iota + 1
	ExitUnhandledException
	ExitUnknown
	ExitOutOfWorkers
	ExitUserShutdown
	ExitKill
	ExitRemoteLinkUnreachable
	ExitUnreachable
)

var exitReasonNames = [...]string{
	ExitNormal:                "normal",
	ExitUnhandledException:    "unhandled_exception",
	ExitUnknown:               "unknown",
	ExitOutOfWorkers:          "out_of_workers",
	ExitUserShutdown:          "user_shutdown",
	ExitKill:                  "kill",
	ExitRemoteLinkUnreachable: "remote_link_unreachable",
	ExitUnreachable:           "unreachable",
}

// Valid reports whether r is a known exit reason.
func (r ExitReason) Valid() bool {
	return r >= ExitNormal && r <= ExitUnreachable
}

func (r ExitReason) Error() string {
	if !r.Valid() {
		return fmt.Sprintf("exit_reason(%d)", uint8(r))
	}
	return exitReasonNames[r]
}
