package bplib

import (
	"errors"
	"fmt"
)

// Code identifies the class of failure returned by a Queue operation,
// mirroring the status codes the flash store returned in the original
// C implementation (BP_FAILEDSTORE, BP_STOREFULL, ...).
type Code int

const (
	// CodeSuccess is never returned as an error; it exists so Code's
	// zero value reads as "no failure" in logs.
	CodeSuccess Code = iota
	CodeFailedStore
	CodeStoreFull
	CodeTimeout
	CodeFailedMem
	CodeFailedOS
	CodeInvalidHandle
)

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeFailedStore:
		return "failed_store"
	case CodeStoreFull:
		return "store_full"
	case CodeTimeout:
		return "timeout"
	case CodeFailedMem:
		return "failed_mem"
	case CodeFailedOS:
		return "failed_os"
	case CodeInvalidHandle:
		return "invalid_handle"
	default:
		return "unknown"
	}
}

// StatusError is the error type returned by every Queue operation that can
// fail. It carries a Code so callers can branch with errors.Is against the
// package's sentinel errors, and wraps an optional underlying cause.
type StatusError struct {
	Code    Code
	Message string
	Cause   error
}

func (e *StatusError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error { return e.Cause }

// Is reports whether target is a sentinel for the same Code, so that
// errors.Is(err, ErrStoreFull) works regardless of the message/cause.
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel errors for use with errors.Is.
var (
	ErrFailedStore   = &StatusError{Code: CodeFailedStore, Message: "failed store"}
	ErrStoreFull     = &StatusError{Code: CodeStoreFull, Message: "store full"}
	ErrTimeout       = &StatusError{Code: CodeTimeout, Message: "timeout"}
	ErrFailedMem     = &StatusError{Code: CodeFailedMem, Message: "failed memory allocation"}
	ErrFailedOS      = &StatusError{Code: CodeFailedOS, Message: "failed os primitive"}
	ErrInvalidHandle = &StatusError{Code: CodeInvalidHandle, Message: "invalid handle"}
)

func statusErrorf(code Code, cause error, format string, args ...any) *StatusError {
	return &StatusError{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// StatusCode extracts the Code from err, if err is (or wraps) a *StatusError.
// Returns CodeSuccess, false when err does not carry a status.
func StatusCode(err error) (Code, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return CodeSuccess, false
}
