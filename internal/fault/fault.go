// Package fault defines the tagged failure kinds reported per device.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies why a device pipeline stopped.
type Kind string

const (
	// Connectivity means neither SSH nor Telnet answered within the retry budget.
	Connectivity Kind = "ConnectivityFailure"

	// Authentication means the device rejected the credentials or enable secret.
	Authentication Kind = "AuthenticationFailure"

	// InsufficientSpace means the declared image size does not fit the device storage.
	InsufficientSpace Kind = "InsufficientSpace"

	// DryRunSkipped is an intentional no-op: the copy was not authorized.
	DryRunSkipped Kind = "DryRunSkipped"

	// VerificationMismatch means the checksum after a copy disagreed with the expected one.
	VerificationMismatch Kind = "VerificationMismatch"

	// Parse means an expected pattern was missing from device output.
	Parse Kind = "ParseFailure"

	// Timeout means a deadline expired or the run was cancelled at a suspension point.
	Timeout Kind = "TimeoutFailure"

	// Copy means the device reported an error while copying.
	Copy Kind = "CopyFailure"

	// Unclassified covers everything else.
	Unclassified Kind = "UnclassifiedFailure"
)

// Error is a classified failure with the operation that produced it.
type Error struct {
	// Kind identifies the failure class.
	Kind Kind

	// Op names the step that failed (e.g. "probe", "check-version").
	Op string

	// Device is the address the failure belongs to, if known.
	Device string

	// Detail is a human-readable description.
	Detail string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Device != "" {
		msg = e.Device + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a classified error.
func New(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

// Newf creates a classified error with a formatted detail.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind. A nil cause returns nil.
func Wrap(kind Kind, op string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// KindOf classifies any error. Context expiry maps to Timeout and
// unknown errors map to Unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Timeout
	}
	return Unclassified
}

// Detail returns the most specific human-readable description of err.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		switch {
		case fe.Detail != "" && fe.Cause != nil:
			return fe.Detail + ": " + fe.Cause.Error()
		case fe.Detail != "":
			return fe.Detail
		case fe.Cause != nil:
			return fe.Cause.Error()
		}
		return string(fe.Kind)
	}
	return err.Error()
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrConnectivity   = &Error{Kind: Connectivity}
	ErrAuthentication = &Error{Kind: Authentication}
	ErrParse          = &Error{Kind: Parse}
	ErrTimeout        = &Error{Kind: Timeout}
	ErrCopy           = &Error{Kind: Copy}
)
