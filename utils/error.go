package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every propagated sync failure so callers can branch
// on kind instead of string-matching messages.
type ErrorKind string

const (
	// ErrorKindTransientIO: source/store temporarily unreachable. Aborts the
	// current run; the scheduler retries on its own cadence.
	ErrorKindTransientIO ErrorKind = "transient_io"
	// ErrorKindValidation: a single row failed to convert or failed a
	// business rule. Recorded per record, run continues.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindConstraint: store constraint failure other than the
	// idempotent duplicate-key case.
	ErrorKindConstraint ErrorKind = "constraint"
	// ErrorKindBusinessRule: a deletion candidate was rejected by the guard.
	ErrorKindBusinessRule ErrorKind = "business_rule"
	// ErrorKindFatal: missing credentials/identifiers. Aborts the run before
	// any reads.
	ErrorKindFatal ErrorKind = "fatal"
)

// KindError attaches an ErrorKind to a wrapped error.
type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error {
	return e.Err
}

func WrapError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

func KindErrorf(kind ErrorKind, format string, args ...any) error {
	return &KindError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the classified kind of err, or empty if unclassified.
func KindOf(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// IsRunFatal reports whether err must abort the whole run rather than a
// single record.
func IsRunFatal(err error) bool {
	switch KindOf(err) {
	case ErrorKindTransientIO, ErrorKindFatal:
		return true
	}
	return false
}
