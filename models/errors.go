package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable classification surfaced to callers.
type ErrorKind string

const (
	KindInvalidArgument     ErrorKind = "InvalidArgument"
	KindProviderUnavailable ErrorKind = "ProviderUnavailable"
	KindRelayUnavailable    ErrorKind = "RelayUnavailable"
	KindAuthExpired         ErrorKind = "AuthExpired"
	KindConflict            ErrorKind = "Conflict"
	KindInvalidSchedule     ErrorKind = "InvalidSchedule"
	KindDeliveryRejected    ErrorKind = "DeliveryRejected"
	KindNotFound            ErrorKind = "NotFound"
	KindCanceled            ErrorKind = "Canceled"
	KindInternal            ErrorKind = "Internal"
)

// IsRetryable reports whether kind is transient and eligible for backoff.
func IsRetryable(kind ErrorKind) bool {
	return kind == KindProviderUnavailable || kind == KindRelayUnavailable
}

// StageError carries an ErrorKind through the layers.
type StageError struct {
	Kind    ErrorKind
	Stage   Stage
	Message string
	Err     error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Stage != "" {
		msg = fmt.Sprintf("%s failed: %s", e.Stage, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Err }

// Is matches any *StageError of the same kind, so errors.Is(err, ErrConflict) works.
func (e *StageError) Is(target error) bool {
	t, ok := target.(*StageError)
	return ok && t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound = &StageError{Kind: KindNotFound}
	ErrConflict = &StageError{Kind: KindConflict}
)

// NewError builds a StageError with no cause.
func NewError(kind ErrorKind, format string, args ...any) error {
	return &StageError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies cause as kind.
func WrapError(kind ErrorKind, cause error, format string, args ...any) error {
	return &StageError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf extracts the ErrorKind from err. Context errors map to Canceled and
// ProviderUnavailable; anything unclassified is Internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindProviderUnavailable
	}
	return KindInternal
}

// WithStage tags err with stage, keeping its kind.
func WithStage(err error, stage Stage) error {
	var se *StageError
	if errors.As(err, &se) {
		c := *se
		c.Stage = stage
		return &c
	}
	return &StageError{Kind: KindOf(err), Stage: stage, Message: "stage error", Err: err}
}
