// Package corepipeerrors defines the typed error taxonomy shared by every
// component of the pipeline, so callers can branch on error kind instead of
// matching on message text.
package corepipeerrors

import (
	"errors"
	"fmt"
)

// Kind categorizes an error for retry/HTTP-status/alerting decisions.
type Kind int

const (
	KindStorageNotFound Kind = iota
	KindStorageAuth
	KindStorageTransient
	KindStorageFatal
	KindFormat
	KindDSP
	KindData
	KindModel
	KindThreshold
	KindTimeout
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindStorageNotFound:
		return "storage_not_found"
	case KindStorageAuth:
		return "storage_auth"
	case KindStorageTransient:
		return "storage_transient"
	case KindStorageFatal:
		return "storage_fatal"
	case KindFormat:
		return "format"
	case KindDSP:
		return "dsp"
	case KindData:
		return "data"
	case KindModel:
		return "model"
	case KindThreshold:
		return "threshold"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the single typed error carried through the pipeline. Every
// constructor below fills in Kind plus enough context to log or branch on
// without parsing Message.
type Error struct {
	Kind    Kind
	Stage   string // DSP stage, storage op, or job step; optional
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Stage != "" && e.Cause != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Kind, e.Stage, e.Message, e.Cause)
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Stage, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newErr(kind Kind, stage, msg string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Message: msg, Cause: cause}
}

// NewStorageError builds a storage error of the given sub-kind. sub must be
// one of KindStorageNotFound, KindStorageAuth, KindStorageTransient,
// KindStorageFatal.
func NewStorageError(sub Kind, op string, cause error) *Error {
	return newErr(sub, op, "object store operation failed", cause)
}

// NewFormatError reports an unreadable or unsupported signal file.
func NewFormatError(detail string, cause error) *Error {
	return newErr(KindFormat, "", detail, cause)
}

// NewDSPError reports a failure inside a named DSP stage (resample, notch,
// bandpass, bad_channels, ica, muscle).
func NewDSPError(stage string, cause error) *Error {
	return newErr(KindDSP, stage, "dsp stage failed", cause)
}

// NewDataError reports malformed or insufficient input data.
func NewDataError(detail string, cause error) *Error {
	return newErr(KindData, "", detail, cause)
}

// NewModelError reports a failure loading, saving, or running a model.
func NewModelError(detail string, cause error) *Error {
	return newErr(KindModel, "", detail, cause)
}

// NewThresholdError reports a trained model failing the promotion gate.
func NewThresholdError(detail string) *Error {
	return newErr(KindThreshold, "", detail, nil)
}

// NewTimeoutError reports a job exceeding its soft or hard time limit.
func NewTimeoutError(stage string, cause error) *Error {
	return newErr(KindTimeout, stage, "exceeded time limit", cause)
}

// NewCancelledError reports a job stopped by explicit cancellation.
func NewCancelledError(stage string) *Error {
	return newErr(KindCancelled, stage, "cancelled", nil)
}

// As attempts to unwrap err into *Error. Returns nil if err is not (or does
// not wrap) a *Error.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e := As(err)
	return e != nil && e.Kind == kind
}

// IsTransient reports whether err should be retried by the caller: transient
// storage errors, and nothing else.
func IsTransient(err error) bool {
	return IsKind(err, KindStorageTransient)
}

// IsTerminalJobError reports whether err should move a job straight to the
// failed state without retry (fatal storage, data, format, model, threshold
// errors all qualify; timeouts and cancellation are handled by the caller
// since they carry their own terminal status).
func IsTerminalJobError(err error) bool {
	e := As(err)
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindStorageFatal, KindStorageAuth, KindStorageNotFound, KindFormat, KindData, KindDSP, KindModel, KindThreshold:
		return true
	default:
		return false
	}
}
