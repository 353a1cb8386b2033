// Package apperrors defines the tagged error taxonomy for the query pipeline.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. The kind is stable and safe to return
// to callers as the error_type field of the response envelope.
type Kind string

const (
	KindInvalidInput        Kind = "InvalidInput"
	KindAuthFailure         Kind = "AuthFailure"
	KindOutOfScope          Kind = "OutOfScope"
	KindClarification       Kind = "Clarification"
	KindSafetyViolation     Kind = "SafetyViolation"
	KindGenerationFailure   Kind = "GenerationFailure"
	KindExecutionError      Kind = "ExecutionError"
	KindTimeout             Kind = "Timeout"
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
)

// PipelineError is a classified pipeline failure. Message is user-safe;
// Cause carries internal detail that stays in logs.
type PipelineError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// New creates a classified pipeline error with a user-safe message.
func New(kind Kind, message string) *PipelineError {
	return &PipelineError{Kind: kind, Message: message}
}

// Wrap creates a classified pipeline error around an underlying cause.
func Wrap(kind Kind, message string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, or empty string if err is not a
// PipelineError.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// UserMessage returns the user-safe message for err. True failures get a
// generic retry message so internal detail never reaches the caller.
func UserMessage(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case KindExecutionError, KindTimeout, KindUpstreamUnavailable:
			if pe.Message != "" {
				return pe.Message
			}
			return "The request could not be completed. Please retry in a moment."
		default:
			return pe.Message
		}
	}
	return "An unexpected error occurred. Please retry in a moment."
}

// IsRefusal reports whether err is a governed refusal rather than a true
// failure. Refusals are returned with HTTP 200 and success:false.
func IsRefusal(err error) bool {
	switch KindOf(err) {
	case KindOutOfScope, KindClarification, KindSafetyViolation, KindInvalidInput:
		return true
	default:
		return false
	}
}
