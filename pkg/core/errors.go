package core

import (
	"errors"
	"fmt"
)

// Error is a categorized failure raised by one of the session collaborators.
type Error struct {
	Type    ErrorType `json:"type"`
	Op      string    `json:"op,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Op, msg)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorType categorizes errors by the stage that produced them.
type ErrorType string

const (
	ErrConfig        ErrorType = "config_error"
	ErrTranscription ErrorType = "transcription_error"
	ErrGeneration    ErrorType = "generation_error"
	ErrRetrieval     ErrorType = "retrieval_error"
	ErrSynthesis     ErrorType = "synthesis_error"
	ErrSummary       ErrorType = "summary_error"
	ErrTransport     ErrorType = "transport_error"
)

// Wrap attaches a type and operation to err. A nil err yields nil.
func Wrap(t ErrorType, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Type: t, Op: op, Err: err}
}

// NewConfigError creates a configuration error.
func NewConfigError(op string, err error) *Error {
	return &Error{Type: ErrConfig, Op: op, Err: err}
}

// NewTranscriptionError creates a transcription error.
func NewTranscriptionError(message string, err error) *Error {
	return &Error{Type: ErrTranscription, Message: message, Err: err}
}

// NewGenerationError creates a generation error.
func NewGenerationError(message string, err error) *Error {
	return &Error{Type: ErrGeneration, Message: message, Err: err}
}

// NewSynthesisError creates a synthesis error.
func NewSynthesisError(message string, err error) *Error {
	return &Error{Type: ErrSynthesis, Message: message, Err: err}
}

// TypeOf returns the type of the first *Error in err's chain, or "".
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// IsType reports whether err's chain carries an *Error of type t.
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}
