package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrTranscription,
		Message: "empty audio",
	}

	expected := "transcription_error: empty audio"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithOpAndCause(t *testing.T) {
	err := &Error{
		Type:    ErrConfig,
		Op:      "resolve",
		Message: "load persona",
		Err:     errors.New("connection refused"),
	}

	expected := "config_error: resolve: load persona: connection refused"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestWrap_NilIsNil(t *testing.T) {
	if err := Wrap(ErrSynthesis, "synthesize", nil); err != nil {
		t.Fatalf("Wrap(nil)=%v, want nil", err)
	}
}

func TestIsType_ThroughWrapping(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := fmt.Errorf("turn 3: %w", NewGenerationError("generate", cause))

	if !IsType(err, ErrGeneration) {
		t.Fatalf("expected generation error type, got %q", TypeOf(err))
	}
	if IsType(err, ErrTranscription) {
		t.Fatalf("unexpected transcription type match")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
}

func TestTypeOf_PlainError(t *testing.T) {
	if got := TypeOf(errors.New("plain")); got != "" {
		t.Fatalf("TypeOf(plain)=%q, want empty", got)
	}
	if IsType(nil, ErrConfig) {
		t.Fatalf("nil error must not match any type")
	}
}
