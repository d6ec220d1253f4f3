// Package stt provides speech-to-text functionality.
package stt

import (
	"context"
	"io"
)

// Provider is the interface for speech-to-text services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts one complete audio payload to text.
	Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error)
}

// TranscribeOptions configures transcription.
type TranscribeOptions struct {
	Model    string // Provider-specific model
	Language string // ISO language code; empty lets the provider detect it
	Filename string // Upload filename hint (default: "audio.wav")
	MIMEType string // Upload content type (default: "audio/wav")
}

// Transcript is the result of transcription.
type Transcript struct {
	Text     string // Full transcribed text
	Language string // Language that was requested, if any
}
