// Package tts provides text-to-speech functionality.
package tts

import (
	"bytes"
	"context"
	"errors"
	"sync"
)

// Provider is the interface for text-to-speech services that return the
// whole payload at once.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)
}

// StreamingProvider is implemented by providers that can emit audio while
// it is still being generated.
type StreamingProvider interface {
	Provider

	// SynthesizeStream converts text to streaming audio.
	SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string // Voice identifier
	Language   string // Language code
	Format     string // Output format: "MP3", "WAV", "PCM"
	SampleRate int    // Sample rate in Hz
}

// Synthesis is the result of synthesis.
type Synthesis struct {
	Audio  []byte // Audio data
	Format string // Audio format
}

// Open synthesizes text with p and always returns a stream. Streaming
// providers are used natively; single-payload providers yield one chunk.
func Open(ctx context.Context, p Provider, text string, opts SynthesizeOptions) (*SynthesisStream, error) {
	if p == nil {
		return nil, errors.New("tts provider is nil")
	}
	if sp, ok := p.(StreamingProvider); ok {
		return sp.SynthesizeStream(ctx, text, opts)
	}
	syn, err := p.Synthesize(ctx, text, opts)
	if err != nil {
		return nil, err
	}
	return StreamFromAudio(syn.Audio), nil
}

// SynthesisStream provides streaming audio output.
type SynthesisStream struct {
	chunks    chan []byte
	errMu     sync.Mutex
	err       error
	done      chan struct{}
	closeOnce sync.Once
}

// NewSynthesisStream creates a new synthesis stream.
func NewSynthesisStream() *SynthesisStream {
	return &SynthesisStream{
		chunks: make(chan []byte, 32),
		done:   make(chan struct{}),
	}
}

// StreamFromAudio wraps a complete payload as an already finished stream.
func StreamFromAudio(audio []byte) *SynthesisStream {
	s := &SynthesisStream{
		chunks: make(chan []byte, 1),
		done:   make(chan struct{}),
	}
	if len(audio) > 0 {
		s.chunks <- audio
	}
	close(s.chunks)
	return s
}

// Chunks returns the channel of audio chunks. It is closed when the
// producer finishes, fails, or the stream is closed.
func (s *SynthesisStream) Chunks() <-chan []byte {
	return s.chunks
}

// Err returns the error that ended the stream, if any. Call it after
// Chunks has been drained.
func (s *SynthesisStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close releases the producer. Safe to call more than once.
func (s *SynthesisStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Done is closed once Close has been called.
func (s *SynthesisStream) Done() <-chan struct{} {
	return s.done
}

// SetError sets the stream error.
func (s *SynthesisStream) SetError(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

// Send sends a chunk to the stream. Returns false if stream is closed.
func (s *SynthesisStream) Send(chunk []byte) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.done:
		return false
	}
}

// FinishSending closes the chunks channel to signal completion.
func (s *SynthesisStream) FinishSending() {
	close(s.chunks)
}

// ReadAll drains the stream into one buffer.
func ReadAll(s *SynthesisStream) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	defer s.Close()
	var buf bytes.Buffer
	for chunk := range s.Chunks() {
		buf.Write(chunk)
	}
	return buf.Bytes(), s.Err()
}
