package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/manasdhir/Voice-Bot/pkg/core"
)

const (
	DefaultMurfBaseURL = "https://api.murf.ai"
	DefaultMurfVoice   = "en-IN-isha"

	murfStreamPath      = "/v1/speech/stream"
	murfChunkSize       = 16 * 1024
	murfDefaultFormat   = "MP3"
	murfDefaultRateHz   = 44100
	murfMaxErrBodyBytes = 4 * 1024
)

// MurfConfig configures the Murf streaming TTS client.
type MurfConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Murf streams speech from Murf's HTTP streaming endpoint.
type Murf struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewMurf creates a Murf TTS provider.
func NewMurf(cfg MurfConfig) *Murf {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMurfBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Murf{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
	}
}

func (m *Murf) Name() string { return "murf" }

type murfRequest struct {
	Text       string `json:"text"`
	VoiceID    string `json:"voiceId"`
	Format     string `json:"format"`
	SampleRate int    `json:"sampleRate"`
}

// Synthesize collects the streamed audio into one payload.
func (m *Murf) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	stream, err := m.SynthesizeStream(ctx, text, opts)
	if err != nil {
		return nil, err
	}
	audio, err := ReadAll(stream)
	if err != nil {
		return nil, err
	}
	return &Synthesis{Audio: audio, Format: formatOr(opts.Format, murfDefaultFormat)}, nil
}

// SynthesizeStream starts synthesis and returns once the response headers
// have arrived; audio chunks are forwarded as they are read.
func (m *Murf) SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.NewSynthesisError("murf", fmt.Errorf("text is empty"))
	}
	voice := opts.Voice
	if voice == "" {
		voice = DefaultMurfVoice
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = murfDefaultRateHz
	}
	body, err := json.Marshal(murfRequest{
		Text:       text,
		VoiceID:    voice,
		Format:     formatOr(opts.Format, murfDefaultFormat),
		SampleRate: rate,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+murfStreamPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, core.NewSynthesisError("murf request", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, murfMaxErrBodyBytes))
		return nil, core.NewSynthesisError("murf", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	stream := NewSynthesisStream()
	go func() {
		defer resp.Body.Close()
		defer stream.FinishSending()
		buf := make([]byte, murfChunkSize)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !stream.Send(chunk) {
					return
				}
			}
			if readErr == io.EOF {
				return
			}
			if readErr != nil {
				stream.SetError(core.NewSynthesisError("murf stream", readErr))
				return
			}
		}
	}()
	return stream, nil
}

func formatOr(format, def string) string {
	if strings.TrimSpace(format) == "" {
		return def
	}
	return strings.ToUpper(strings.TrimSpace(format))
}
