package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/manasdhir/Voice-Bot/pkg/core"
)

const (
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel       = "whisper-large-v3-turbo"
)

// ErrEmptyAudio is returned when there is nothing to transcribe.
var ErrEmptyAudio = errors.New("audio payload is empty")

// OpenAIConfig configures an OpenAI-compatible transcription endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	MaxRetries int
}

// OpenAI transcribes audio through any OpenAI-compatible
// /audio/transcriptions endpoint (Groq by default).
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a transcription provider.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGroqBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)
	return &OpenAI{client: &client, model: cfg.Model}
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error) {
	if audio == nil {
		return nil, core.NewTranscriptionError("transcribe", ErrEmptyAudio)
	}
	data, err := io.ReadAll(audio)
	if err != nil {
		return nil, core.NewTranscriptionError("read audio", err)
	}
	if len(data) == 0 {
		return nil, core.NewTranscriptionError("transcribe", ErrEmptyAudio)
	}

	model := opts.Model
	if model == "" {
		model = p.model
	}
	filename := opts.Filename
	if filename == "" {
		filename = "audio.wav"
	}
	mimeType := opts.MIMEType
	if mimeType == "" {
		mimeType = "audio/wav"
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(data), filename, mimeType),
		Model: openai.AudioModel(model),
	}
	lang := strings.TrimSpace(opts.Language)
	if lang != "" {
		params.Language = openai.String(lang)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, core.NewTranscriptionError(fmt.Sprintf("%s transcription", model), err)
	}
	return &Transcript{Text: strings.TrimSpace(resp.Text), Language: lang}, nil
}
