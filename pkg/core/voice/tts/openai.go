package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/manasdhir/Voice-Bot/pkg/core"
)

const (
	DefaultOpenAIModel = "gpt-4o-mini-tts"
	DefaultOpenAIVoice = "alloy"
)

var openAIVoices = map[string]struct{}{
	"alloy": {}, "ash": {}, "ballad": {}, "coral": {}, "echo": {}, "fable": {},
	"nova": {}, "onyx": {}, "sage": {}, "shimmer": {}, "verse": {},
}

// OpenAIConfig configures an OpenAI-compatible /audio/speech endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Voice      string
	HTTPClient *http.Client
	MaxRetries int
}

// OpenAI synthesizes speech as a single payload.
type OpenAI struct {
	client *openai.Client
	model  string
	voice  string
}

// NewOpenAI creates a single-payload TTS provider.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultOpenAIVoice
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)
	return &OpenAI{client: &client, model: cfg.Model, voice: cfg.Voice}
}

func (p *OpenAI) Name() string { return "openai" }

// Synthesize converts text to audio. Session voices that are not OpenAI
// voice names (for example accent-mapped Murf ids) use the configured voice.
func (p *OpenAI) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.NewSynthesisError("openai", fmt.Errorf("text is empty"))
	}
	voice := p.voice
	if _, ok := openAIVoices[strings.ToLower(opts.Voice)]; ok {
		voice = strings.ToLower(opts.Voice)
	}
	format := strings.ToLower(formatOr(opts.Format, "MP3"))

	resp, err := p.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(p.model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(format),
	})
	if err != nil {
		return nil, core.NewSynthesisError("openai speech", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewSynthesisError("read speech body", err)
	}
	return &Synthesis{Audio: audio, Format: format}, nil
}
