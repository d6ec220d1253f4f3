package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/manasdhir/Voice-Bot/pkg/core"
	"github.com/manasdhir/Voice-Bot/pkg/core/types"
)

const (
	DefaultOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultOpenAIModel   = "gemini-2.0-flash"
)

// OpenAIConfig configures an OpenAI-compatible chat completions engine.
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	Temperature   float64
	MaxToolRounds int
	HTTPClient    *http.Client
	MaxRetries    int
}

// OpenAI generates through any OpenAI-compatible chat completions API.
type OpenAI struct {
	client        *openai.Client
	model         string
	temperature   float64
	maxToolRounds int
}

// NewOpenAI creates an OpenAI-compatible engine.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
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
	return &OpenAI{
		client:        &client,
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		maxToolRounds: cfg.MaxToolRounds,
	}
}

func (e *OpenAI) Generate(ctx context.Context, history []types.Message, tools []Tool) (string, error) {
	if err := types.ValidateHistory(history); err != nil {
		return "", core.NewGenerationError("invalid history", err)
	}

	params := openai.ChatCompletionNewParams{
		Model:    e.model,
		Messages: openAIMessages(history),
	}
	if e.temperature > 0 {
		params.Temperature = openai.Float(e.temperature)
	}

	index := toolIndex(tools)
	toolParams := openAITools(tools)

	for round := 0; ; round++ {
		params.Tools = nil
		if len(toolParams) > 0 && round < e.maxToolRounds {
			params.Tools = toolParams
		}

		resp, err := e.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", core.NewGenerationError("chat completion", err)
		}
		if len(resp.Choices) == 0 {
			return "", core.NewGenerationError("chat completion", fmt.Errorf("no choices"))
		}
		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 || params.Tools == nil {
			text, err := finalText(msg.Content)
			if err != nil {
				return "", core.NewGenerationError("chat completion", err)
			}
			return text, nil
		}

		params.Messages = append(params.Messages, msg.ToParam())
		for _, call := range msg.ToolCalls {
			out, err := invokeTool(ctx, index, call.Function.Name, json.RawMessage(call.Function.Arguments))
			if err != nil {
				return "", core.NewGenerationError("tool "+call.Function.Name, err)
			}
			params.Messages = append(params.Messages, openai.ToolMessage(out, call.ID))
		}
	}
}

func openAIMessages(history []types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case types.RoleHuman:
			out = append(out, openai.UserMessage(m.Content))
		case types.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		}
	}
	return out
}

func openAITools(tools []Tool) []openai.ChatCompletionToolParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		if t == nil {
			continue
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name(),
				Description: param.NewOpt(t.Description()),
				Parameters:  openai.FunctionParameters(t.Schema().JSONSchema()),
			},
		})
	}
	return out
}
