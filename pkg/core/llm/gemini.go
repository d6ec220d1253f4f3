package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/manasdhir/Voice-Bot/pkg/core"
	"github.com/manasdhir/Voice-Bot/pkg/core/types"
)

const (
	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

// GeminiConfig configures the native Gemini engine.
type GeminiConfig struct {
	APIKey        string
	BaseURL       string // optional endpoint override
	Model         string
	Temperature   float32
	MaxToolRounds int
}

// Gemini generates with the Gemini API through google.golang.org/genai.
type Gemini struct {
	client        *genai.Client
	model         string
	temperature   float32
	maxToolRounds int
}

// NewGemini creates a Gemini engine.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{
		client:        client,
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		maxToolRounds: cfg.MaxToolRounds,
	}, nil
}

func (e *Gemini) Generate(ctx context.Context, history []types.Message, tools []Tool) (string, error) {
	if err := types.ValidateHistory(history); err != nil {
		return "", core.NewGenerationError("invalid history", err)
	}
	system, rest := types.SplitSystem(history)
	contents := geminiContents(rest)
	if len(contents) == 0 {
		return "", core.NewGenerationError("generate content", fmt.Errorf("no contents"))
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(system)}}
	}
	if e.temperature > 0 {
		t := e.temperature
		cfg.Temperature = &t
	}
	index := toolIndex(tools)
	decls := geminiTools(tools)

	for round := 0; ; round++ {
		cfg.Tools = nil
		if len(decls) > 0 && round < e.maxToolRounds {
			cfg.Tools = decls
		}

		resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, cfg)
		if err != nil {
			return "", core.NewGenerationError("generate content", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", core.NewGenerationError("generate content", fmt.Errorf("no candidates"))
		}
		cand := resp.Candidates[0].Content

		var text strings.Builder
		var calls []*genai.FunctionCall
		for _, p := range cand.Parts {
			if p == nil {
				continue
			}
			if p.FunctionCall != nil {
				calls = append(calls, p.FunctionCall)
				continue
			}
			text.WriteString(p.Text)
		}
		if len(calls) == 0 || cfg.Tools == nil {
			out, err := finalText(text.String())
			if err != nil {
				return "", core.NewGenerationError("generate content", err)
			}
			return out, nil
		}

		contents = append(contents, &genai.Content{Role: geminiRoleModel, Parts: cand.Parts})
		responses := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			args, _ := json.Marshal(call.Args)
			out, err := invokeTool(ctx, index, call.Name, args)
			if err != nil {
				return "", core.NewGenerationError("tool "+call.Name, err)
			}
			responses = append(responses, genai.NewPartFromFunctionResponse(call.Name, map[string]any{"output": out}))
		}
		contents = append(contents, &genai.Content{Role: geminiRoleUser, Parts: responses})
	}
}

func geminiContents(history []types.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := geminiRoleUser
		if m.Role == types.RoleAssistant {
			role = geminiRoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(m.Content)},
		})
	}
	return out
}

func geminiTools(tools []Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		if t == nil {
			continue
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  geminiSchema(t.Schema()),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func geminiSchema(s Schema) *genai.Schema {
	out := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(s.Properties)),
		Required:   append([]string(nil), s.Required...),
	}
	for name, p := range s.Properties {
		out.Properties[name] = &genai.Schema{Type: geminiType(p.Type), Description: p.Description}
	}
	return out
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
