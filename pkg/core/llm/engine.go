// Package llm exposes text generation as a single call that may run a
// provider-specific tool-calling loop before it returns.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/manasdhir/Voice-Bot/pkg/core/types"
)

// DefaultMaxToolRounds bounds how many times a model may call tools before
// it is asked for a plain answer.
const DefaultMaxToolRounds = 4

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Engine generates the next assistant message for a conversation.
type Engine interface {
	// Generate returns the assistant text for history. Tools may be invoked
	// zero or more times before the final answer.
	Generate(ctx context.Context, history []types.Message, tools []Tool) (string, error)
}

// Tool is a function the model may call while generating.
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	Call(ctx context.Context, args json.RawMessage) (string, error)
}

// Schema describes a tool's object-typed argument.
type Schema struct {
	Properties map[string]Property
	Required   []string
}

// Property is one field of a tool argument.
type Property struct {
	Type        string // "string", "integer", "number", "boolean"
	Description string
}

// JSONSchema renders s as a JSON-schema object.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[name] = prop
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(s.Required) > 0 {
		out["required"] = append([]string(nil), s.Required...)
	}
	return out
}

// invokeTool runs a tool call and always returns text for the model. Tool
// failures are reported back to the model rather than ending generation;
// only context cancellation is returned as an error.
func invokeTool(ctx context.Context, tools map[string]Tool, name string, args json.RawMessage) (string, error) {
	t, ok := tools[name]
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", name), nil
	}
	out, err := t.Call(ctx, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "error: " + err.Error(), nil
	}
	return out, nil
}

func toolIndex(tools []Tool) map[string]Tool {
	idx := make(map[string]Tool, len(tools))
	for _, t := range tools {
		if t == nil {
			continue
		}
		idx[t.Name()] = t
	}
	return idx
}

func finalText(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyResponse
	}
	return s, nil
}
