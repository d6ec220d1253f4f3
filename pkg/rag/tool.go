package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/manasdhir/Voice-Bot/pkg/core/llm"
)

// ToolName is the name the model uses to call retrieval.
const ToolName = "search_docs"

// SearchTool exposes a Retriever to the model, bound to one scope.
type SearchTool struct {
	retriever *Retriever
	scope     Scope
}

// NewSearchTool binds r to scope.
func NewSearchTool(r *Retriever, scope Scope) *SearchTool {
	return &SearchTool{retriever: r, scope: scope}
}

func (t *SearchTool) Name() string { return ToolName }

func (t *SearchTool) Description() string {
	return "Search the uploaded documents (RAG) for relevant context."
}

func (t *SearchTool) Schema() llm.Schema {
	return llm.Schema{
		Properties: map[string]llm.Property{
			"query": {Type: "string", Description: "What to look up in the user's documents."},
		},
		Required: []string{"query"},
	}
}

func (t *SearchTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Query string `json:"query"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("decode arguments: %w", err)
		}
	}
	passages, err := t.retriever.Search(ctx, in.Query, t.scope)
	if err != nil {
		return "", err
	}
	return Format(passages), nil
}

var _ llm.Tool = (*SearchTool)(nil)
