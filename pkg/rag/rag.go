// Package rag retrieves knowledge-base passages scoped to one owner and
// collection.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/manasdhir/Voice-Bot/pkg/core"
	"github.com/manasdhir/Voice-Bot/pkg/core/embed"
)

const (
	// DefaultK is the number of passages returned per search.
	DefaultK = 4

	// NoMatchText is returned to the model when a search finds nothing.
	NoMatchText = "No relevant information found in uploaded documents."

	unknownSource = "Unknown"
)

var (
	ErrEmptyQuery   = errors.New("rag: query is required")
	ErrInvalidScope = errors.New("rag: scope requires identity and collection")
)

// Scope limits retrieval to one owner's knowledge base.
type Scope struct {
	Identity   string
	Collection string
}

// Valid reports whether both halves of the scope are set.
func (s Scope) Valid() bool {
	return strings.TrimSpace(s.Identity) != "" && strings.TrimSpace(s.Collection) != ""
}

// Passage is one retrieved chunk.
type Passage struct {
	Source  string
	Content string
	Score   float32
}

// VectorStore finds passages nearest to a vector inside a scope.
type VectorStore interface {
	Search(ctx context.Context, vector []float32, scope Scope, limit int) ([]Passage, error)
}

// Retriever embeds a query and searches a VectorStore.
type Retriever struct {
	embedder embed.Embedder
	store    VectorStore
	k        int
}

// NewRetriever creates a Retriever returning up to k passages; k <= 0
// means DefaultK.
func NewRetriever(embedder embed.Embedder, store VectorStore, k int) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if k <= 0 {
		k = DefaultK
	}
	return &Retriever{embedder: embedder, store: store, k: k}, nil
}

// Search returns the top passages for query within scope.
func (r *Retriever) Search(ctx context.Context, query string, scope Scope) ([]Passage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if !scope.Valid() {
		return nil, ErrInvalidScope
	}
	vecs, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, core.Wrap(core.ErrRetrieval, "embed query", err)
	}
	if len(vecs) == 0 {
		return nil, core.Wrap(core.ErrRetrieval, "embed query", fmt.Errorf("no vector returned"))
	}
	passages, err := r.store.Search(ctx, vecs[0], scope, r.k)
	if err != nil {
		return nil, core.Wrap(core.ErrRetrieval, "vector search", err)
	}
	if len(passages) > r.k {
		passages = passages[:r.k]
	}
	return passages, nil
}

// Format renders passages as model context.
func Format(passages []Passage) string {
	if len(passages) == 0 {
		return NoMatchText
	}
	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		src := p.Source
		if src == "" {
			src = unknownSource
		}
		parts = append(parts, "["+src+"]\n"+strings.TrimSpace(p.Content))
	}
	return strings.Join(parts, "\n\n")
}
