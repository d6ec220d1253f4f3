package rag

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys written by the ingestion pipeline.
const (
	PayloadIdentity   = "user_id"
	PayloadCollection = "knowledge_base"
	PayloadContent    = "content"
	PayloadSource     = "source"
)

const defaultQdrantPort = 6334

// QdrantConfig configures a QdrantStore.
type QdrantConfig struct {
	// URL is the server address, e.g. "https://example.qdrant.io:6334".
	URL        string
	APIKey     string
	Collection string
}

// QdrantStore searches a Qdrant collection over gRPC.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore connects to Qdrant.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}

	raw := cfg.URL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant url: %w", err)
	}
	port := defaultQdrantPort
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &QdrantStore{client: client, collection: cfg.Collection}, nil
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, scope Scope, limit int) ([]Passage, error) {
	if !scope.Valid() {
		return nil, ErrInvalidScope
	}
	lim := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &lim,
		Filter:         scopeFilter(scope),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	out := make([]Passage, 0, len(points))
	for _, p := range points {
		passage := Passage{Score: p.Score}
		if v, ok := p.Payload[PayloadContent]; ok {
			passage.Content = v.GetStringValue()
		}
		if v, ok := p.Payload[PayloadSource]; ok {
			passage.Source = v.GetStringValue()
		}
		if strings.TrimSpace(passage.Content) == "" {
			continue
		}
		out = append(out, passage)
	}
	return out, nil
}

// Ping checks that the collection is reachable.
func (s *QdrantStore) Ping(ctx context.Context) error {
	ok, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if !ok {
		return fmt.Errorf("qdrant collection %q not found", s.collection)
	}
	return nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// scopeFilter requires both the owner and the collection to match.
func scopeFilter(scope Scope) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{
		keywordCondition(PayloadIdentity, scope.Identity),
		keywordCondition(PayloadCollection, scope.Collection),
	}}
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			},
		},
	}
}

var _ VectorStore = (*QdrantStore)(nil)
