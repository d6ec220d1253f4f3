package persona

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_SeedDefaultPersona(t *testing.T) {
	data, err := fs.ReadFile(Migrations(), "00001_init.sql")
	require.NoError(t, err)
	sql := string(data)
	assert.Contains(t, sql, "-- +goose Up")
	assert.Contains(t, sql, "-- +goose Down")
	assert.Contains(t, sql, DefaultPersonaID)
	assert.Contains(t, sql, "PRIMARY KEY (user_id, persona_id)")
}

func TestNewPostgresStore_RequiresURL(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), "")
	assert.Error(t, err)
}

func TestCachedStore_FallsThroughWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	inner := NewMemoryStore()
	store := NewCachedStore(inner, client, time.Minute, quietLogger())
	ctx := context.Background()

	_, err := store.ActivePersona(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SetActivePersona(ctx, "user-1", DefaultAssignment()))
	a, err := store.ActivePersona(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, DefaultAssignment(), a)

	p, err := store.DefaultPersona(ctx, DefaultPersonaID)
	require.NoError(t, err)
	assert.Equal(t, DefaultPersonaID, p.ID)

	require.NoError(t, store.UpsertSummary(ctx, Summary{Identity: "user-1", PersonaID: DefaultPersonaID, Source: SourceDefault, Text: "hi"}))
	text, err := store.Summary(ctx, "user-1", DefaultPersonaID)
	require.NoError(t, err)
	assert.Equal(t, "hi", text)
}

// postgrestServer emulates the PostgREST endpoints the Supabase store uses.
type postgrestServer struct {
	mu      sync.Mutex
	tables  map[string][]map[string]any
	upserts []string
}

func (p *postgrestServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		var out []map[string]any
		for _, row := range p.tables[table] {
			if matches(row, r.URL.Query()) {
				out = append(out, row)
			}
		}
		if out == nil {
			out = []map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(out)
	case http.MethodPost:
		var row map[string]any
		_ = json.NewDecoder(r.Body).Decode(&row)
		p.upserts = append(p.upserts, table+"?"+r.URL.Query().Get("on_conflict"))
		p.tables[table] = append(p.tables[table], row)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("[]"))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func matches(row map[string]any, q map[string][]string) bool {
	for k, vs := range q {
		if k == "select" || len(vs) == 0 {
			continue
		}
		want := strings.TrimPrefix(vs[0], "eq.")
		if got, _ := row[k].(string); got != want {
			return false
		}
	}
	return true
}

func TestSupabaseStore_ReadsAndUpserts(t *testing.T) {
	srv := &postgrestServer{tables: map[string][]map[string]any{
		tableActivePersona: {{"user_id": "user-1", "active_persona_id": "p-1", "persona_source": "user"}},
		tablePersonas:      {{"id": "p-1", "user_id": "user-1", "custom_prompt": "Be Ada.", "knowledge_base": nil, "language": "en", "accent": "en-US"}},
	}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	store, err := NewSupabaseStore(ts.URL, "anon-key")
	require.NoError(t, err)
	ctx := context.Background()

	a, err := store.ActivePersona(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, Assignment{PersonaID: "p-1", Source: SourceCustom}, a)

	_, err = store.ActivePersona(ctx, "user-2")
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := store.UserPersona(ctx, "user-1", "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Be Ada.", p.Prompt)
	assert.Empty(t, p.KnowledgeBase)

	_, err = store.Summary(ctx, "user-1", "p-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.UpsertSummary(ctx, Summary{Identity: "user-1", PersonaID: "p-1", Source: SourceCustom, Text: "talked"}))
	assert.Equal(t, []string{tableSessionSummary + "?user_id,persona_id"}, srv.upserts)

	text, err := store.Summary(ctx, "user-1", "p-1")
	require.NoError(t, err)
	assert.Equal(t, "talked", text)
}

func TestSupabaseStore_StalledServerHonorsDeadline(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(ts.Close)
	t.Cleanup(func() { close(release) })

	store, err := NewSupabaseStore(ts.URL, "anon-key")
	require.NoError(t, err)

	writer := NewSummaryWriter(store, 100*time.Millisecond)
	start := time.Now()
	err = writer.Upsert(context.Background(), Summary{Identity: "user-1", PersonaID: "p-1", Source: SourceCustom, Text: "talked"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = store.ActivePersona(ctx, "user-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewSupabaseStore_Validates(t *testing.T) {
	_, err := NewSupabaseStore("", "k")
	assert.Error(t, err)
	_, err = NewSupabaseStore("http://localhost", "")
	assert.Error(t, err)
}
