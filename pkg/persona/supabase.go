package persona

import (
	"context"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"
)

const (
	tableDefaultPersonas = "default_personas"
	tablePersonas        = "personas"
	tableActivePersona   = "user_active_persona"
	tableSessionSummary  = "user_persona_session_summary"

	personaColumns = "id,name,custom_prompt,knowledge_base,language,accent"
)

type activePersonaRow struct {
	UserID          string `json:"user_id"`
	ActivePersonaID string `json:"active_persona_id"`
	PersonaSource   string `json:"persona_source"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

type summaryRow struct {
	UserID         string `json:"user_id"`
	PersonaID      string `json:"persona_id"`
	PersonaSource  string `json:"persona_source"`
	SessionSummary string `json:"session_summary"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

// personaRow tolerates NULL columns.
type personaRow struct {
	ID            string  `json:"id"`
	Name          *string `json:"name"`
	CustomPrompt  *string `json:"custom_prompt"`
	KnowledgeBase *string `json:"knowledge_base"`
	Language      *string `json:"language"`
	Accent        *string `json:"accent"`
}

func (r personaRow) persona() Persona {
	return Persona{
		ID:            r.ID,
		Name:          deref(r.Name),
		Prompt:        deref(r.CustomPrompt),
		KnowledgeBase: deref(r.KnowledgeBase),
		Language:      deref(r.Language),
		Accent:        deref(r.Accent),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SupabaseStore is a Store over the Supabase REST API.
type SupabaseStore struct {
	client *supabase.Client
	now    func() time.Time
}

// NewSupabaseStore creates a SupabaseStore.
func NewSupabaseStore(url, apiKey string) (*SupabaseStore, error) {
	if url == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}
	client, err := supabase.NewClient(url, apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseStore{client: client, now: time.Now}, nil
}

func (s *SupabaseStore) ActivePersona(ctx context.Context, identity string) (Assignment, error) {
	var rows []activePersonaRow
	err := await(ctx, func() error {
		_, err := s.client.From(tableActivePersona).
			Select("active_persona_id,persona_source", "", false).
			Eq("user_id", identity).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return Assignment{}, fmt.Errorf("get active persona: %w", err)
	}
	if len(rows) == 0 {
		return Assignment{}, ErrNotFound
	}
	src, ok := ParseSource(rows[0].PersonaSource)
	if !ok {
		return Assignment{}, fmt.Errorf("unknown persona source %q", rows[0].PersonaSource)
	}
	return Assignment{PersonaID: rows[0].ActivePersonaID, Source: src}, nil
}

func (s *SupabaseStore) SetActivePersona(ctx context.Context, identity string, a Assignment) error {
	row := activePersonaRow{
		UserID:          identity,
		ActivePersonaID: a.PersonaID,
		PersonaSource:   string(a.Source),
		UpdatedAt:       s.now().UTC().Format(time.RFC3339),
	}
	err := await(ctx, func() error {
		_, _, err := s.client.From(tableActivePersona).
			Upsert(row, "user_id", "minimal", "").
			Execute()
		return err
	})
	if err != nil {
		return fmt.Errorf("set active persona: %w", err)
	}
	return nil
}

func (s *SupabaseStore) DefaultPersona(ctx context.Context, id string) (Persona, error) {
	var rows []personaRow
	err := await(ctx, func() error {
		_, err := s.client.From(tableDefaultPersonas).
			Select(personaColumns, "", false).
			Eq("id", id).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return Persona{}, fmt.Errorf("get default persona: %w", err)
	}
	if len(rows) == 0 {
		return Persona{}, ErrNotFound
	}
	return rows[0].persona(), nil
}

func (s *SupabaseStore) UserPersona(ctx context.Context, identity, id string) (Persona, error) {
	var rows []personaRow
	err := await(ctx, func() error {
		_, err := s.client.From(tablePersonas).
			Select(personaColumns, "", false).
			Eq("id", id).
			Eq("user_id", identity).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return Persona{}, fmt.Errorf("get persona: %w", err)
	}
	if len(rows) == 0 {
		return Persona{}, ErrNotFound
	}
	return rows[0].persona(), nil
}

func (s *SupabaseStore) Summary(ctx context.Context, identity, personaID string) (string, error) {
	var rows []summaryRow
	err := await(ctx, func() error {
		_, err := s.client.From(tableSessionSummary).
			Select("session_summary", "", false).
			Eq("user_id", identity).
			Eq("persona_id", personaID).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("get session summary: %w", err)
	}
	if len(rows) == 0 {
		return "", ErrNotFound
	}
	return rows[0].SessionSummary, nil
}

func (s *SupabaseStore) UpsertSummary(ctx context.Context, sum Summary) error {
	row := summaryRow{
		UserID:         sum.Identity,
		PersonaID:      sum.PersonaID,
		PersonaSource:  string(sum.Source),
		SessionSummary: sum.Text,
		UpdatedAt:      s.now().UTC().Format(time.RFC3339),
	}
	err := await(ctx, func() error {
		_, _, err := s.client.From(tableSessionSummary).
			Upsert(row, "user_id,persona_id", "minimal", "").
			Execute()
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert session summary: %w", err)
	}
	return nil
}

// await runs a PostgREST call and gives up when ctx ends. The client has no
// context or timeout support, so an abandoned call finishes in the
// background and its result is discarded.
func await(ctx context.Context, call func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- call() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Store = (*SupabaseStore)(nil)
