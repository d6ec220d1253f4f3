package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store over a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool for databaseURL.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Pool exposes the underlying pool for migrations.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) ActivePersona(ctx context.Context, identity string) (Assignment, error) {
	var (
		a      Assignment
		source string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT active_persona_id::text, persona_source FROM user_active_persona WHERE user_id = $1`,
		identity,
	).Scan(&a.PersonaID, &source)
	if err != nil {
		return Assignment{}, notFound(err)
	}
	src, ok := ParseSource(source)
	if !ok {
		return Assignment{}, fmt.Errorf("unknown persona source %q", source)
	}
	a.Source = src
	return a, nil
}

func (s *PostgresStore) SetActivePersona(ctx context.Context, identity string, a Assignment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_active_persona (user_id, active_persona_id, persona_source, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE
		SET active_persona_id = EXCLUDED.active_persona_id,
		    persona_source = EXCLUDED.persona_source,
		    updated_at = now()`,
		identity, a.PersonaID, string(a.Source),
	)
	if err != nil {
		return fmt.Errorf("set active persona: %w", err)
	}
	return nil
}

func (s *PostgresStore) DefaultPersona(ctx context.Context, id string) (Persona, error) {
	p := Persona{ID: id}
	err := s.pool.QueryRow(ctx, `
		SELECT name, custom_prompt, knowledge_base, language, accent
		FROM default_personas WHERE id = $1`, id,
	).Scan(&p.Name, &p.Prompt, &p.KnowledgeBase, &p.Language, &p.Accent)
	if err != nil {
		return Persona{}, notFound(err)
	}
	return p, nil
}

func (s *PostgresStore) UserPersona(ctx context.Context, identity, id string) (Persona, error) {
	p := Persona{ID: id}
	err := s.pool.QueryRow(ctx, `
		SELECT name, custom_prompt, knowledge_base, language, accent
		FROM personas WHERE id = $1 AND user_id = $2`, id, identity,
	).Scan(&p.Name, &p.Prompt, &p.KnowledgeBase, &p.Language, &p.Accent)
	if err != nil {
		return Persona{}, notFound(err)
	}
	return p, nil
}

func (s *PostgresStore) Summary(ctx context.Context, identity, personaID string) (string, error) {
	var text string
	err := s.pool.QueryRow(ctx, `
		SELECT session_summary FROM user_persona_session_summary
		WHERE user_id = $1 AND persona_id = $2`, identity, personaID,
	).Scan(&text)
	if err != nil {
		return "", notFound(err)
	}
	return text, nil
}

func (s *PostgresStore) UpsertSummary(ctx context.Context, sum Summary) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_persona_session_summary (user_id, persona_id, persona_source, session_summary, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, persona_id) DO UPDATE
		SET persona_source = EXCLUDED.persona_source,
		    session_summary = EXCLUDED.session_summary,
		    updated_at = now()`,
		sum.Identity, sum.PersonaID, string(sum.Source), sum.Text,
	)
	if err != nil {
		return fmt.Errorf("upsert session summary: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

var _ Store = (*PostgresStore)(nil)
