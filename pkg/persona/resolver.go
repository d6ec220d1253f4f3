package persona

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/manasdhir/Voice-Bot/pkg/core"
)

// DefaultStoreTimeout bounds each store call made by the Resolver and the
// SummaryWriter.
const DefaultStoreTimeout = 5 * time.Second

// Resolver resolves the RuntimeConfig of an identity.
type Resolver struct {
	store        Store
	storeTimeout time.Duration
	logger       *slog.Logger
}

// NewResolver creates a Resolver. A non-positive storeTimeout means
// DefaultStoreTimeout.
func NewResolver(store Store, storeTimeout time.Duration, logger *slog.Logger) *Resolver {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, storeTimeout: storeTimeout, logger: logger}
}

// Resolve loads the active persona, its settings and the prior summary for
// identity. An identity with no active persona is assigned the default one
// and the assignment is persisted. Store failures are returned as
// configuration errors.
func (r *Resolver) Resolve(ctx context.Context, identity string) (RuntimeConfig, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return RuntimeConfig{}, core.NewConfigError("resolve", errors.New("identity is required"))
	}

	assignment, err := r.activePersona(ctx, identity)
	if err != nil {
		return RuntimeConfig{}, err
	}

	p, err := r.persona(ctx, identity, assignment)
	if err != nil {
		return RuntimeConfig{}, err
	}

	summary, err := r.summary(ctx, identity, assignment.PersonaID)
	if err != nil {
		return RuntimeConfig{}, err
	}

	language := strings.TrimSpace(p.Language)
	if language == "" {
		language = DefaultLanguage
	}
	accent := strings.TrimSpace(p.Accent)
	if accent == "" {
		accent = DefaultAccent
	}
	kb := strings.TrimSpace(p.KnowledgeBase)

	return RuntimeConfig{
		Identity:      identity,
		PersonaID:     assignment.PersonaID,
		Source:        assignment.Source,
		PersonaPrompt: p.Prompt,
		SystemPrompt:  ComposeSystemPrompt(p.Prompt, language, summary),
		KnowledgeBase: kb,
		Language:      language,
		Accent:        accent,
		Voice:         VoiceFor(accent),
		PriorSummary:  summary,
	}, nil
}

func (r *Resolver) activePersona(ctx context.Context, identity string) (Assignment, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	a, err := r.store.ActivePersona(callCtx, identity)
	switch {
	case errors.Is(err, ErrNotFound):
		a = DefaultAssignment()
		if err := r.store.SetActivePersona(callCtx, identity, a); err != nil {
			return Assignment{}, core.NewConfigError("assign default persona", err)
		}
		r.logger.Info("assigned default persona", "identity", identity, "persona_id", a.PersonaID)
		return a, nil
	case err != nil:
		return Assignment{}, core.NewConfigError("load active persona", err)
	}
	if !a.Source.Valid() {
		return Assignment{}, core.NewConfigError("load active persona", fmt.Errorf("invalid persona source %q", a.Source))
	}
	if strings.TrimSpace(a.PersonaID) == "" {
		return Assignment{}, core.NewConfigError("load active persona", errors.New("empty persona id"))
	}
	return a, nil
}

func (r *Resolver) persona(ctx context.Context, identity string, a Assignment) (Persona, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	var (
		p   Persona
		err error
	)
	switch a.Source {
	case SourceDefault:
		p, err = r.store.DefaultPersona(callCtx, a.PersonaID)
	case SourceCustom:
		p, err = r.store.UserPersona(callCtx, identity, a.PersonaID)
	}
	if errors.Is(err, ErrNotFound) {
		r.logger.Warn("active persona row missing; using defaults",
			"identity", identity, "persona_id", a.PersonaID, "source", a.Source)
		return Persona{ID: a.PersonaID}, nil
	}
	if err != nil {
		return Persona{}, core.NewConfigError("load persona", err)
	}
	return p, nil
}

func (r *Resolver) summary(ctx context.Context, identity, personaID string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	s, err := r.store.Summary(callCtx, identity, personaID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", core.NewConfigError("load session summary", err)
	}
	return s, nil
}
