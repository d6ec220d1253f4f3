// Package persona resolves the runtime configuration of an identified voice
// session and persists the summaries written when sessions end.
package persona

import (
	"context"
	"errors"
	"strings"
)

const (
	// DefaultPersonaID is assigned to identities that never chose a persona.
	DefaultPersonaID = "d3134d26-75cb-43ee-b7e9-a13f36da9154"

	DefaultLanguage = "en"
	DefaultAccent   = "en-IN"
)

// ErrNotFound is returned by a Store when the requested row does not exist.
var ErrNotFound = errors.New("persona: not found")

// Source says which table a persona lives in.
type Source string

const (
	SourceDefault Source = "default"
	SourceCustom  Source = "custom"

	// sourceLegacyUser is how older deployments spelled SourceCustom.
	sourceLegacyUser = "user"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceDefault || s == SourceCustom
}

// ParseSource accepts the stored spelling of a source.
func ParseSource(raw string) (Source, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(SourceDefault):
		return SourceDefault, true
	case string(SourceCustom), sourceLegacyUser:
		return SourceCustom, true
	default:
		return "", false
	}
}

// Assignment is an identity's active persona.
type Assignment struct {
	PersonaID string
	Source    Source
}

// DefaultAssignment is the assignment given on first use.
func DefaultAssignment() Assignment {
	return Assignment{PersonaID: DefaultPersonaID, Source: SourceDefault}
}

// Persona is one persona row.
type Persona struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Prompt        string `json:"custom_prompt,omitempty"`
	KnowledgeBase string `json:"knowledge_base,omitempty"`
	Language      string `json:"language,omitempty"`
	Accent        string `json:"accent,omitempty"`
}

// Summary is the digest of one finished session.
type Summary struct {
	Identity  string
	PersonaID string
	Source    Source
	Text      string
}

// Store is the backing store for personas and summaries. Implementations
// must be safe for concurrent use.
type Store interface {
	ActivePersona(ctx context.Context, identity string) (Assignment, error)
	SetActivePersona(ctx context.Context, identity string, a Assignment) error
	DefaultPersona(ctx context.Context, id string) (Persona, error)
	UserPersona(ctx context.Context, identity, id string) (Persona, error)
	Summary(ctx context.Context, identity, personaID string) (string, error)
	UpsertSummary(ctx context.Context, s Summary) error
}

// RuntimeConfig is everything an identified session needs, resolved once at
// handshake.
type RuntimeConfig struct {
	Identity      string
	PersonaID     string
	Source        Source
	PersonaPrompt string
	SystemPrompt  string
	KnowledgeBase string
	Language      string
	Accent        string
	Voice         string
	PriorSummary  string
}

// HasKnowledgeBase reports whether retrieval should be bound.
func (c RuntimeConfig) HasKnowledgeBase() bool {
	return strings.TrimSpace(c.KnowledgeBase) != ""
}
