package persona

import (
	"context"
	"sync"
)

type summaryKey struct {
	identity  string
	personaID string
}

type userPersonaKey struct {
	identity string
	id       string
}

// MemoryStore is an in-process Store. It is used when no database is
// configured and by tests.
type MemoryStore struct {
	mu        sync.RWMutex
	active    map[string]Assignment
	defaults  map[string]Persona
	custom    map[userPersonaKey]Persona
	summaries map[summaryKey]Summary
}

// NewMemoryStore returns a MemoryStore seeded with the default persona.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		active: make(map[string]Assignment),
		defaults: map[string]Persona{
			DefaultPersonaID: {ID: DefaultPersonaID, Name: "Default", Language: DefaultLanguage, Accent: DefaultAccent},
		},
		custom:    make(map[userPersonaKey]Persona),
		summaries: make(map[summaryKey]Summary),
	}
}

// PutDefaultPersona adds or replaces a default persona.
func (m *MemoryStore) PutDefaultPersona(p Persona) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults[p.ID] = p
}

// PutUserPersona adds or replaces a persona owned by identity.
func (m *MemoryStore) PutUserPersona(identity string, p Persona) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.custom[userPersonaKey{identity, p.ID}] = p
}

func (m *MemoryStore) ActivePersona(ctx context.Context, identity string) (Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.active[identity]
	if !ok {
		return Assignment{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryStore) SetActivePersona(ctx context.Context, identity string, a Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[identity] = a
	return nil
}

func (m *MemoryStore) DefaultPersona(ctx context.Context, id string) (Persona, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.defaults[id]
	if !ok {
		return Persona{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) UserPersona(ctx context.Context, identity, id string) (Persona, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.custom[userPersonaKey{identity, id}]
	if !ok {
		return Persona{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) Summary(ctx context.Context, identity, personaID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.summaries[summaryKey{identity, personaID}]
	if !ok {
		return "", ErrNotFound
	}
	return s.Text, nil
}

func (m *MemoryStore) UpsertSummary(ctx context.Context, s Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[summaryKey{s.Identity, s.PersonaID}] = s
	return nil
}

// SummaryCount returns the number of stored summaries.
func (m *MemoryStore) SummaryCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.summaries)
}

var _ Store = (*MemoryStore)(nil)
