package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/manasdhir/Voice-Bot/pkg/core"
)

// SummaryWriter persists teardown summaries.
type SummaryWriter struct {
	store   Store
	timeout time.Duration
}

// NewSummaryWriter creates a SummaryWriter whose store writes are bounded by
// timeout.
func NewSummaryWriter(store Store, timeout time.Duration) *SummaryWriter {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &SummaryWriter{store: store, timeout: timeout}
}

// Upsert replaces the summary stored for (identity, persona).
func (w *SummaryWriter) Upsert(ctx context.Context, s Summary) error {
	if err := validateSummary(s); err != nil {
		return core.Wrap(core.ErrSummary, "upsert summary", err)
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.store.UpsertSummary(ctx, s); err != nil {
		return core.Wrap(core.ErrSummary, "upsert summary", err)
	}
	return nil
}

func validateSummary(s Summary) error {
	if strings.TrimSpace(s.Identity) == "" {
		return errors.New("identity is required")
	}
	if strings.TrimSpace(s.PersonaID) == "" {
		return errors.New("persona id is required")
	}
	if !s.Source.Valid() {
		return fmt.Errorf("invalid persona source %q: must be %q or %q", s.Source, SourceDefault, SourceCustom)
	}
	return nil
}
