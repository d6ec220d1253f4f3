package persona

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manasdhir/Voice-Bot/pkg/core"
)

func TestSummaryWriter_LatestWins(t *testing.T) {
	store := NewMemoryStore()
	w := NewSummaryWriter(store, 0)
	ctx := context.Background()

	s := Summary{Identity: "user-1", PersonaID: DefaultPersonaID, Source: SourceDefault, Text: "first"}
	require.NoError(t, w.Upsert(ctx, s))
	s.Text = "second"
	require.NoError(t, w.Upsert(ctx, s))

	got, err := store.Summary(ctx, "user-1", DefaultPersonaID)
	require.NoError(t, err)
	assert.Equal(t, "second", got)
	assert.Equal(t, 1, store.SummaryCount())
}

func TestSummaryWriter_Validates(t *testing.T) {
	store := NewMemoryStore()
	w := NewSummaryWriter(store, 0)

	cases := []Summary{
		{PersonaID: "p", Source: SourceDefault},
		{Identity: "u", Source: SourceDefault},
		{Identity: "u", PersonaID: "p", Source: "user"},
		{Identity: "u", PersonaID: "p"},
	}
	for _, c := range cases {
		err := w.Upsert(context.Background(), c)
		assert.True(t, core.IsType(err, core.ErrSummary), "%+v: %v", c, err)
	}
	assert.Zero(t, store.SummaryCount())
}

func TestSummaryWriter_StoreErrorIsSummaryError(t *testing.T) {
	boom := errors.New("timeout")
	w := NewSummaryWriter(&failingStore{MemoryStore: NewMemoryStore(), failOn: "upsert", err: boom}, 0)
	err := w.Upsert(context.Background(), Summary{Identity: "u", PersonaID: "p", Source: SourceCustom, Text: "t"})
	assert.True(t, core.IsType(err, core.ErrSummary))
	assert.ErrorIs(t, err, boom)
}
