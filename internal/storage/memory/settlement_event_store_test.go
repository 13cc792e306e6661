package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-hedge/internal/domain"
	"solana-hedge/internal/idhash"
	"solana-hedge/internal/storage"
)

func TestSettlementEventStore_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewSettlementEventStore()

	require.NoError(t, store.Insert(ctx, &domain.SettlementEvent{
		Signature:  "sigA",
		OrderID:    "o1",
		Source:     domain.SourceNotification,
		Outcome:    domain.OutcomeConfirmed,
		ObservedAt: 2000,
	}))
	require.NoError(t, store.Insert(ctx, &domain.SettlementEvent{
		Signature:  "sigA",
		OrderID:    "o1",
		Source:     domain.SourceBroadcast,
		Outcome:    domain.OutcomeConfirmed,
		ObservedAt: 1000,
	}))

	events, err := store.GetBySignature(ctx, "sigA")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.SourceBroadcast, events[0].Source)
	assert.Equal(t, domain.SourceNotification, events[1].Source)
	assert.Equal(t, idhash.ComputeEventID("sigA", "broadcast", "confirmed"), events[0].EventID)

	events, err = store.GetBySignature(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, &domain.SettlementEvent{}), storage.ErrInvalidInput)
}

func TestSettlementEventStore_DuplicateReplaced(t *testing.T) {
	ctx := context.Background()
	store := NewSettlementEventStore()

	for _, at := range []int64{1000, 3000} {
		require.NoError(t, store.Insert(ctx, &domain.SettlementEvent{
			Signature:  "sigB",
			Source:     domain.SourceNotification,
			Outcome:    domain.OutcomeDisconnected,
			ObservedAt: at,
		}))
	}

	events, err := store.GetBySignature(ctx, "sigB")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(3000), events[0].ObservedAt)
}
