package memory

import (
	"context"
	"sort"
	"sync"

	"solana-hedge/internal/domain"
	"solana-hedge/internal/idhash"
	"solana-hedge/internal/storage"
)

// SettlementEventStore is an in-memory implementation of storage.SettlementEventStore.
type SettlementEventStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.SettlementEvent // keyed by signature
}

// NewSettlementEventStore creates a new in-memory settlement event store.
func NewSettlementEventStore() *SettlementEventStore {
	return &SettlementEventStore{
		data: make(map[string][]*domain.SettlementEvent),
	}
}

// Compile-time interface check.
var _ storage.SettlementEventStore = (*SettlementEventStore)(nil)

// Insert appends a settlement event.
func (s *SettlementEventStore) Insert(_ context.Context, e *domain.SettlementEvent) error {
	if e == nil || e.Signature == "" {
		return storage.ErrInvalidInput
	}

	c := *e
	if c.EventID == "" {
		c.EventID = idhash.ComputeEventID(c.Signature, string(c.Source), string(c.Outcome))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Same observation again: last write wins
	events := s.data[c.Signature]
	for i, existing := range events {
		if existing.EventID == c.EventID {
			events[i] = &c
			return nil
		}
	}
	s.data[c.Signature] = append(events, &c)
	return nil
}

// GetBySignature retrieves all events for a signature, ordered by observed_at ASC.
func (s *SettlementEventStore) GetBySignature(_ context.Context, signature string) ([]*domain.SettlementEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.data[signature]
	result := make([]*domain.SettlementEvent, 0, len(events))
	for _, e := range events {
		c := *e
		result = append(result, &c)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ObservedAt < result[j].ObservedAt
	})
	return result, nil
}
