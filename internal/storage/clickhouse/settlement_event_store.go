package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-hedge/internal/domain"
	"solana-hedge/internal/idhash"
	"solana-hedge/internal/storage"
)

// SettlementEventStore implements storage.SettlementEventStore using ClickHouse.
type SettlementEventStore struct {
	conn *Conn
}

// NewSettlementEventStore creates a new SettlementEventStore.
func NewSettlementEventStore(conn *Conn) *SettlementEventStore {
	return &SettlementEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SettlementEventStore = (*SettlementEventStore)(nil)

// Insert appends a settlement event.
func (s *SettlementEventStore) Insert(ctx context.Context, e *domain.SettlementEvent) error {
	if e == nil || e.Signature == "" {
		return storage.ErrInvalidInput
	}

	observedAt := time.Now().UTC()
	if e.ObservedAt != 0 {
		observedAt = time.UnixMilli(e.ObservedAt).UTC()
	}

	eventID := e.EventID
	if eventID == "" {
		eventID = idhash.ComputeEventID(e.Signature, string(e.Source), string(e.Outcome))
	}

	query := `
		INSERT INTO settlement_events (
			event_id, signature, order_id, source, outcome, reason, observed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		eventID, e.Signature, e.OrderID, string(e.Source), string(e.Outcome), e.Reason, observedAt,
	)
	if err != nil {
		return fmt.Errorf("insert settlement event: %w", err)
	}
	return nil
}

// GetBySignature retrieves all events for a signature, ordered by observed_at ASC.
// Duplicates not yet merged are collapsed by FINAL.
func (s *SettlementEventStore) GetBySignature(ctx context.Context, signature string) ([]*domain.SettlementEvent, error) {
	query := `
		SELECT event_id, signature, order_id, source, outcome, reason, observed_at
		FROM settlement_events FINAL
		WHERE signature = ?
		ORDER BY observed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, signature)
	if err != nil {
		return nil, fmt.Errorf("query settlement events: %w", err)
	}
	defer rows.Close()

	var result []*domain.SettlementEvent
	for rows.Next() {
		var (
			e          domain.SettlementEvent
			source     string
			outcome    string
			observedAt time.Time
		)
		if err := rows.Scan(&e.EventID, &e.Signature, &e.OrderID, &source, &outcome, &e.Reason, &observedAt); err != nil {
			return nil, fmt.Errorf("scan settlement event: %w", err)
		}
		e.Source = domain.SettlementSource(source)
		e.Outcome = domain.Outcome(outcome)
		e.ObservedAt = observedAt.UnixMilli()
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlement events: %w", err)
	}
	return result, nil
}
