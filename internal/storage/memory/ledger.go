package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-hedge/internal/domain"
	"solana-hedge/internal/storage"
)

// Ledger is an in-memory implementation of storage.OrderLedger and storage.BroadcastJournal.
// Batches are serialized and staged on a copy of the data, which replaces the
// committed state only when the batch function succeeds.
type Ledger struct {
	batchMu sync.Mutex // serializes RunBatch

	mu     sync.RWMutex
	orders map[string]*domain.Order // keyed by order_id
	hedges []*domain.HedgeTransaction
	nextID int64

	journalMu  sync.RWMutex
	broadcasts map[string]*domain.BroadcastRecord // keyed by order_id
}

// NewLedger creates a new in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		orders:     make(map[string]*domain.Order),
		broadcasts: make(map[string]*domain.BroadcastRecord),
	}
}

// Compile-time interface checks.
var (
	_ storage.OrderLedger      = (*Ledger)(nil)
	_ storage.BroadcastJournal = (*Ledger)(nil)
)

// RunBatch executes fn against a staged copy of the ledger and commits on success.
func (l *Ledger) RunBatch(ctx context.Context, fn storage.BatchFunc) error {
	l.batchMu.Lock()
	defer l.batchMu.Unlock()

	l.mu.RLock()
	tx := &batchTx{
		orders: make(map[string]*domain.Order, len(l.orders)),
		dirty:  make(map[string]struct{}),
		nextID: l.nextID,
	}
	for id, o := range l.orders {
		c := *o
		tx.orders[id] = &c
	}
	l.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	l.mu.Lock()
	for id := range tx.dirty {
		l.orders[id] = tx.orders[id]
	}
	l.hedges = append(l.hedges, tx.hedges...)
	l.nextID = tx.nextID
	l.mu.Unlock()
	return nil
}

// InsertOrder adds a new order. Returns ErrDuplicateKey if order_id exists.
func (l *Ledger) InsertOrder(_ context.Context, o *domain.Order) error {
	if o == nil || o.OrderID == "" || !o.Direction.Valid() {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.orders[o.OrderID]; exists {
		return storage.ErrDuplicateKey
	}

	c := *o
	if c.Status == 0 {
		c.Status = domain.OrderStatusPending
	}
	now := time.Now().UnixMilli()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	l.orders[o.OrderID] = &c
	return nil
}

// GetOrder retrieves an order by ID. Returns ErrNotFound if not exists.
func (l *Ledger) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	o, ok := l.orders[orderID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *o
	return &c, nil
}

// CountOrdersByStatus returns the number of orders in a status.
func (l *Ledger) CountOrdersByStatus(_ context.Context, status domain.OrderStatus) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, o := range l.orders {
		if o.Status == status {
			n++
		}
	}
	return n, nil
}

// CountHedgeTransactions returns the total number of hedge transactions.
func (l *Ledger) CountHedgeTransactions(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.hedges), nil
}

// ListHedgeTransactions retrieves hedge transactions for an order, ordered by ID ASC.
func (l *Ledger) ListHedgeTransactions(_ context.Context, orderID string) ([]*domain.HedgeTransaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*domain.HedgeTransaction
	for _, h := range l.hedges {
		if h.OrderID == orderID {
			c := *h
			result = append(result, &c)
		}
	}
	return result, nil
}

// RecordBroadcast inserts or replaces the journal entry for an order.
func (l *Ledger) RecordBroadcast(_ context.Context, r *domain.BroadcastRecord) error {
	if r == nil || r.OrderID == "" || r.Signature == "" {
		return storage.ErrInvalidInput
	}

	l.journalMu.Lock()
	defer l.journalMu.Unlock()

	c := *r
	if c.RecordedAt == 0 {
		c.RecordedAt = time.Now().UnixMilli()
	}
	l.broadcasts[r.OrderID] = &c
	return nil
}

// GetBroadcast retrieves the journal entry for an order. Returns ErrNotFound if not exists.
func (l *Ledger) GetBroadcast(_ context.Context, orderID string) (*domain.BroadcastRecord, error) {
	l.journalMu.RLock()
	defer l.journalMu.RUnlock()

	r, ok := l.broadcasts[orderID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *r
	return &c, nil
}

// batchTx stages writes for one RunBatch call.
type batchTx struct {
	orders map[string]*domain.Order
	dirty  map[string]struct{} // orders updated in this batch
	hedges []*domain.HedgeTransaction
	nextID int64
}

func (tx *batchTx) PendingOrders(_ context.Context) ([]*domain.Order, error) {
	var result []*domain.Order
	for _, o := range tx.orders {
		if o.Status == domain.OrderStatusPending {
			c := *o
			result = append(result, &c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].OrderID < result[j].OrderID
	})
	return result, nil
}

func (tx *batchTx) InsertHedgeTransaction(_ context.Context, h *domain.HedgeTransaction) error {
	if h == nil || h.OrderID == "" {
		return storage.ErrInvalidInput
	}
	if _, ok := tx.orders[h.OrderID]; !ok {
		return storage.ErrInvalidInput
	}

	tx.nextID++
	c := *h
	c.ID = tx.nextID
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UnixMilli()
	}
	tx.hedges = append(tx.hedges, &c)
	h.ID = c.ID
	return nil
}

func (tx *batchTx) UpdateOrderStatus(_ context.Context, orderID string, from, to domain.OrderStatus) error {
	o, ok := tx.orders[orderID]
	if !ok {
		return storage.ErrNotFound
	}
	if o.Status != from || !from.CanTransitionTo(to) {
		return storage.ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = time.Now().UnixMilli()
	tx.dirty[orderID] = struct{}{}
	return nil
}
