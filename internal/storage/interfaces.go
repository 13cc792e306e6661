package storage

import (
	"context"

	"solana-hedge/internal/domain"
)

// BatchFunc is the unit of work executed inside a single ledger transaction.
type BatchFunc func(ctx context.Context, tx BatchTx) error

// OrderLedger is the durable store of hedge orders and hedge transactions.
type OrderLedger interface {
	// RunBatch executes fn inside one transaction. The transaction commits only
	// if fn returns nil; any error rolls back every write made through tx.
	RunBatch(ctx context.Context, fn BatchFunc) error

	// InsertOrder adds a new order. Returns ErrDuplicateKey if order_id exists.
	InsertOrder(ctx context.Context, o *domain.Order) error

	// GetOrder retrieves an order by ID. Returns ErrNotFound if not exists.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// CountOrdersByStatus returns the number of orders in a status.
	CountOrdersByStatus(ctx context.Context, status domain.OrderStatus) (int, error)

	// CountHedgeTransactions returns the total number of hedge transactions.
	CountHedgeTransactions(ctx context.Context) (int, error)

	// ListHedgeTransactions retrieves hedge transactions for an order, ordered by ID ASC.
	ListHedgeTransactions(ctx context.Context, orderID string) ([]*domain.HedgeTransaction, error)
}

// BatchTx is the view of the ledger available inside RunBatch.
type BatchTx interface {
	// PendingOrders retrieves all orders with status Pending, ordered by created_at, order_id.
	PendingOrders(ctx context.Context) ([]*domain.Order, error)

	// InsertHedgeTransaction appends a hedge transaction row.
	InsertHedgeTransaction(ctx context.Context, h *domain.HedgeTransaction) error

	// UpdateOrderStatus moves an order from status from to status to.
	// Returns ErrStatusConflict if the order is not in from or to is not a forward move.
	UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error
}

// BroadcastJournal durably records broadcast signatures independently of any batch.
type BroadcastJournal interface {
	// RecordBroadcast inserts or replaces the journal entry for an order.
	RecordBroadcast(ctx context.Context, r *domain.BroadcastRecord) error

	// GetBroadcast retrieves the journal entry for an order. Returns ErrNotFound if not exists.
	GetBroadcast(ctx context.Context, orderID string) (*domain.BroadcastRecord, error)
}

// SettlementEventStore provides access to settlement_events storage.
type SettlementEventStore interface {
	// Insert appends a settlement event.
	Insert(ctx context.Context, e *domain.SettlementEvent) error

	// GetBySignature retrieves all events for a signature, ordered by observed_at ASC.
	GetBySignature(ctx context.Context, signature string) ([]*domain.SettlementEvent, error)
}
