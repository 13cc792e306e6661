package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-hedge/internal/domain"
	"solana-hedge/internal/storage"
)

// Ledger implements storage.OrderLedger and storage.BroadcastJournal using PostgreSQL.
type Ledger struct {
	pool *Pool
}

// NewLedger creates a new Ledger.
func NewLedger(pool *Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Compile-time interface checks.
var (
	_ storage.OrderLedger      = (*Ledger)(nil)
	_ storage.BroadcastJournal = (*Ledger)(nil)
)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RunBatch executes fn in a single transaction. Commits iff fn returns nil.
func (l *Ledger) RunBatch(ctx context.Context, fn storage.BatchFunc) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &batchTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// InsertOrder adds a new order. Returns ErrDuplicateKey if order_id exists.
func (l *Ledger) InsertOrder(ctx context.Context, o *domain.Order) error {
	if o == nil || o.OrderID == "" || !o.Direction.Valid() {
		return storage.ErrInvalidInput
	}

	status := o.Status
	if status == 0 {
		status = domain.OrderStatusPending
	}
	createdAt := time.Now()
	if o.CreatedAt != 0 {
		createdAt = time.UnixMilli(o.CreatedAt)
	}

	query := `
		INSERT INTO orders (order_id, direction, token_address, hedge_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $6)
	`

	_, err := l.pool.Exec(ctx, query,
		o.OrderID, string(o.Direction), o.TokenAddress, o.HedgeAmount.String(), int16(status), createdAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetOrder retrieves an order by ID. Returns ErrNotFound if not exists.
func (l *Ledger) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	query := `
		SELECT order_id, direction, token_address, hedge_amount::text, status, created_at, updated_at
		FROM orders
		WHERE order_id = $1
	`

	o, err := scanOrder(l.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// CountOrdersByStatus returns the number of orders in a status.
func (l *Ledger) CountOrdersByStatus(ctx context.Context, status domain.OrderStatus) (int, error) {
	var n int
	err := l.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE status = $1`, int16(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

// CountHedgeTransactions returns the total number of hedge transactions.
func (l *Ledger) CountHedgeTransactions(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, `SELECT count(*) FROM hedge_transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count hedge transactions: %w", err)
	}
	return n, nil
}

// ListHedgeTransactions retrieves hedge transactions for an order, ordered by ID ASC.
func (l *Ledger) ListHedgeTransactions(ctx context.Context, orderID string) ([]*domain.HedgeTransaction, error) {
	query := `
		SELECT id, order_id, direction, input_mint, output_mint, amount::text, swap_mode, signature, created_at
		FROM hedge_transactions
		WHERE order_id = $1
		ORDER BY id ASC
	`

	rows, err := l.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query hedge transactions: %w", err)
	}
	defer rows.Close()

	var result []*domain.HedgeTransaction
	for rows.Next() {
		var (
			h         domain.HedgeTransaction
			direction string
			amount    string
			swapMode  string
			createdAt time.Time
		)
		if err := rows.Scan(&h.ID, &h.OrderID, &direction, &h.InputMint, &h.OutputMint, &amount, &swapMode, &h.Signature, &createdAt); err != nil {
			return nil, fmt.Errorf("scan hedge transaction: %w", err)
		}
		units, err := strconv.ParseUint(amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		h.Direction = domain.Direction(direction)
		h.Amount = units
		h.SwapMode = domain.SwapMode(swapMode)
		h.CreatedAt = createdAt.UnixMilli()
		result = append(result, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hedge transactions: %w", err)
	}
	return result, nil
}

// RecordBroadcast inserts or replaces the journal entry for an order.
// Runs in its own implicit transaction so it survives a batch rollback.
func (l *Ledger) RecordBroadcast(ctx context.Context, r *domain.BroadcastRecord) error {
	if r == nil || r.OrderID == "" || r.Signature == "" {
		return storage.ErrInvalidInput
	}

	recordedAt := time.Now()
	if r.RecordedAt != 0 {
		recordedAt = time.UnixMilli(r.RecordedAt)
	}

	query := `
		INSERT INTO hedge_broadcasts (
			order_id, signature, state, direction,
			input_mint, output_mint, amount, swap_mode, slippage_bps,
			last_valid_block_height, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8, $9, $10, $11)
		ON CONFLICT (order_id) DO UPDATE SET
			signature    = EXCLUDED.signature,
			state        = EXCLUDED.state,
			direction    = EXCLUDED.direction,
			input_mint   = EXCLUDED.input_mint,
			output_mint  = EXCLUDED.output_mint,
			amount       = EXCLUDED.amount,
			swap_mode    = EXCLUDED.swap_mode,
			slippage_bps = EXCLUDED.slippage_bps,
			last_valid_block_height = EXCLUDED.last_valid_block_height,
			recorded_at  = EXCLUDED.recorded_at
	`

	_, err := l.pool.Exec(ctx, query,
		r.OrderID, r.Signature, string(r.State), string(r.Direction),
		r.Params.InputMint, r.Params.OutputMint, strconv.FormatUint(r.Params.Amount, 10),
		string(r.Params.SwapMode), r.Params.SlippageBps,
		int64(r.LastValidBlockHeight), recordedAt,
	)
	if err != nil {
		return fmt.Errorf("record broadcast: %w", err)
	}
	return nil
}

// GetBroadcast retrieves the journal entry for an order. Returns ErrNotFound if not exists.
func (l *Ledger) GetBroadcast(ctx context.Context, orderID string) (*domain.BroadcastRecord, error) {
	query := `
		SELECT order_id, signature, state, direction,
			input_mint, output_mint, amount::text, swap_mode, slippage_bps,
			last_valid_block_height, recorded_at
		FROM hedge_broadcasts
		WHERE order_id = $1
	`

	var (
		r          domain.BroadcastRecord
		state      string
		direction  string
		amount     string
		swapMode   string
		lastValid  int64
		recordedAt time.Time
	)
	err := l.pool.QueryRow(ctx, query, orderID).Scan(
		&r.OrderID, &r.Signature, &state, &direction,
		&r.Params.InputMint, &r.Params.OutputMint, &amount, &swapMode, &r.Params.SlippageBps,
		&lastValid, &recordedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get broadcast: %w", err)
	}

	units, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	r.State = domain.BroadcastState(state)
	r.Direction = domain.Direction(direction)
	r.Params.Amount = units
	r.Params.SwapMode = domain.SwapMode(swapMode)
	r.LastValidBlockHeight = uint64(lastValid)
	r.RecordedAt = recordedAt.UnixMilli()
	return &r, nil
}

// batchTx implements storage.BatchTx on an open pgx transaction.
type batchTx struct {
	tx pgx.Tx
}

// PendingOrders locks and returns every pending order. The lock is NO KEY UPDATE so
// journal rows referencing these orders can still be written from another connection.
func (b *batchTx) PendingOrders(ctx context.Context) ([]*domain.Order, error) {
	query := `
		SELECT order_id, direction, token_address, hedge_amount::text, status, created_at, updated_at
		FROM orders
		WHERE status = $1
		ORDER BY created_at ASC, order_id ASC
		FOR NO KEY UPDATE
	`
	return queryOrders(ctx, b.tx, query, int16(domain.OrderStatusPending))
}

func (b *batchTx) InsertHedgeTransaction(ctx context.Context, h *domain.HedgeTransaction) error {
	if h == nil || h.OrderID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO hedge_transactions (
			order_id, direction, input_mint, output_mint, amount, swap_mode, signature
		) VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7)
		RETURNING id, created_at
	`

	var createdAt time.Time
	err := b.tx.QueryRow(ctx, query,
		h.OrderID, string(h.Direction), h.InputMint, h.OutputMint,
		strconv.FormatUint(h.Amount, 10), string(h.SwapMode), h.Signature,
	).Scan(&h.ID, &createdAt)
	if err != nil {
		return fmt.Errorf("insert hedge transaction: %w", err)
	}
	h.CreatedAt = createdAt.UnixMilli()
	return nil
}

func (b *batchTx) UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	if !from.CanTransitionTo(to) {
		return storage.ErrStatusConflict
	}

	tag, err := b.tx.Exec(ctx,
		`UPDATE orders SET status = $3, updated_at = now() WHERE order_id = $1 AND status = $2`,
		orderID, int16(from), int16(to),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := b.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_id = $1)`, orderID).Scan(&exists); err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrStatusConflict
}

func queryOrders(ctx context.Context, q querier, query string, args ...any) ([]*domain.Order, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var result []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return result, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o         domain.Order
		direction string
		amount    string
		status    int16
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&o.OrderID, &direction, &o.TokenAddress, &amount, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	hedgeAmount, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse hedge amount %q: %w", amount, err)
	}
	o.Direction = domain.Direction(direction)
	o.HedgeAmount = hedgeAmount
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = createdAt.UnixMilli()
	o.UpdatedAt = updatedAt.UnixMilli()
	return &o, nil
}
