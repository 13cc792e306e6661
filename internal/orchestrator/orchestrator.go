// Package orchestrator drives the hedge pipeline.
// It coordinates: ledger → generator → quote → build → sign → broadcast → track
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"solana-hedge/internal/domain"
	"solana-hedge/internal/hedge"
	"solana-hedge/internal/jupiter"
	"solana-hedge/internal/observability"
	"solana-hedge/internal/signer"
	"solana-hedge/internal/solana"
	"solana-hedge/internal/storage"
	"solana-hedge/internal/tracker"
	"solana-hedge/internal/wallet"
)

// Aggregator prices routes and builds unsigned swap transactions.
type Aggregator interface {
	GetQuote(ctx context.Context, params domain.SwapParams) (*jupiter.Quote, error)
	BuildSwap(ctx context.Context, quote *jupiter.Quote, userPublicKey string) (*jupiter.SwapTransaction, error)
}

// TransactionSigner signs serialized transactions as the operator.
type TransactionSigner interface {
	Sign(raw []byte) (*signer.Signed, error)
	Address() string
}

// Submitter broadcasts a signed transaction and waits for its commitment.
type Submitter interface {
	Submit(ctx context.Context, signed []byte, opts solana.SubmitOptions) (string, error)
}

// StatusReader reads transaction state from the node.
type StatusReader interface {
	GetSignatureStatuses(ctx context.Context, signatures []string, searchHistory bool) ([]*solana.SignatureStatus, error)
	GetTransaction(ctx context.Context, signature string, commitment solana.Commitment) (*solana.Transaction, error)
	GetBlockHeight(ctx context.Context, commitment solana.Commitment) (uint64, error)
}

// BlockhashExpiry is how long an unknown journaled signature is treated as
// possibly in flight when its last valid block height was not recorded.
const BlockhashExpiry = 3 * time.Minute

// SignatureTracker reports the first notification for a signature.
type SignatureTracker interface {
	Track(ctx context.Context, signature string) (*tracker.Result, error)
}

// BalanceReporter logs wallet balances around a batch.
type BalanceReporter interface {
	Report(ctx context.Context, owner, prefix string) (*wallet.Snapshot, error)
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	Ledger      storage.OrderLedger
	Journal     storage.BroadcastJournal
	Generator   *hedge.Generator
	Aggregator  Aggregator
	Signer      TransactionSigner
	Broadcaster Submitter

	// Optional
	Status   StatusReader                 // journal resolution and log fetch
	Tracker  SignatureTracker             // notification cross-check
	Events   storage.SettlementEventStore // confirmation observations
	Balances BalanceReporter              // PRE/POST balance report

	Submit         solana.SubmitOptions
	StepTimeout    time.Duration // bound on each network step except broadcast
	TrackerTimeout time.Duration
	Logger         *log.Logger
	Clock          func() time.Time
}

// Orchestrator runs hedge batches. A batch is all-or-nothing on the ledger;
// broadcasts are journaled independently so a retried batch does not resubmit.
type Orchestrator struct {
	ledger      storage.OrderLedger
	journal     storage.BroadcastJournal
	generator   *hedge.Generator
	aggregator  Aggregator
	signer      TransactionSigner
	broadcaster Submitter

	status   StatusReader
	tracker  SignatureTracker
	events   storage.SettlementEventStore
	balances BalanceReporter

	submit         solana.SubmitOptions
	stepTimeout    time.Duration
	trackerTimeout time.Duration
	logger         *log.Logger
	clock          func() time.Time

	checks sync.WaitGroup
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		ledger:         opts.Ledger,
		journal:        opts.Journal,
		generator:      opts.Generator,
		aggregator:     opts.Aggregator,
		signer:         opts.Signer,
		broadcaster:    opts.Broadcaster,
		status:         opts.Status,
		tracker:        opts.Tracker,
		events:         opts.Events,
		balances:       opts.Balances,
		submit:         opts.Submit,
		stepTimeout:    opts.StepTimeout,
		trackerTimeout: opts.TrackerTimeout,
		logger:         opts.Logger,
		clock:          opts.Clock,
	}
	if o.generator == nil {
		o.generator = hedge.NewGenerator(nil, 0)
	}
	if o.submit == (solana.SubmitOptions{}) {
		o.submit = solana.DefaultSubmitOptions()
	}
	if o.stepTimeout <= 0 {
		o.stepTimeout = 2 * time.Minute
	}
	if o.trackerTimeout <= 0 {
		o.trackerTimeout = 2 * time.Minute
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard, "", 0)
	}
	if o.clock == nil {
		o.clock = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// BatchResult contains results from one ProcessBatch call.
type BatchResult struct {
	Orders    int // pending at batch start
	Hedges    []*domain.HedgeTransaction
	Reused    int // signatures taken from the journal
	Committed bool
	Duration  time.Duration
}

// ProcessBatch hedges every Pending order inside one ledger transaction.
// Orders run strictly in sequence. Any step failure rolls the whole batch back
// and is returned as a *StepError.
func (o *Orchestrator) ProcessBatch(ctx context.Context) (*BatchResult, error) {
	start := o.clock()
	result := &BatchResult{}
	owner := o.signer.Address()

	o.reportBalances(ctx, owner, "PRE")

	err := o.ledger.RunBatch(ctx, func(ctx context.Context, tx storage.BatchTx) error {
		result.Orders, result.Reused, result.Hedges = 0, 0, nil

		orders, err := tx.PendingOrders(ctx)
		if err != nil {
			return &StepError{Step: StepLoad, Err: err}
		}
		result.Orders = len(orders)
		o.logger.Printf("Found %d pending orders", len(orders))

		for _, order := range orders {
			h, reused, err := o.hedgeOrder(ctx, order)
			if err != nil {
				return err
			}
			if reused {
				result.Reused++
			}

			if err := tx.InsertHedgeTransaction(ctx, h); err != nil {
				return &StepError{OrderID: order.OrderID, Step: StepRecord, Err: err}
			}
			if err := tx.UpdateOrderStatus(ctx, order.OrderID, domain.OrderStatusPending, domain.OrderStatusProcessing); err != nil {
				return &StepError{OrderID: order.OrderID, Step: StepStatus, Err: err}
			}
			result.Hedges = append(result.Hedges, h)
		}
		return nil
	})
	result.Duration = o.clock().Sub(start)

	if err != nil {
		o.logger.Printf("Batch rolled back after %d/%d orders: %v", len(result.Hedges), result.Orders, err)
		observability.RecordBatch("rolled_back", result.Orders, result.Duration.Seconds())
		result.Hedges = nil
		return result, err
	}

	result.Committed = true
	status := "committed"
	if result.Orders == 0 {
		status = "empty"
	}
	observability.RecordBatch(status, result.Orders, result.Duration.Seconds())
	observability.MarkBatchSuccess(o.clock().Unix())
	o.logger.Printf("Batch committed: %d orders hedged (%d from journal) in %s",
		len(result.Hedges), result.Reused, result.Duration)

	if result.Orders > 0 {
		o.reportBalances(ctx, owner, "POST")
	}
	return result, nil
}

// ExecuteSwap runs quote → build → sign → broadcast for an ad-hoc parameter
// set. The ledger and the journal are not touched.
func (o *Orchestrator) ExecuteSwap(ctx context.Context, params domain.SwapParams) (string, error) {
	return o.execute(ctx, nil, params)
}

// Wait blocks until all notification cross-checks have finished.
func (o *Orchestrator) Wait() {
	o.checks.Wait()
}

// hedgeOrder returns the hedge row for order, reusing a journaled broadcast
// when one is final and running the pipeline otherwise.
func (o *Orchestrator) hedgeOrder(ctx context.Context, order *domain.Order) (*domain.HedgeTransaction, bool, error) {
	params, err := o.generator.Generate(order)
	if err != nil {
		return nil, false, o.fail(order.OrderID, StepGenerate, err)
	}
	o.logger.Printf("Generated %s hedge params for order %s: in=%s out=%s amount=%d mode=%s slippage=%dbps",
		order.Direction, order.OrderID, params.InputMint, params.OutputMint, params.Amount, params.SwapMode, params.SlippageBps)

	rec, err := o.resolveJournal(ctx, order.OrderID)
	if err != nil {
		return nil, false, o.fail(order.OrderID, StepJournal, err)
	}
	if rec != nil {
		observability.RecordJournalReuse()
		o.logger.Printf("Order %s already settled as %s, reusing journaled signature", order.OrderID, rec.Signature)
		return domain.NewHedgeTransaction(order, rec.Params, rec.Signature), true, nil
	}

	signature, err := o.execute(ctx, order, params)
	if err != nil {
		return nil, false, err
	}
	return domain.NewHedgeTransaction(order, params, signature), false, nil
}

// resolveJournal returns the journal entry for orderID if its broadcast is
// final, nil if the pipeline should run, or an error if the batch must stop.
func (o *Orchestrator) resolveJournal(ctx context.Context, orderID string) (*domain.BroadcastRecord, error) {
	rec, err := o.journal.GetBroadcast(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	if rec.State == domain.BroadcastFinalized {
		return rec, nil
	}

	if o.status == nil {
		return nil, fmt.Errorf("unconfirmed broadcast %s cannot be resolved without a status reader: %w", rec.Signature, ErrStillSettling)
	}

	// Height is read before the status so a transaction that lands at or
	// below it is already visible to the status lookup.
	var height uint64
	var statuses []*solana.SignatureStatus
	err = o.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		if height, err = o.status.GetBlockHeight(ctx, solana.CommitmentFinalized); err != nil {
			return err
		}
		statuses, err = o.status.GetSignatureStatuses(ctx, []string{rec.Signature}, true)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", rec.Signature, err)
	}

	var st *solana.SignatureStatus
	if len(statuses) > 0 {
		st = statuses[0]
	}
	switch {
	case st == nil:
		if !o.expired(rec, height) {
			return nil, fmt.Errorf("signature %s unknown to the node but still valid (block height %d, last valid %d): %w",
				rec.Signature, height, rec.LastValidBlockHeight, ErrStillSettling)
		}
		o.logger.Printf("Journaled signature %s for order %s is unknown to the node and expired, hedging again", rec.Signature, orderID)
		return nil, nil
	case st.Err != nil:
		o.logger.Printf("Journaled signature %s for order %s failed on-chain (%v), hedging again", rec.Signature, orderID, st.Err)
		return nil, nil
	case st.EffectiveCommitment().Reaches(solana.CommitmentFinalized):
		rec.State = domain.BroadcastFinalized
		rec.RecordedAt = o.clock().UnixMilli()
		if err := o.journal.RecordBroadcast(ctx, rec); err != nil {
			return nil, fmt.Errorf("update journal: %w", err)
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("signature %s at %q: %w", rec.Signature, st.ConfirmationStatus, ErrStillSettling)
	}
}

// expired reports whether a journaled transaction can no longer land.
func (o *Orchestrator) expired(rec *domain.BroadcastRecord, height uint64) bool {
	if rec.LastValidBlockHeight > 0 {
		return height > rec.LastValidBlockHeight
	}
	return o.clock().Sub(time.UnixMilli(rec.RecordedAt)) > BlockhashExpiry
}

// execute runs quote → build → sign → broadcast. When order is non-nil the
// signature is journaled as soon as it is known.
func (o *Orchestrator) execute(ctx context.Context, order *domain.Order, params domain.SwapParams) (string, error) {
	orderID := ""
	if order != nil {
		orderID = order.OrderID
	}

	var quote *jupiter.Quote
	if err := o.step(ctx, StepQuote, true, func(ctx context.Context) error {
		var err error
		quote, err = o.aggregator.GetQuote(ctx, params)
		return err
	}); err != nil {
		return "", o.fail(orderID, StepQuote, err)
	}
	o.logger.Printf("Quote for %s: in=%s out=%s impact=%s route=%v",
		describe(orderID), quote.InAmount, quote.OutAmount, quote.PriceImpactPct, quote.Labels())

	var swap *jupiter.SwapTransaction
	if err := o.step(ctx, StepBuild, true, func(ctx context.Context) error {
		var err error
		swap, err = o.aggregator.BuildSwap(ctx, quote, o.signer.Address())
		return err
	}); err != nil {
		return "", o.fail(orderID, StepBuild, err)
	}

	var signed *signer.Signed
	if err := o.step(ctx, StepSign, false, func(context.Context) error {
		var err error
		signed, err = o.signer.Sign(swap.Raw)
		return err
	}); err != nil {
		return "", o.fail(orderID, StepSign, err)
	}

	outcome := o.crossCheck(ctx, signed.Signature, orderID)

	var signature string
	err := o.step(ctx, StepBroadcast, false, func(ctx context.Context) error {
		var err error
		signature, err = o.broadcaster.Submit(ctx, signed.Raw, o.submit)
		return err
	})
	result := broadcastOutcome(err)
	outcome <- result
	observability.RecordBroadcast(string(result))
	o.recordEvent(ctx, signed.Signature, orderID, domain.SourceBroadcast, result, errReason(err))

	if err != nil {
		var bErr *solana.BroadcastError
		if order != nil && errors.As(err, &bErr) && bErr.MaybeLanded() {
			o.journalBroadcast(ctx, order, params, signed.Signature, swap.LastValidBlockHeight, domain.BroadcastUnconfirmed)
		}
		return "", o.fail(orderID, StepBroadcast, err)
	}
	if signature != signed.Signature {
		o.logger.Printf("Node returned signature %s, signed %s", signature, signed.Signature)
	}
	o.logger.Printf("Transaction finalized: https://solscan.io/tx/%s", signature)

	if order != nil {
		if err := o.journalBroadcast(ctx, order, params, signature, swap.LastValidBlockHeight, domain.BroadcastFinalized); err != nil {
			return "", o.fail(orderID, StepJournal, err)
		}
	}

	o.fetchLogs(ctx, signature)
	return signature, nil
}

// journalBroadcast writes the journal entry outside the batch transaction.
func (o *Orchestrator) journalBroadcast(ctx context.Context, order *domain.Order, params domain.SwapParams, signature string, lastValid uint64, state domain.BroadcastState) error {
	rec := &domain.BroadcastRecord{
		OrderID:              order.OrderID,
		Signature:            signature,
		State:                state,
		Params:               params,
		Direction:            order.Direction,
		LastValidBlockHeight: lastValid,
		RecordedAt:           o.clock().UnixMilli(),
	}
	if err := o.journal.RecordBroadcast(ctx, rec); err != nil {
		o.logger.Printf("Failed to journal %s broadcast %s for order %s: %v", state, signature, order.OrderID, err)
		return err
	}
	return nil
}

// fetchLogs prints the program logs of a finalized transaction. Best effort.
func (o *Orchestrator) fetchLogs(ctx context.Context, signature string) {
	if o.status == nil {
		return
	}
	var tx *solana.Transaction
	err := o.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		tx, err = o.status.GetTransaction(ctx, signature, solana.CommitmentFinalized)
		return err
	})
	if err != nil {
		o.logger.Printf("Error fetching transaction logs for %s: %v", signature, err)
		return
	}
	if tx == nil || tx.Meta == nil {
		return
	}
	for _, line := range tx.Meta.LogMessages {
		o.logger.Print(line)
	}
}

// crossCheck starts the notification tracker for signature. The returned
// channel takes the broadcast outcome once known; the tracker result is
// compared with it, logged and recorded, never acted on.
func (o *Orchestrator) crossCheck(ctx context.Context, signature, orderID string) chan<- domain.Outcome {
	outcome := make(chan domain.Outcome, 1)
	if o.tracker == nil {
		return outcome
	}

	o.checks.Add(1)
	go func() {
		defer o.checks.Done()

		trackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.trackerTimeout)
		defer cancel()

		res, err := o.tracker.Track(trackCtx, signature)
		observed, reason := notificationOutcome(res, err)
		broadcast := <-outcome

		disagrees := (broadcast == domain.OutcomeConfirmed && observed == domain.OutcomeFailed) ||
			(observed == domain.OutcomeConfirmed && broadcast != domain.OutcomeConfirmed)
		observability.RecordTrackerOutcome(string(observed), disagrees)
		if disagrees {
			o.logger.Printf("Confirmation signals disagree for %s: broadcast=%s notification=%s %s",
				signature, broadcast, observed, reason)
		} else {
			o.logger.Printf("Notification for %s: %s %s", signature, observed, reason)
		}

		o.recordEvent(trackCtx, signature, orderID, domain.SourceNotification, observed, reason)
	}()
	return outcome
}

func (o *Orchestrator) recordEvent(ctx context.Context, signature, orderID string, source domain.SettlementSource, outcome domain.Outcome, reason string) {
	if o.events == nil {
		return
	}
	e := &domain.SettlementEvent{
		Signature:  signature,
		OrderID:    orderID,
		Source:     source,
		Outcome:    outcome,
		Reason:     reason,
		ObservedAt: o.clock().UnixMilli(),
	}
	if err := o.events.Insert(context.WithoutCancel(ctx), e); err != nil {
		observability.RecordSettlementEventError()
		o.logger.Printf("Failed to record %s settlement event for %s: %v", source, signature, err)
	}
}

func (o *Orchestrator) reportBalances(ctx context.Context, owner, prefix string) {
	if o.balances == nil {
		return
	}
	err := o.withTimeout(ctx, func(ctx context.Context) error {
		_, err := o.balances.Report(ctx, owner, prefix)
		return err
	})
	if err != nil {
		o.logger.Printf("%s balance report failed: %v", prefix, err)
	}
}

// step runs fn, bounded by the step timeout when bounded is set, and records metrics.
func (o *Orchestrator) step(ctx context.Context, name Step, bounded bool, fn func(context.Context) error) error {
	start := time.Now()
	var err error
	if bounded {
		err = o.withTimeout(ctx, fn)
	} else {
		err = fn(ctx)
	}
	observability.RecordStep(string(name), time.Since(start).Seconds(), err)
	return err
}

func (o *Orchestrator) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()
	return fn(ctx)
}

func (o *Orchestrator) fail(orderID string, step Step, err error) error {
	stepErr := &StepError{OrderID: orderID, Step: step, Err: err}
	o.logger.Printf("Error: %v", stepErr)
	return stepErr
}

func broadcastOutcome(err error) domain.Outcome {
	if err == nil {
		return domain.OutcomeConfirmed
	}
	var bErr *solana.BroadcastError
	if errors.As(err, &bErr) {
		switch bErr.Kind {
		case solana.BroadcastTimeout:
			return domain.OutcomeTimedOut
		case solana.BroadcastNetwork:
			return domain.OutcomeDisconnected
		}
	}
	return domain.OutcomeFailed
}

func notificationOutcome(res *tracker.Result, err error) (domain.Outcome, string) {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.OutcomeTimedOut, err.Error()
		}
		return domain.OutcomeDisconnected, err.Error()
	}
	if res.State == tracker.StateFailed {
		return domain.OutcomeFailed, res.Reason()
	}
	return domain.OutcomeConfirmed, ""
}

func errReason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func describe(orderID string) string {
	if orderID == "" {
		return "ad-hoc swap"
	}
	return "order " + orderID
}
