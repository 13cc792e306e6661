package solana

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"
)

// SubmitOptions controls submission and the blocking wait for confirmation.
type SubmitOptions struct {
	SkipPreflight bool
	// PreflightCommitment gates the node's own preflight simulation.
	PreflightCommitment Commitment
	// Commitment is the level Submit waits for before returning.
	Commitment     Commitment
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// DefaultSubmitOptions skips preflight, simulates at processed and waits for finalized.
func DefaultSubmitOptions() SubmitOptions {
	return SubmitOptions{
		SkipPreflight:       true,
		PreflightCommitment: CommitmentProcessed,
		Commitment:          CommitmentFinalized,
		ConfirmTimeout:      90 * time.Second,
		PollInterval:        2 * time.Second,
	}
}

// BroadcastErrorKind classifies a failed submission.
type BroadcastErrorKind string

// BroadcastErrorKind constants
const (
	// BroadcastRejected means the node refused the transaction (e.g. simulation failure).
	BroadcastRejected BroadcastErrorKind = "rejected"
	// BroadcastNetwork means the submit call failed in transport.
	BroadcastNetwork BroadcastErrorKind = "network"
	// BroadcastFailed means the transaction landed with an execution error.
	BroadcastFailed BroadcastErrorKind = "failed"
	// BroadcastTimeout means the target commitment was not observed in time.
	BroadcastTimeout BroadcastErrorKind = "timeout"
)

// BroadcastError is returned by Broadcaster.Submit.
type BroadcastError struct {
	Kind      BroadcastErrorKind
	Signature string // empty if the node never returned one
	Err       error
}

func (e *BroadcastError) Error() string {
	if e.Signature != "" {
		return fmt.Sprintf("broadcast %s (%s): %v", e.Kind, e.Signature, e.Err)
	}
	return fmt.Sprintf("broadcast %s: %v", e.Kind, e.Err)
}

func (e *BroadcastError) Unwrap() error {
	return e.Err
}

// MaybeLanded reports whether the transaction may exist on-chain despite the error.
func (e *BroadcastError) MaybeLanded() bool {
	return e.Kind != BroadcastRejected
}

// Broadcaster submits signed transactions and blocks until they reach a commitment.
type Broadcaster struct {
	rpc    RPCClient
	logger *log.Logger
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(rpc RPCClient, logger *log.Logger) *Broadcaster {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Broadcaster{rpc: rpc, logger: logger}
}

// Submit sends the transaction and waits until opts.Commitment is reached.
// The returned signature is final only when err is nil.
func (b *Broadcaster) Submit(ctx context.Context, signed []byte, opts SubmitOptions) (string, error) {
	if opts.Commitment == "" {
		opts.Commitment = CommitmentFinalized
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultSubmitOptions().ConfirmTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultSubmitOptions().PollInterval
	}

	signature, err := b.rpc.SendTransaction(ctx, signed, SendOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: opts.PreflightCommitment,
	})
	if err != nil {
		kind := BroadcastNetwork
		if IsRPCError(err) {
			kind = BroadcastRejected
		}
		return "", &BroadcastError{Kind: kind, Err: err}
	}
	b.logger.Printf("Sent transaction %s, waiting for %s", signature, opts.Commitment)

	if err := b.waitForCommitment(ctx, signature, opts); err != nil {
		return "", err
	}
	return signature, nil
}

// waitForCommitment polls getSignatureStatuses until the signature reaches the
// target commitment, fails on-chain, or the confirm timeout passes.
func (b *Broadcaster) waitForCommitment(ctx context.Context, signature string, opts SubmitOptions) error {
	ctx, cancel := context.WithTimeout(ctx, opts.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		statuses, err := b.rpc.GetSignatureStatuses(ctx, []string{signature}, false)
		switch {
		case err != nil:
			lastErr = err
			if ctx.Err() == nil {
				b.logger.Printf("Status poll for %s failed: %v", signature, err)
			}
		case len(statuses) > 0 && statuses[0] != nil:
			st := statuses[0]
			if st.Err != nil {
				return &BroadcastError{
					Kind:      BroadcastFailed,
					Signature: signature,
					Err:       fmt.Errorf("transaction error: %v", st.Err),
				}
			}
			if st.EffectiveCommitment().Reaches(opts.Commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			cause := ctx.Err()
			if lastErr != nil && !errors.Is(lastErr, cause) {
				cause = fmt.Errorf("%w (last poll error: %v)", cause, lastErr)
			}
			return &BroadcastError{
				Kind:      BroadcastTimeout,
				Signature: signature,
				Err:       fmt.Errorf("waiting for %s commitment: %w", opts.Commitment, cause),
			}
		case <-ticker.C:
		}
	}
}
