package solana

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRPC is a scripted RPCClient.
type fakeRPC struct {
	mu       sync.Mutex
	sendErr  error
	sendOpts SendOpts
	statuses []*SignatureStatus // returned one per poll; last one repeats
	polls    int
}

func (f *fakeRPC) SendTransaction(_ context.Context, _ []byte, opts SendOpts) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendOpts = opts
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return "sig1", nil
}

func (f *fakeRPC) GetSignatureStatuses(_ context.Context, sigs []string, _ bool) ([]*SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.polls
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.polls++
	if idx < 0 {
		return make([]*SignatureStatus, len(sigs)), nil
	}
	return []*SignatureStatus{f.statuses[idx]}, nil
}

func (f *fakeRPC) GetTransaction(context.Context, string, Commitment) (*Transaction, error) {
	return nil, nil
}

func (f *fakeRPC) GetBlockHeight(context.Context, Commitment) (uint64, error) {
	return 0, nil
}

func (f *fakeRPC) GetBalance(context.Context, string, Commitment) (uint64, error) {
	return 0, nil
}

func (f *fakeRPC) GetTokenAccountsByOwner(context.Context, string, string) ([]TokenBalance, error) {
	return nil, nil
}

func fastOpts() SubmitOptions {
	opts := DefaultSubmitOptions()
	opts.PollInterval = time.Millisecond
	opts.ConfirmTimeout = 200 * time.Millisecond
	return opts
}

func TestBroadcaster_WaitsForFinalized(t *testing.T) {
	rpc := &fakeRPC{statuses: []*SignatureStatus{
		nil,
		{Slot: 1, ConfirmationStatus: CommitmentProcessed},
		{Slot: 1, ConfirmationStatus: CommitmentConfirmed},
		{Slot: 1, ConfirmationStatus: CommitmentFinalized},
	}}

	sig, err := NewBroadcaster(rpc, nil).Submit(context.Background(), []byte("tx"), fastOpts())
	require.NoError(t, err)
	assert.Equal(t, "sig1", sig)
	assert.Equal(t, 4, rpc.polls)
	assert.True(t, rpc.sendOpts.SkipPreflight)
	assert.Equal(t, CommitmentProcessed, rpc.sendOpts.PreflightCommitment)
}

func TestBroadcaster_Timeout(t *testing.T) {
	rpc := &fakeRPC{statuses: []*SignatureStatus{{ConfirmationStatus: CommitmentConfirmed}}}

	_, err := NewBroadcaster(rpc, nil).Submit(context.Background(), []byte("tx"), fastOpts())

	var bErr *BroadcastError
	require.True(t, errors.As(err, &bErr))
	assert.Equal(t, BroadcastTimeout, bErr.Kind)
	assert.Equal(t, "sig1", bErr.Signature)
	assert.True(t, bErr.MaybeLanded())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBroadcaster_OnChainFailure(t *testing.T) {
	rpc := &fakeRPC{statuses: []*SignatureStatus{{
		ConfirmationStatus: CommitmentProcessed,
		Err:                map[string]interface{}{"InstructionError": []interface{}{2, "Custom"}},
	}}}

	_, err := NewBroadcaster(rpc, nil).Submit(context.Background(), []byte("tx"), fastOpts())

	var bErr *BroadcastError
	require.True(t, errors.As(err, &bErr))
	assert.Equal(t, BroadcastFailed, bErr.Kind)
}

func TestBroadcaster_Rejected(t *testing.T) {
	rpc := &fakeRPC{sendErr: &RPCError{Code: -32002, Message: "Transaction simulation failed"}}

	_, err := NewBroadcaster(rpc, nil).Submit(context.Background(), []byte("tx"), fastOpts())

	var bErr *BroadcastError
	require.True(t, errors.As(err, &bErr))
	assert.Equal(t, BroadcastRejected, bErr.Kind)
	assert.False(t, bErr.MaybeLanded())
	assert.Empty(t, bErr.Signature)
}

func TestBroadcaster_NetworkError(t *testing.T) {
	rpc := &fakeRPC{sendErr: errors.New("connection reset")}

	_, err := NewBroadcaster(rpc, nil).Submit(context.Background(), []byte("tx"), fastOpts())

	var bErr *BroadcastError
	require.True(t, errors.As(err, &bErr))
	assert.Equal(t, BroadcastNetwork, bErr.Kind)
	assert.True(t, bErr.MaybeLanded())
}

func TestBroadcaster_ConfirmedTarget(t *testing.T) {
	rpc := &fakeRPC{statuses: []*SignatureStatus{{ConfirmationStatus: CommitmentConfirmed}}}
	opts := fastOpts()
	opts.Commitment = CommitmentConfirmed

	sig, err := NewBroadcaster(rpc, nil).Submit(context.Background(), []byte("tx"), opts)
	require.NoError(t, err)
	assert.Equal(t, "sig1", sig)
}

func TestCommitment_Reaches(t *testing.T) {
	assert.True(t, CommitmentFinalized.Reaches(CommitmentConfirmed))
	assert.True(t, CommitmentConfirmed.Reaches(CommitmentConfirmed))
	assert.False(t, CommitmentProcessed.Reaches(CommitmentFinalized))
	assert.False(t, Commitment("").Reaches(CommitmentProcessed))
	assert.False(t, Commitment("bogus").Valid())
}

func TestSignatureStatus_EffectiveCommitment(t *testing.T) {
	assert.Equal(t, CommitmentFinalized, (&SignatureStatus{}).EffectiveCommitment())
	n := int64(5)
	assert.Equal(t, Commitment(""), (&SignatureStatus{Confirmations: &n}).EffectiveCommitment())
}
