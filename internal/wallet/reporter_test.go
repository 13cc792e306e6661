package wallet

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-hedge/internal/solana"
)

type fakeRPC struct {
	solana.RPCClient
	lamports uint64
	tokens   []solana.TokenBalance
	err      error
}

func (f *fakeRPC) GetBalance(context.Context, string, solana.Commitment) (uint64, error) {
	return f.lamports, f.err
}

func (f *fakeRPC) GetTokenAccountsByOwner(context.Context, string, string) ([]solana.TokenBalance, error) {
	return f.tokens, nil
}

func TestReporter_Report(t *testing.T) {
	var buf bytes.Buffer
	rpc := &fakeRPC{
		lamports: 1_500_000_001,
		tokens: []solana.TokenBalance{
			{Account: "acc2", Mint: "MintB", Amount: "10", Decimals: 0, UIAmount: "10"},
			{Account: "acc1", Mint: "MintA", Amount: "2500000", Decimals: 6, UIAmount: "2.5"},
		},
	}

	snap, err := NewReporter(rpc, log.New(&buf, "", 0)).Report(context.Background(), "owner", "PRE")
	require.NoError(t, err)

	assert.Equal(t, "1.500000001", snap.SOL().String())
	require.Len(t, snap.Tokens, 2)
	assert.Equal(t, "MintA", snap.Tokens[0].Mint)

	tok, ok := snap.Token("MintB")
	assert.True(t, ok)
	assert.Equal(t, "10", tok.Amount)
	_, ok = snap.Token("MintC")
	assert.False(t, ok)

	out := buf.String()
	assert.True(t, strings.Contains(out, "PRE - SOL Balance: 1.500000001"), out)
	assert.True(t, strings.Contains(out, "Mint Address: MintA, Balance: 2.5"), out)
}

func TestReporter_Error(t *testing.T) {
	rpc := &fakeRPC{err: errors.New("node down")}

	_, err := NewReporter(rpc, nil).Snapshot(context.Background(), "owner")
	assert.Error(t, err)
}
