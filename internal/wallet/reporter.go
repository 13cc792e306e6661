// Package wallet reports the operator's native and SPL token balances.
package wallet

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"solana-hedge/internal/solana"
)

// lamportDecimals is the native asset scale.
const lamportDecimals = 9

// Snapshot is a point-in-time view of a wallet.
type Snapshot struct {
	Owner    string
	Lamports uint64
	Tokens   []solana.TokenBalance // sorted by mint
}

// SOL returns the native balance in SOL.
func (s *Snapshot) SOL() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(s.Lamports), -lamportDecimals)
}

// Token returns the balance of mint, if the wallet holds an account for it.
func (s *Snapshot) Token(mint string) (solana.TokenBalance, bool) {
	for _, t := range s.Tokens {
		if t.Mint == mint {
			return t, true
		}
	}
	return solana.TokenBalance{}, false
}

// Reporter reads balances through the node RPC.
type Reporter struct {
	rpc    solana.RPCClient
	logger *log.Logger
}

// NewReporter creates a Reporter.
func NewReporter(rpc solana.RPCClient, logger *log.Logger) *Reporter {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Reporter{rpc: rpc, logger: logger}
}

// Snapshot reads the native balance and all SPL token accounts of owner.
func (r *Reporter) Snapshot(ctx context.Context, owner string) (*Snapshot, error) {
	lamports, err := r.rpc.GetBalance(ctx, owner, solana.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}

	tokens, err := r.rpc.GetTokenAccountsByOwner(ctx, owner, solana.TokenProgramID)
	if err != nil {
		return nil, fmt.Errorf("get token accounts: %w", err)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].Mint != tokens[j].Mint {
			return tokens[i].Mint < tokens[j].Mint
		}
		return tokens[i].Account < tokens[j].Account
	})

	return &Snapshot{Owner: owner, Lamports: lamports, Tokens: tokens}, nil
}

// Log writes the snapshot under a label such as PRE or POST.
func (r *Reporter) Log(prefix string, s *Snapshot) {
	r.logger.Printf("%s - SOL Balance: %s", prefix, s.SOL().String())
	r.logger.Printf("%s - Token Balances:", prefix)
	for _, t := range s.Tokens {
		r.logger.Printf("Mint Address: %s, Balance: %s", t.Mint, t.UIAmount)
	}
}

// Report takes a snapshot and logs it.
func (r *Reporter) Report(ctx context.Context, owner, prefix string) (*Snapshot, error) {
	s, err := r.Snapshot(ctx, owner)
	if err != nil {
		return nil, err
	}
	r.Log(prefix, s)
	return s, nil
}
