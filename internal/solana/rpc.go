package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface used by the hedge pipeline.
type RPCClient interface {
	// SendTransaction submits a signed, serialized transaction and returns its signature.
	SendTransaction(ctx context.Context, tx []byte, opts SendOpts) (string, error)

	// GetSignatureStatuses returns one status per signature, nil for unknown signatures.
	GetSignatureStatuses(ctx context.Context, signatures []string, searchHistory bool) ([]*SignatureStatus, error)

	// GetTransaction retrieves a transaction by signature. Returns nil if not found.
	GetTransaction(ctx context.Context, signature string, commitment Commitment) (*Transaction, error)

	// GetBlockHeight returns the current block height at the given commitment.
	GetBlockHeight(ctx context.Context, commitment Commitment) (uint64, error)

	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string, commitment Commitment) (uint64, error)

	// GetTokenAccountsByOwner lists SPL token accounts owned by a wallet.
	GetTokenAccountsByOwner(ctx context.Context, owner, programID string) ([]TokenBalance, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
	Fee         uint64
}
