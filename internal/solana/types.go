package solana

// Commitment is a node consistency level.
type Commitment string

// Commitment constants, ordered from weakest to strongest.
const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// rank orders commitments so a status can be compared to a target.
func (c Commitment) rank() int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// Valid reports whether c is a known commitment.
func (c Commitment) Valid() bool {
	return c.rank() > 0
}

// Reaches reports whether c is at least as strong as target.
func (c Commitment) Reaches(target Commitment) bool {
	return c.rank() >= target.rank() && c.rank() > 0
}

// SendOpts are the options of sendTransaction.
type SendOpts struct {
	SkipPreflight       bool
	PreflightCommitment Commitment
	// MaxRetries asks the node to rebroadcast; nil leaves the node default.
	MaxRetries *uint
}

// SignatureStatus from getSignatureStatuses. A nil entry means the signature is unknown.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *int64 // nil once rooted
	Err                interface{}
	ConfirmationStatus Commitment
}

// EffectiveCommitment treats a rooted status without a reported level as finalized.
func (st *SignatureStatus) EffectiveCommitment() Commitment {
	if st.ConfirmationStatus == "" && st.Confirmations == nil {
		return CommitmentFinalized
	}
	return st.ConfirmationStatus
}

// TokenBalance is one SPL token account owned by a wallet.
type TokenBalance struct {
	Account  string
	Mint     string
	Amount   string // base units
	Decimals int
	UIAmount string
}
