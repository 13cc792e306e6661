package domain

// BroadcastState is the journaled state of a submitted transaction.
type BroadcastState string

// BroadcastState constants
const (
	// BroadcastFinalized means the submit call returned at the finalized commitment.
	BroadcastFinalized BroadcastState = "finalized"
	// BroadcastUnconfirmed means the transaction was sent but finality was not observed.
	BroadcastUnconfirmed BroadcastState = "unconfirmed"
)

// BroadcastRecord is the durable journal entry written as soon as a signature is known.
// Corresponds to hedge_broadcasts table in PostgreSQL, keyed by order_id.
type BroadcastRecord struct {
	OrderID    string
	Signature  string
	State      BroadcastState
	Params     SwapParams
	Direction  Direction
	// LastValidBlockHeight bounds when the transaction can still land. Zero if unknown.
	LastValidBlockHeight uint64
	RecordedAt           int64 // Unix timestamp in milliseconds
}

// Outcome is the terminal confirmation result of a transaction.
type Outcome string

// Outcome constants
const (
	OutcomeConfirmed    Outcome = "confirmed"
	OutcomeFailed       Outcome = "failed"
	OutcomeTimedOut     Outcome = "timed_out"
	OutcomeDisconnected Outcome = "disconnected"
)

// SettlementSource identifies which confirmation signal produced an event.
type SettlementSource string

// SettlementSource constants
const (
	SourceBroadcast    SettlementSource = "broadcast"
	SourceNotification SettlementSource = "notification"
)

// SettlementEvent is one observation of a transaction's confirmation outcome.
// Corresponds to settlement_events table in ClickHouse. Append-only.
type SettlementEvent struct {
	EventID    string // SHA256(signature|source|outcome), filled on insert when empty
	Signature  string
	OrderID    string // empty for ad-hoc swaps
	Source     SettlementSource
	Outcome    Outcome
	Reason     string // error payload for failed outcomes
	ObservedAt int64  // Unix timestamp in milliseconds
}
