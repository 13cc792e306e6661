package domain

// NativeMint is the wrapped SOL mint used for the native leg of every swap.
const NativeMint = "So11111111111111111111111111111111111111112"

// SwapMode fixes which leg of a swap the amount refers to.
type SwapMode string

// SwapMode constants
const (
	SwapModeExactIn  SwapMode = "ExactIn"
	SwapModeExactOut SwapMode = "ExactOut"
)

// Valid reports whether m is a known swap mode.
func (m SwapMode) Valid() bool {
	return m == SwapModeExactIn || m == SwapModeExactOut
}

// SwapParams is the parameter set sent to the quote endpoint.
type SwapParams struct {
	InputMint   string   `json:"inputMint"`
	OutputMint  string   `json:"outputMint"`
	Amount      uint64   `json:"amount"` // base units of the hedged token
	SwapMode    SwapMode `json:"swapMode"`
	SlippageBps int      `json:"slippageBps"`
}

// HedgeTransaction records one swap derived from an Order.
// Corresponds to hedge_transactions table in PostgreSQL. Append-only.
type HedgeTransaction struct {
	ID         int64 // BIGSERIAL primary key
	OrderID    string
	Direction  Direction
	InputMint  string
	OutputMint string
	Amount     uint64
	SwapMode   SwapMode
	Signature  string // network-assigned transaction id
	CreatedAt  int64  // Unix timestamp in milliseconds
}

// NewHedgeTransaction builds the ledger row for an order and its broadcast.
func NewHedgeTransaction(order *Order, params SwapParams, signature string) *HedgeTransaction {
	return &HedgeTransaction{
		OrderID:    order.OrderID,
		Direction:  order.Direction,
		InputMint:  params.InputMint,
		OutputMint: params.OutputMint,
		Amount:     params.Amount,
		SwapMode:   params.SwapMode,
		Signature:  signature,
	}
}
