package domain

import "github.com/shopspring/decimal"

// Order is a hedge intent produced by the order-matching process.
// Corresponds to orders table in PostgreSQL.
type Order struct {
	OrderID      string          // unique, immutable
	Direction    Direction       // BUY | SELL
	TokenAddress string          // mint of the non-native leg
	HedgeAmount  decimal.Decimal // signed; magnitude is used for sizing
	Status       OrderStatus
	CreatedAt    int64 // Unix timestamp in milliseconds
	UpdatedAt    int64 // Unix timestamp in milliseconds
}

// Direction is the side of the hedge.
type Direction string

// Direction constants
const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// OrderStatus is the processing state of an order.
// Transitions only move forward.
type OrderStatus int16

// OrderStatus constants
const (
	OrderStatusPending    OrderStatus = 1
	OrderStatusProcessing OrderStatus = 2
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "pending"
	case OrderStatusProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// CanTransitionTo reports whether moving from s to next is a forward transition.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return next > s
}
