// Package hedge derives swap parameters from hedge orders.
package hedge

import (
	"errors"
	"fmt"

	"solana-hedge/internal/domain"
)

// DefaultSlippageBps is the slippage tolerance applied to every hedge (0.5%).
const DefaultSlippageBps = 50

// ErrInvalidOrder is returned when an order cannot be turned into swap parameters.
var ErrInvalidOrder = errors.New("invalid hedge order")

// Generator maps orders to swap parameters. It has no side effects.
type Generator struct {
	decimals    *Decimals
	slippageBps int
}

// NewGenerator creates a Generator. A nil registry uses the default 6-decimal scale.
func NewGenerator(decimals *Decimals, slippageBps int) *Generator {
	if decimals == nil {
		decimals = NewDecimals(DefaultDecimals, nil)
	}
	if slippageBps <= 0 {
		slippageBps = DefaultSlippageBps
	}
	return &Generator{decimals: decimals, slippageBps: slippageBps}
}

// Generate derives swap parameters for an order.
//
// BUY spends the native asset for an exact amount of the token (ExactOut).
// SELL spends an exact amount of the token for the native asset (ExactIn).
// In both cases the amount is the token quantity in the token's base units.
func (g *Generator) Generate(order *domain.Order) (domain.SwapParams, error) {
	if order == nil {
		return domain.SwapParams{}, fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	if order.TokenAddress == "" {
		return domain.SwapParams{}, fmt.Errorf("%w: order %s has no token address", ErrInvalidOrder, order.OrderID)
	}

	amount, err := g.decimals.ToBaseUnits(order.TokenAddress, order.HedgeAmount)
	if err != nil {
		return domain.SwapParams{}, fmt.Errorf("%w: order %s: %v", ErrInvalidOrder, order.OrderID, err)
	}

	params := domain.SwapParams{
		Amount:      amount,
		SlippageBps: g.slippageBps,
	}

	switch order.Direction {
	case domain.DirectionBuy:
		params.InputMint = domain.NativeMint
		params.OutputMint = order.TokenAddress
		params.SwapMode = domain.SwapModeExactOut
	case domain.DirectionSell:
		params.InputMint = order.TokenAddress
		params.OutputMint = domain.NativeMint
		params.SwapMode = domain.SwapModeExactIn
	default:
		return domain.SwapParams{}, fmt.Errorf("%w: order %s has direction %q", ErrInvalidOrder, order.OrderID, order.Direction)
	}

	return params, nil
}
