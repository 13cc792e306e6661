package hedge

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is the base-unit scale assumed for tokens without an explicit entry.
const DefaultDecimals = 6

// Decimals is a per-mint registry of base-unit scales.
type Decimals struct {
	fallback int32
	byMint   map[string]int32
}

// NewDecimals creates a registry with a fallback scale and explicit per-mint overrides.
func NewDecimals(fallback int, byMint map[string]int) *Decimals {
	d := &Decimals{
		fallback: int32(fallback),
		byMint:   make(map[string]int32, len(byMint)),
	}
	for mint, n := range byMint {
		d.byMint[mint] = int32(n)
	}
	return d
}

// For returns the scale for a mint.
func (d *Decimals) For(mint string) int32 {
	if n, ok := d.byMint[mint]; ok {
		return n
	}
	return d.fallback
}

// ToBaseUnits converts |amount| of mint to base units, truncating toward zero.
func (d *Decimals) ToBaseUnits(mint string, amount decimal.Decimal) (uint64, error) {
	scaled := amount.Abs().Shift(d.For(mint)).Truncate(0)
	units := scaled.BigInt()
	if !units.IsUint64() {
		return 0, fmt.Errorf("amount %s overflows base units of %s", amount.String(), mint)
	}
	return units.Uint64(), nil
}
