package market

import (
	"time"

	"github.com/goodnatureofminers/blackbook/internal/model"
)

// Config bounds the markets accepted by the engine.
type Config struct {
	MinDuration      time.Duration
	MaxDuration      time.Duration
	DefaultLiquidity float64
	// MaxLiquidity caps b so the escrow subsidy stays representable.
	MaxLiquidity float64
	MaxOutcomes  int
	// CostTolerance is the slack, in base units, allowed between a bet's
	// recomputed trade cost and its stake.
	CostTolerance float64
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		MinDuration:      time.Hour,
		MaxDuration:      365 * 24 * time.Hour,
		DefaultLiquidity: 100 * model.SatoshiPerCoin,
		MaxLiquidity:     1_000_000 * model.SatoshiPerCoin,
		MaxOutcomes:      16,
		CostTolerance:    1e-6,
	}
}
