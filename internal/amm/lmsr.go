// Package amm implements the logarithmic market scoring rule.
//
// All functions take the outstanding share vector q and the liquidity
// parameter b. Exponentials are computed relative to max(q_i/b) so that large
// share counts do not overflow.
package amm

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidLiquidity = errors.New("liquidity parameter must be positive and finite")
	ErrInvalidOutcome   = errors.New("outcome index out of range")
	ErrInvalidAmount    = errors.New("amount must be positive and finite")
)

const (
	solverIterations = 200
	maxDoublings     = 128
)

// Cost returns C(q) = b * ln(sum exp(q_i / b)).
func Cost(q []float64, b float64) float64 {
	m, sum := logSumExpParts(q, b)
	return b * (m + math.Log(sum))
}

// Prices returns p_i = exp(q_i/b) / sum exp(q_j/b).
func Prices(q []float64, b float64) []float64 {
	m, sum := logSumExpParts(q, b)
	p := make([]float64, len(q))
	for i, qi := range q {
		p[i] = math.Exp(qi/b-m) / sum
	}
	return p
}

func logSumExpParts(q []float64, b float64) (float64, float64) {
	m := math.Inf(-1)
	for _, qi := range q {
		if v := qi / b; v > m {
			m = v
		}
	}
	var sum float64
	for _, qi := range q {
		sum += math.Exp(qi/b - m)
	}
	return m, sum
}

// TradeCost is the amount charged for buying delta shares of outcome i.
func TradeCost(q []float64, b float64, i int, delta float64) float64 {
	after := make([]float64, len(q))
	copy(after, q)
	after[i] += delta
	return Cost(after, b) - Cost(q, b)
}

// SolveShares finds the share count whose trade cost equals amount. The
// returned value never costs more than amount.
func SolveShares(q []float64, b float64, i int, amount float64) (float64, error) {
	if err := check(q, b, i); err != nil {
		return 0, err
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("solve shares for %v: %w", amount, ErrInvalidAmount)
	}

	// Every price is below one, so amount shares always cost less than amount.
	lo, hi := 0.0, amount
	for n := 0; TradeCost(q, b, i, hi) <= amount; n++ {
		if n == maxDoublings {
			return 0, fmt.Errorf("no upper bound for %v: %w", amount, ErrInvalidAmount)
		}
		lo = hi
		hi *= 2
	}

	for n := 0; n < solverIterations && hi-lo > 1e-9*math.Max(1, lo); n++ {
		mid := lo + (hi-lo)/2
		if TradeCost(q, b, i, mid) <= amount {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// Subsidy is the worst-case loss of the market maker, b * ln(n).
func Subsidy(b float64, n int) float64 {
	if n < 2 {
		return 0
	}
	return b * math.Log(float64(n))
}

func check(q []float64, b float64, i int) error {
	if b <= 0 || math.IsNaN(b) || math.IsInf(b, 0) {
		return ErrInvalidLiquidity
	}
	if i < 0 || i >= len(q) {
		return fmt.Errorf("outcome %d of %d: %w", i, len(q), ErrInvalidOutcome)
	}
	return nil
}
