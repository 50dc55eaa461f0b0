package chain

import (
	"math/big"
	"time"

	"github.com/btcsuite/btcd/blockchain"
)

// CalcNextBits scales the current target by actual/expected timespan. The
// ratio is clamped to [1/MaxAdjustment, MaxAdjustment] and the result never
// exceeds the pow limit. Blocks arriving faster than TargetSpacing shrink the
// target, which raises the difficulty.
func CalcNextBits(p Params, bits uint32, actual time.Duration) uint32 {
	expected := p.TargetTimespan()
	if expected <= 0 {
		return bits
	}
	maxAdj := p.MaxAdjustment
	if maxAdj < 1 {
		maxAdj = 1
	}
	minSpan := expected / time.Duration(maxAdj)
	maxSpan := expected * time.Duration(maxAdj)
	if actual < minSpan {
		actual = minSpan
	}
	if actual > maxSpan {
		actual = maxSpan
	}

	target := blockchain.CompactToBig(bits)
	target.Mul(target, big.NewInt(int64(actual)))
	target.Div(target, big.NewInt(int64(expected)))

	if limit := p.PowLimit(); target.Cmp(limit) > 0 {
		target.Set(limit)
	}
	if target.Sign() <= 0 {
		target.SetInt64(1)
	}
	return blockchain.BigToCompact(target)
}
