package chain

import (
	"math"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/blockchain"
)

// Params configures proof of work and difficulty retargeting.
type Params struct {
	// PowLimitBits is the easiest allowed target in compact form. Genesis uses it.
	PowLimitBits uint32
	// TargetSpacing is the desired time between blocks.
	TargetSpacing time.Duration
	// RetargetInterval is the number of blocks between difficulty adjustments.
	RetargetInterval uint64
	// MaxAdjustment bounds one retarget to [1/MaxAdjustment, MaxAdjustment].
	MaxAdjustment int64
	// MaxNonce is the last nonce tried before a header is given up.
	MaxNonce uint32
	// Workers is the number of goroutines searching the nonce space.
	Workers int
	// MaxFutureDrift rejects blocks timestamped further ahead of the local clock.
	MaxFutureDrift time.Duration
	// MaxBlockTransactions caps the transactions drained into one block.
	MaxBlockTransactions int
}

// DefaultParams returns the node defaults.
func DefaultParams() Params {
	return Params{
		PowLimitBits:         0x1f00ffff,
		TargetSpacing:        10 * time.Second,
		RetargetInterval:     20,
		MaxAdjustment:        4,
		MaxNonce:             math.MaxUint32,
		Workers:              4,
		MaxFutureDrift:       2 * time.Hour,
		MaxBlockTransactions: 500,
	}
}

// PowLimit is the easiest allowed target.
func (p Params) PowLimit() *big.Int {
	return blockchain.CompactToBig(p.PowLimitBits)
}

// TargetTimespan is the expected duration of one retarget window.
func (p Params) TargetTimespan() time.Duration {
	return p.TargetSpacing * time.Duration(p.RetargetInterval)
}
