package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/blackbook/internal/model"
	"github.com/goodnatureofminers/blackbook/pkg/workerpool"
)

const ctxCheckEvery = 1 << 12

// CheckProofOfWork verifies the header hash is at or below its own target and
// that the target does not exceed powLimit.
func CheckProofOfWork(h *wire.BlockHeader, powLimit *big.Int) error {
	target := blockchain.CompactToBig(h.Bits)
	if target.Sign() <= 0 {
		return fmt.Errorf("target %08x not positive: %w", h.Bits, model.ErrInvalidPoW)
	}
	if target.Cmp(powLimit) > 0 {
		return fmt.Errorf("target %08x above limit: %w", h.Bits, model.ErrInvalidPoW)
	}
	hash := h.BlockHash()
	if blockchain.HashToBig(&hash).Cmp(target) > 0 {
		return fmt.Errorf("hash %s above target %08x: %w", hash, h.Bits, model.ErrInvalidPoW)
	}
	return nil
}

type nonceRange struct {
	from, to uint64
}

// Solver searches nonces in parallel.
type Solver struct {
	MaxNonce uint32
	Workers  int
}

// NewSolver builds a solver from chain params.
func NewSolver(p Params) *Solver {
	return &Solver{MaxNonce: p.MaxNonce, Workers: p.Workers}
}

// Solve returns a copy of header with a nonce in [0, MaxNonce] whose hash
// meets the header bits, or ErrNonceExhausted.
func (s *Solver) Solve(ctx context.Context, header wire.BlockHeader) (wire.BlockHeader, error) {
	target := blockchain.CompactToBig(header.Bits)
	workers := s.Workers
	if workers < 1 {
		workers = 1
	}

	total := uint64(s.MaxNonce) + 1
	chunk := total / uint64(workers)
	if chunk == 0 {
		chunk = 1
	}
	var ranges []nonceRange
	for from := uint64(0); from < total; from += chunk {
		to := from + chunk
		if to > total || uint64(len(ranges)) == uint64(workers)-1 {
			to = total
		}
		ranges = append(ranges, nonceRange{from: from, to: to})
		if to == total {
			break
		}
	}

	var (
		mu     sync.Mutex
		solved *wire.BlockHeader
	)
	err := workerpool.Process(ctx, workers, ranges, func(ctx context.Context, r nonceRange) error {
		h := header
		for n := r.from; n < r.to; n++ {
			if (n-r.from)%ctxCheckEvery == 0 && ctx.Err() != nil {
				return nil
			}
			h.Nonce = uint32(n)
			hash := h.BlockHash()
			if blockchain.HashToBig(&hash).Cmp(target) <= 0 {
				mu.Lock()
				if solved == nil {
					found := h
					solved = &found
				}
				mu.Unlock()
				return workerpool.ErrStop
			}
		}
		return nil
	})

	mu.Lock()
	defer mu.Unlock()
	if solved != nil {
		return *solved, nil
	}
	if err != nil {
		return header, err
	}
	return header, fmt.Errorf("nonces 0..%d: %w", s.MaxNonce, model.ErrNonceExhausted)
}
