// Package chain stores the block sequence and implements header validation,
// proof of work and difficulty retargeting.
package chain

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/blackbook/internal/model"
)

// Chain is an append-only block list. It is not safe for concurrent use.
type Chain struct {
	params  Params
	blocks  []*model.Block
	txIndex map[chainhash.Hash]uint64
}

// New returns an empty chain.
func New(params Params) *Chain {
	return &Chain{
		params:  params,
		txIndex: make(map[chainhash.Hash]uint64),
	}
}

// Params returns the chain parameters.
func (c *Chain) Params() Params {
	return c.params
}

// Len is the number of blocks, including genesis.
func (c *Chain) Len() int {
	return len(c.blocks)
}

// Tip returns the last block or nil for an empty chain.
func (c *Chain) Tip() *model.Block {
	if len(c.blocks) == 0 {
		return nil
	}
	return c.blocks[len(c.blocks)-1]
}

// Block returns the block at height.
func (c *Chain) Block(height uint64) (*model.Block, bool) {
	if height >= uint64(len(c.blocks)) {
		return nil, false
	}
	return c.blocks[height], true
}

// Blocks returns the blocks in height order.
func (c *Chain) Blocks() []*model.Block {
	return append([]*model.Block(nil), c.blocks...)
}

// TxHeight returns the height of the block containing a transaction.
func (c *Chain) TxHeight(id chainhash.Hash) (uint64, bool) {
	h, ok := c.txIndex[id]
	return h, ok
}

// NextHeight is the height of the next block.
func (c *Chain) NextHeight() uint64 {
	return uint64(len(c.blocks))
}

// NextBits returns the compact target required for the next block.
func (c *Chain) NextBits() uint32 {
	tip := c.Tip()
	if tip == nil {
		return c.params.PowLimitBits
	}
	next := tip.Height + 1
	interval := c.params.RetargetInterval
	if interval < 2 || next%interval != 0 {
		return tip.Header.Bits
	}
	first := c.blocks[next-interval]
	actual := tip.Header.Timestamp.Sub(first.Header.Timestamp)
	return CalcNextBits(c.params, tip.Header.Bits, actual)
}

// Validate checks that b extends the tip: linkage, height, bits, timestamp,
// proof of work and merkle root. Transaction validity is checked by the caller.
func (c *Chain) Validate(b *model.Block, now time.Time) error {
	if b == nil {
		return fmt.Errorf("nil block: %w", model.ErrInvalidBlock)
	}
	var prev chainhash.Hash
	if tip := c.Tip(); tip != nil {
		prev = tip.Hash()
		if b.Header.Timestamp.Before(tip.Header.Timestamp) {
			return fmt.Errorf("timestamp %s before tip %s: %w", b.Header.Timestamp, tip.Header.Timestamp, model.ErrInvalidBlock)
		}
	}
	if b.Header.PrevBlock != prev {
		return fmt.Errorf("prev %s, tip %s: %w", b.Header.PrevBlock, prev, model.ErrChainLinkMismatch)
	}
	if b.Height != c.NextHeight() {
		return fmt.Errorf("height %d, want %d: %w", b.Height, c.NextHeight(), model.ErrChainLinkMismatch)
	}
	if want := c.NextBits(); b.Header.Bits != want {
		return fmt.Errorf("bits %08x, want %08x: %w", b.Header.Bits, want, model.ErrInvalidPoW)
	}
	if c.params.MaxFutureDrift > 0 && b.Header.Timestamp.After(now.Add(c.params.MaxFutureDrift)) {
		return fmt.Errorf("timestamp %s too far ahead: %w", b.Header.Timestamp, model.ErrInvalidBlock)
	}
	if err := CheckProofOfWork(&b.Header, c.params.PowLimit()); err != nil {
		return err
	}
	for i, tx := range b.Transactions {
		if tx.ID != tx.Hash() {
			return &model.TxError{TxID: tx.ID, Err: fmt.Errorf("transaction %d id mismatch: %w", i, model.ErrMerkleMismatch)}
		}
	}
	if root := MerkleRoot(b.TxIDs()); root != b.Header.MerkleRoot {
		return fmt.Errorf("merkle %s, header %s: %w", root, b.Header.MerkleRoot, model.ErrMerkleMismatch)
	}
	return nil
}

// Append adds a block validated against the current tip.
func (c *Chain) Append(b *model.Block, now time.Time) error {
	if err := c.Validate(b, now); err != nil {
		return err
	}
	c.blocks = append(c.blocks, b)
	for _, tx := range b.Transactions {
		c.txIndex[tx.ID] = b.Height
	}
	return nil
}
