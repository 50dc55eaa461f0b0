package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/blackbook/internal/chain"
	"github.com/goodnatureofminers/blackbook/internal/clock"
	"github.com/goodnatureofminers/blackbook/internal/model"
	"go.uber.org/zap"
)

// BlockTemplate returns an unsolved block extending the tip with up to limit
// pending transactions in arrival order. A non-positive limit uses the chain
// default. The mempool is left untouched.
func (n *Node) BlockTemplate(ctx context.Context, limit int) (*model.Block, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.haltErr != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrHalted, n.haltErr)
	}
	if limit <= 0 {
		limit = n.cfg.Chain.MaxBlockTransactions
	}

	tip := n.chain.Tip()
	ts := clock.BlockTime(n.now(), tip.Header.Timestamp)
	block := &model.Block{
		Height:       n.chain.NextHeight(),
		Transactions: n.mempool.Snapshot(limit),
	}
	block.Header = wire.BlockHeader{
		Version:    blockVersion,
		PrevBlock:  tip.Hash(),
		MerkleRoot: chain.MerkleRoot(block.TxIDs()),
		Timestamp:  ts,
		Bits:       n.chain.NextBits(),
	}
	return block, nil
}

// SubmitBlock validates block against the tip and applies its transactions
// in order to a copy of the confirmed state. Any failure rejects the whole
// block. An individually invalid transaction is dropped from the mempool with
// its error; the rest stay queued.
func (n *Node) SubmitBlock(ctx context.Context, block *model.Block) error {
	err := n.submitBlock(block)
	if err != nil {
		n.metrics.ObserveBlock(err, 0, 0)
		n.logger.Warn("block rejected", zap.Error(err))
		detail := map[string]any{"error": err.Error()}
		if block != nil {
			detail["height"] = block.Height
			detail["hash"] = block.Hash().String()
		}
		event := "block_rejected"
		if errors.Is(err, model.ErrInvariantViolation) {
			event = "invariant_violation"
		}
		n.record(ctx, event, detail)
		return fmt.Errorf("submit block: %w", err)
	}

	n.metrics.ObserveBlock(nil, len(block.Transactions), block.Height)
	n.logger.Info("block committed",
		zap.Uint64("height", block.Height),
		zap.Stringer("hash", block.Hash()),
		zap.Int("transactions", len(block.Transactions)))
	n.archiveBlock(ctx, block)
	return nil
}

func (n *Node) submitBlock(block *model.Block) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.writable(); err != nil {
		return err
	}

	now := n.now()
	if err := n.chain.Validate(block, now); err != nil {
		return err
	}
	next := n.confirmed.clone()
	for _, tx := range block.Transactions {
		if err := next.apply(tx); err != nil {
			txErr := &model.TxError{TxID: tx.ID, Err: err}
			if n.mempool.Drop(tx.ID, txErr) {
				n.rebuildPending()
			}
			return fmt.Errorf("block %d: %w", block.Height, txErr)
		}
	}
	if err := n.checkInvariants(next); err != nil {
		n.halt(err)
		return err
	}
	if err := n.chain.Append(block, now); err != nil {
		return err
	}

	n.confirmed = next
	n.mempool.Confirm(block.Height, block.TxIDs())
	n.rebuildPending()
	return nil
}

// AwaitConfirmation blocks until the transaction is mined and returns its
// block height, or returns the error it was dropped with.
func (n *Node) AwaitConfirmation(ctx context.Context, id chainhash.Hash) (uint64, error) {
	if h, ok := n.txHeight(id); ok {
		return h, nil
	}
	h, err := n.mempool.Wait(ctx, id)
	if errors.Is(err, model.ErrTransactionNotFound) {
		if h, ok := n.txHeight(id); ok {
			return h, nil
		}
	}
	if err != nil {
		return 0, fmt.Errorf("await confirmation: %w", err)
	}
	return h, nil
}

func (n *Node) txHeight(id chainhash.Hash) (uint64, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.chain.TxHeight(id)
}

// ChainInfo describes the chain tip.
type ChainInfo struct {
	Height      uint64
	TipHash     chainhash.Hash
	Bits        uint32
	NextBits    uint32
	Pending     int
	TotalSupply model.Amount
}

// ChainInfo reports the tip and mempool size.
func (n *Node) ChainInfo() ChainInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()

	tip := n.chain.Tip()
	return ChainInfo{
		Height:      tip.Height,
		TipHash:     tip.Hash(),
		Bits:        tip.Header.Bits,
		NextBits:    n.chain.NextBits(),
		Pending:     n.mempool.Len(),
		TotalSupply: n.confirmed.ledger.Supply().Circulating,
	}
}

// Block returns the block at height.
func (n *Node) Block(height uint64) (*model.Block, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	b, ok := n.chain.Block(height)
	if !ok {
		return nil, fmt.Errorf("height %d: %w", height, model.ErrBlockNotFound)
	}
	return b, nil
}
