// Package node is the single-writer core of the ledger. It validates every
// intent against the pending view, queues the resulting transaction, and
// commits mined blocks atomically to the UTXO set and market engine.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/blackbook/internal/audit"
	"github.com/goodnatureofminers/blackbook/internal/chain"
	"github.com/goodnatureofminers/blackbook/internal/mempool"
	"github.com/goodnatureofminers/blackbook/internal/model"
	"github.com/goodnatureofminers/blackbook/internal/pricefeed"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dependencies are the collaborators of a node. Metrics is required; the
// others fall back to in-process implementations.
type Dependencies struct {
	Metrics Metrics
	Prices  PriceCache
	Audit   AuditLog
	Archive BlockSink
}

// Node owns the chain, the mempool, and the confirmed and pending states.
type Node struct {
	logger  *zap.Logger
	cfg     Config
	metrics Metrics
	prices  PriceCache
	audit   AuditLog
	archive BlockSink
	solver  *chain.Solver

	now             func() time.Time
	newID           func() string
	checkInvariants func(*state) error

	mu        sync.RWMutex
	chain     *chain.Chain
	mempool   *mempool.Pool
	confirmed *state
	pending   *state
	nonce     uint64
	haltErr   error
}

// New builds a node and mines its genesis block.
func New(ctx context.Context, logger *zap.Logger, cfg Config, deps Dependencies) (*Node, error) {
	if deps.Metrics == nil {
		return nil, errors.New("node metrics is required")
	}
	if len(cfg.Genesis) == 0 {
		return nil, fmt.Errorf("empty genesis allocation: %w", model.ErrInvalidTransaction)
	}
	if cfg.Treasury == "" {
		cfg.Treasury = treasuryAddress
	}
	logger = logger.Named("node")
	if deps.Prices == nil {
		deps.Prices = pricefeed.NewMemory()
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewZap(logger)
	}

	n := &Node{
		logger:          logger,
		cfg:             cfg,
		metrics:         deps.Metrics,
		prices:          deps.Prices,
		audit:           deps.Audit,
		archive:         deps.Archive,
		solver:          chain.NewSolver(cfg.Chain),
		now:             time.Now,
		newID:           uuid.NewString,
		checkInvariants: checkConservation,
		chain:           chain.New(cfg.Chain),
		mempool:         mempool.New(cfg.MempoolLimit),
		confirmed:       newState(cfg.Market),
	}
	genesis, err := n.mineGenesis(ctx)
	if err != nil {
		return nil, fmt.Errorf("mine genesis: %w", err)
	}
	n.pending = n.confirmed.clone()
	n.archiveBlock(ctx, genesis)

	supply := n.confirmed.ledger.Supply()
	n.logger.Info("genesis committed",
		zap.Stringer("hash", genesis.Hash()),
		zap.Stringer("supply", supply.Circulating),
		zap.Int("allocations", len(cfg.Genesis)))
	return n, nil
}

func (n *Node) mineGenesis(ctx context.Context) (*model.Block, error) {
	ts := n.cfg.GenesisTime
	if ts.IsZero() {
		ts = n.now()
	}
	ts = time.Unix(ts.Unix(), 0)

	tx := (&model.Transaction{
		Kind:      model.TxGenesis,
		Sender:    model.SystemAddress,
		Outputs:   append([]model.Output(nil), n.cfg.Genesis...),
		Timestamp: ts,
		Nonce:     n.nextNonce(),
	}).Seal()
	block := &model.Block{Height: 0, Transactions: []*model.Transaction{tx}}
	block.Header = wire.BlockHeader{
		Version:    blockVersion,
		MerkleRoot: chain.MerkleRoot(block.TxIDs()),
		Timestamp:  ts,
		Bits:       n.chain.NextBits(),
	}
	header, err := n.solver.Solve(ctx, block.Header)
	if err != nil {
		return nil, err
	}
	block.Header = header

	if err := n.confirmed.apply(tx); err != nil {
		return nil, err
	}
	if err := n.chain.Append(block, ts); err != nil {
		return nil, err
	}
	if err := n.checkInvariants(n.confirmed); err != nil {
		return nil, err
	}
	return block, nil
}

func (n *Node) nextNonce() uint64 {
	n.nonce++
	return n.nonce
}

// writable must be called with the write lock held.
func (n *Node) writable() error {
	if n.haltErr != nil {
		return fmt.Errorf("%w: %v", model.ErrHalted, n.haltErr)
	}
	return nil
}

// seal stamps the next nonce on tx and fixes its id.
func (n *Node) seal(tx *model.Transaction) *model.Transaction {
	tx.Nonce = n.nextNonce()
	return tx.Seal()
}

// submit applies tx to the pending view and queues it.
func (n *Node) submit(tx *model.Transaction) error {
	if err := n.pending.apply(tx); err != nil {
		return err
	}
	if err := n.mempool.Add(tx); err != nil {
		n.rebuildPending()
		return err
	}
	n.metrics.ObserveMempool(n.mempool.Len(), 0)
	return nil
}

// fundAndSubmit selects inputs of the sender for tx, seals it and submits it.
func (n *Node) fundAndSubmit(tx *model.Transaction) error {
	if err := n.pending.ledger.Fund(tx); err != nil {
		return err
	}
	return n.submit(n.seal(tx))
}

// enqueue queues txs already applied to work and makes work the pending view.
func (n *Node) enqueue(work *state, txs []*model.Transaction) error {
	for i, tx := range txs {
		if err := n.mempool.Add(tx); err != nil {
			for _, added := range txs[:i] {
				n.mempool.Drop(added.ID, err)
			}
			return err
		}
	}
	n.pending = work
	n.metrics.ObserveMempool(n.mempool.Len(), 0)
	return nil
}

// rebuildPending replays the mempool on top of the confirmed state and drops
// every transaction that no longer applies.
func (n *Node) rebuildPending() int {
	p := n.confirmed.clone()
	dropped := 0
	for _, tx := range n.mempool.Transactions() {
		if err := p.apply(tx); err != nil {
			n.mempool.Drop(tx.ID, &model.TxError{TxID: tx.ID, Err: err})
			n.logger.Warn("pending transaction dropped",
				zap.Stringer("tx", tx.ID),
				zap.Stringer("kind", tx.Kind),
				zap.Error(err))
			dropped++
		}
	}
	n.pending = p
	n.metrics.ObserveMempool(n.mempool.Len(), dropped)
	return dropped
}

// halt latches the node into read-only mode.
func (n *Node) halt(err error) {
	if n.haltErr == nil {
		n.haltErr = err
	}
	n.logger.Error("invariant violated, writes halted", zap.Error(err))
}

func (n *Node) record(ctx context.Context, event string, detail map[string]any) {
	if err := n.audit.Log(ctx, event, detail); err != nil {
		n.logger.Warn("audit log failed", zap.String("event", event), zap.Error(err))
	}
}

func (n *Node) archiveBlock(ctx context.Context, b *model.Block) {
	if n.archive == nil {
		return
	}
	if err := n.archive.Archive(ctx, b); err != nil {
		n.logger.Warn("archive block failed", zap.Uint64("height", b.Height), zap.Error(err))
	}
}

// Pending fires after new transactions are queued.
func (n *Node) Pending() <-chan struct{} {
	return n.mempool.Signal()
}

// Halted returns the error that stopped writes, if any.
func (n *Node) Halted() error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.haltErr
}
