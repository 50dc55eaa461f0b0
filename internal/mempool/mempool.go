// Package mempool holds submitted transactions in arrival order until a block
// confirms or rejects them.
package mempool

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/blackbook/internal/model"
)

type entry struct {
	tx     *model.Transaction
	done   chan struct{}
	height uint64
	err    error
}

// Pool is a FIFO of pending transactions. Every added transaction ends either
// confirmed at a height or dropped with an error, and waiters are released
// in both cases.
type Pool struct {
	mu      sync.Mutex
	limit   int
	order   []chainhash.Hash
	entries map[chainhash.Hash]*entry
	signal  chan struct{}
}

// New creates a pool holding at most limit transactions. Zero means unbounded.
func New(limit int) *Pool {
	return &Pool{
		limit:   limit,
		entries: make(map[chainhash.Hash]*entry),
		signal:  make(chan struct{}, 1),
	}
}

// Add appends tx to the queue.
func (p *Pool) Add(tx *model.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[tx.ID]; ok {
		return fmt.Errorf("transaction %s already pending: %w", tx.ID, model.ErrDoubleSpend)
	}
	if p.limit > 0 && len(p.order) >= p.limit {
		return fmt.Errorf("%d pending: %w", len(p.order), model.ErrMempoolFull)
	}
	p.entries[tx.ID] = &entry{tx: tx, done: make(chan struct{})}
	p.order = append(p.order, tx.ID)

	select {
	case p.signal <- struct{}{}:
	default:
	}
	return nil
}

// Signal fires after Add. It is coalesced: many adds may produce one signal.
func (p *Pool) Signal() <-chan struct{} {
	return p.signal
}

// Len returns the number of pending transactions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Snapshot returns up to limit transactions from the head of the queue
// without removing them. A non-positive limit returns all of them.
func (p *Pool) Snapshot(limit int) []*model.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.order)
	if limit > 0 && limit < n {
		n = limit
	}
	txs := make([]*model.Transaction, 0, n)
	for _, id := range p.order[:n] {
		txs = append(txs, p.entries[id].tx)
	}
	return txs
}

// Transactions returns every pending transaction in arrival order.
func (p *Pool) Transactions() []*model.Transaction {
	return p.Snapshot(0)
}

// Confirm removes ids and releases their waiters with height.
func (p *Pool) Confirm(height uint64, ids []chainhash.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range ids {
		if e, ok := p.entries[id]; ok {
			e.height = height
			p.remove(id, e)
		}
	}
}

// Drop removes id and releases its waiters with err.
func (p *Pool) Drop(id chainhash.Hash, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[id]
	if !ok {
		return false
	}
	e.err = err
	p.remove(id, e)
	return true
}

func (p *Pool) remove(id chainhash.Hash, e *entry) {
	delete(p.entries, id)
	for i, o := range p.order {
		if o == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	close(e.done)
}

// Wait blocks until id is confirmed or dropped and returns the confirming
// height or the drop error. Unknown ids fail with ErrTransactionNotFound.
func (p *Pool) Wait(ctx context.Context, id chainhash.Hash) (uint64, error) {
	p.mu.Lock()
	e, ok := p.entries[id]
	p.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("transaction %s: %w", id, model.ErrTransactionNotFound)
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-e.done:
		return e.height, e.err
	}
}
