package node

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/blackbook/internal/model"
	"go.uber.org/zap"
)

// AdminCredit mints amount to address through an AdminCredit transaction and
// returns the pending balance of address.
func (n *Node) AdminCredit(ctx context.Context, address model.Address, amount model.Amount) (model.Amount, error) {
	started := time.Now()
	tx, balance, err := n.adminCredit(address, amount)
	n.metrics.ObserveSubmit(model.TxAdminCredit.String(), err, started)
	if err != nil {
		return 0, fmt.Errorf("admin credit: %w", err)
	}
	n.logger.Info("admin credit queued",
		zap.String("address", string(address)),
		zap.Stringer("amount", amount),
		zap.Stringer("tx", tx.ID))
	n.record(ctx, "admin_credit", map[string]any{
		"address": string(address),
		"amount":  uint64(amount),
		"tx_id":   tx.ID.String(),
	})
	return balance, nil
}

func (n *Node) adminCredit(address model.Address, amount model.Amount) (*model.Transaction, model.Amount, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.writable(); err != nil {
		return nil, 0, err
	}
	if address == "" || address == model.SystemAddress {
		return nil, 0, fmt.Errorf("credit %q: %w", address, model.ErrInvalidTransaction)
	}

	tx, err := n.pending.ledger.CreditAdmin(address, amount, n.now(), n.nextNonce())
	if err != nil {
		return nil, 0, err
	}
	if err := n.mempool.Add(tx); err != nil {
		n.rebuildPending()
		return nil, 0, err
	}
	n.metrics.ObserveMempool(n.mempool.Len(), 0)
	return tx, n.pending.ledger.BalanceOf(address), nil
}

// Transfer moves amount from one account to another.
func (n *Node) Transfer(ctx context.Context, from, to model.Address, amount model.Amount) (chainhash.Hash, error) {
	started := time.Now()
	id, err := n.transfer(from, to, amount)
	n.metrics.ObserveSubmit(model.TxTransfer.String(), err, started)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("transfer: %w", err)
	}
	return id, nil
}

func (n *Node) transfer(from, to model.Address, amount model.Amount) (chainhash.Hash, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.writable(); err != nil {
		return chainhash.Hash{}, err
	}
	if amount == 0 {
		return chainhash.Hash{}, fmt.Errorf("transfer amount: %w", model.ErrInvalidAmount)
	}
	if to == "" || to == model.SystemAddress || from == model.SystemAddress {
		return chainhash.Hash{}, fmt.Errorf("transfer %q to %q: %w", from, to, model.ErrInvalidTransaction)
	}

	tx := &model.Transaction{
		Kind:      model.TxTransfer,
		Sender:    from,
		Outputs:   []model.Output{{Address: to, Value: amount}},
		Timestamp: n.now(),
	}
	if err := n.fundAndSubmit(tx); err != nil {
		return chainhash.Hash{}, err
	}
	return tx.ID, nil
}

// Health summarises the confirmed state.
type Health struct {
	Status       string
	AccountCount int
	TotalSupply  model.Amount
}

// Health reports liveness, account count and total supply.
func (n *Node) Health() Health {
	n.mu.RLock()
	defer n.mu.RUnlock()

	status := "ok"
	if n.haltErr != nil {
		status = "halted"
	}
	return Health{
		Status:       status,
		AccountCount: len(n.confirmed.ledger.Accounts()),
		TotalSupply:  n.confirmed.ledger.Supply().Circulating,
	}
}

// ListAccounts returns every address holding unspent outputs.
func (n *Node) ListAccounts() []model.Account {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.confirmed.ledger.Accounts()
}

// BalanceOf returns the confirmed balance, zero for unknown addresses.
func (n *Node) BalanceOf(address model.Address) model.Amount {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.confirmed.ledger.BalanceOf(address)
}

// PendingBalanceOf returns the balance once every queued transaction is mined.
func (n *Node) PendingBalanceOf(address model.Address) model.Amount {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.pending.ledger.BalanceOf(address)
}

// ListMarkets returns the confirmed markets in creation order.
func (n *Node) ListMarkets() []model.Market {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.confirmed.engine.Markets()
}

// Market returns one confirmed market.
func (n *Node) Market(id string) (model.Market, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.confirmed.engine.Market(id)
}

// ListBets returns confirmed bets, all of them when account is empty.
func (n *Node) ListBets(account model.Address) []model.Bet {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.confirmed.engine.Bets(account)
}

// ListMarketBets returns the confirmed bets of one market in placement order.
func (n *Node) ListMarketBets(marketID string) ([]model.Bet, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if _, err := n.confirmed.engine.Market(marketID); err != nil {
		return nil, err
	}
	return n.confirmed.engine.MarketBets(marketID), nil
}

// ListTransactions returns confirmed transactions in chain order. A non-empty
// account keeps only transactions it sent or received.
func (n *Node) ListTransactions(account model.Address) []model.TxSummary {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var res []model.TxSummary
	for _, b := range n.chain.Blocks() {
		for _, tx := range b.Transactions {
			if account != "" && !involves(tx, account) {
				continue
			}
			res = append(res, model.Summarize(tx, b.Height))
		}
	}
	return res
}

func involves(tx *model.Transaction, account model.Address) bool {
	if tx.Sender == account {
		return true
	}
	for _, o := range tx.Outputs {
		if o.Address == account {
			return true
		}
	}
	return false
}
