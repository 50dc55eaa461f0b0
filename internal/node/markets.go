package node

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/blackbook/internal/amm"
	"github.com/goodnatureofminers/blackbook/internal/market"
	"github.com/goodnatureofminers/blackbook/internal/model"
	"go.uber.org/zap"
)

// BetReceipt describes a queued bet.
type BetReceipt struct {
	BetID         string
	TransactionID chainhash.Hash
	Shares        float64
	PricePerShare float64
}

// Payout is one escrow release.
type Payout struct {
	BetID         string
	Account       model.Address
	Amount        model.Amount
	Reason        model.WithdrawReason
	TransactionID chainhash.Hash
}

// Settlement lists the transactions queued by a resolution or cancellation.
type Settlement struct {
	MarketID      string
	TransactionID chainhash.Hash
	Payouts       []Payout
	SponsorReturn *Payout
}

// CreateMarket validates spec and queues a CreateMarket transaction that
// moves the LMSR subsidy from the sponsor into the market escrow. Empty id,
// liquidity and sponsor are filled with a fresh uuid, the default liquidity
// and the treasury.
func (n *Node) CreateMarket(ctx context.Context, spec model.MarketSpec) (string, error) {
	started := time.Now()
	id, err := n.createMarket(spec, 0)
	n.metrics.ObserveSubmit(model.TxCreateMarket.String(), err, started)
	if err != nil {
		return "", fmt.Errorf("create market: %w", err)
	}
	n.logger.Info("market created", zap.String("market", id), zap.String("title", spec.Title))
	return id, nil
}

// createMarket queues spec. A positive window sets the close time relative
// to the node clock under the lock.
func (n *Node) createMarket(spec model.MarketSpec, window time.Duration) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.writable(); err != nil {
		return "", err
	}

	now := n.now()
	if window > 0 {
		spec.ClosesAt = now.Add(window)
	}
	if spec.ID == "" {
		spec.ID = n.newID()
	}
	if spec.Liquidity == 0 {
		spec.Liquidity = n.cfg.Market.DefaultLiquidity
	}
	if spec.Sponsor == "" {
		spec.Sponsor = n.cfg.Treasury
	}
	spec.Outcomes = append([]string(nil), spec.Outcomes...)
	if err := n.pending.engine.ValidateSpec(&spec, now); err != nil {
		return "", err
	}
	if _, err := n.pending.engine.Market(spec.ID); err == nil {
		return "", fmt.Errorf("market %s exists: %w", spec.ID, model.ErrInvalidMarketSpec)
	}

	subsidy := market.Subsidy(&spec)
	tx := &model.Transaction{
		Kind:      model.TxCreateMarket,
		Sender:    spec.Sponsor,
		Outputs:   []model.Output{{Address: model.EscrowAddress(spec.ID), Value: subsidy}},
		Payload:   model.Payload{MarketID: spec.ID, Amount: subsidy, Market: &spec},
		Timestamp: now,
	}
	if err := n.fundAndSubmit(tx); err != nil {
		return "", err
	}
	return spec.ID, nil
}

// PlaceBet buys shares of outcome for amount. The share count is solved on
// the pending q vector so that the LMSR trade cost equals amount. A market
// past its close time is closed on the spot and the bet is refused.
func (n *Node) PlaceBet(ctx context.Context, account model.Address, marketID, outcome string, amount model.Amount) (BetReceipt, error) {
	started := time.Now()
	receipt, err := n.placeBet(account, marketID, outcome, amount)
	n.metrics.ObserveSubmit(model.TxPlaceBet.String(), err, started)
	if err != nil {
		return BetReceipt{}, fmt.Errorf("place bet: %w", err)
	}
	n.logger.Debug("bet queued",
		zap.String("market", marketID),
		zap.String("account", string(account)),
		zap.Uint64("amount", uint64(amount)),
		zap.Float64("shares", receipt.Shares))
	return receipt, nil
}

func (n *Node) placeBet(account model.Address, marketID, outcome string, amount model.Amount) (BetReceipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.writable(); err != nil {
		return BetReceipt{}, err
	}

	now := n.now()
	m, err := n.pending.engine.Market(marketID)
	if err != nil {
		return BetReceipt{}, err
	}
	if m.State != model.MarketOpen {
		return BetReceipt{}, fmt.Errorf("market %s is %s: %w", m.ID, m.State, model.ErrMarketNotOpen)
	}
	if !now.Before(m.ClosesAt) {
		if err := n.submitClose(m.ID, now); err != nil {
			n.logger.Warn("close expired market failed", zap.String("market", m.ID), zap.Error(err))
		}
		return BetReceipt{}, fmt.Errorf("market %s closed at %s: %w", m.ID, m.ClosesAt, model.ErrMarketNotOpen)
	}
	idx, ok := m.Outcome(outcome)
	if !ok {
		return BetReceipt{}, fmt.Errorf("outcome %q in %s: %w", outcome, m.ID, model.ErrOutcomeNotFound)
	}
	if amount == 0 {
		return BetReceipt{}, fmt.Errorf("bet amount: %w", model.ErrInvalidAmount)
	}
	if account == "" || account == model.SystemAddress || account.IsEscrow() {
		return BetReceipt{}, fmt.Errorf("bettor %q: %w", account, model.ErrInvalidTransaction)
	}
	if bal := n.pending.ledger.BalanceOf(account); bal < amount {
		return BetReceipt{}, fmt.Errorf("%s has %s, bet %s: %w", account, bal, amount, model.ErrInsufficientBalance)
	}

	shares, err := amm.SolveShares(m.Shares(), m.Liquidity, idx, float64(amount))
	if err != nil {
		return BetReceipt{}, fmt.Errorf("solve shares: %w", err)
	}
	betID := n.newID()
	tx := &model.Transaction{
		Kind:    model.TxPlaceBet,
		Sender:  account,
		Outputs: []model.Output{{Address: m.Escrow(), Value: amount}},
		Payload: model.Payload{
			MarketID:  m.ID,
			OutcomeID: m.Outcomes[idx].ID,
			BetID:     betID,
			Amount:    amount,
			Shares:    shares,
		},
		Timestamp: now,
	}
	if err := n.fundAndSubmit(tx); err != nil {
		return BetReceipt{}, err
	}
	return BetReceipt{
		BetID:         betID,
		TransactionID: tx.ID,
		Shares:        shares,
		PricePerShare: float64(amount) / shares,
	}, nil
}

func (n *Node) submitClose(marketID string, now time.Time) error {
	tx := n.seal(&model.Transaction{
		Kind:      model.TxCloseMarket,
		Sender:    model.SystemAddress,
		Payload:   model.Payload{MarketID: marketID},
		Timestamp: now,
	})
	return n.submit(tx)
}

// CloseMarket stops trading on an open market ahead of its close time.
func (n *Node) CloseMarket(ctx context.Context, marketID string) (chainhash.Hash, error) {
	started := time.Now()
	id, err := n.closeMarket(marketID)
	n.metrics.ObserveSubmit(model.TxCloseMarket.String(), err, started)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("close market: %w", err)
	}
	n.record(ctx, "market_closed", map[string]any{"market_id": marketID, "tx_id": id.String()})
	return id, nil
}

func (n *Node) closeMarket(marketID string) (chainhash.Hash, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.writable(); err != nil {
		return chainhash.Hash{}, err
	}
	tx := n.seal(&model.Transaction{
		Kind:      model.TxCloseMarket,
		Sender:    model.SystemAddress,
		Payload:   model.Payload{MarketID: marketID},
		Timestamp: n.now(),
	})
	if err := n.submit(tx); err != nil {
		return chainhash.Hash{}, err
	}
	return tx.ID, nil
}

// CloseExpired closes every open market whose close time has passed and
// returns their ids.
func (n *Node) CloseExpired(ctx context.Context) ([]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.writable(); err != nil {
		return nil, err
	}

	now := n.now()
	var closed []string
	for _, id := range n.pending.engine.Expired(now) {
		started := time.Now()
		err := n.submitClose(id, now)
		n.metrics.ObserveSubmit(model.TxCloseMarket.String(), err, started)
		if err != nil {
			return closed, fmt.Errorf("close expired market %s: %w", id, err)
		}
		closed = append(closed, id)
	}
	return closed, nil
}

// ResolveMarket settles a closed market on outcome. It queues the
// resolution, one payout per winning bet worth floor(shares), and the return
// of the leftover escrow to the sponsor.
func (n *Node) ResolveMarket(ctx context.Context, marketID, outcome string) (Settlement, error) {
	started := time.Now()
	s, err := n.resolveMarket(marketID, outcome)
	n.metrics.ObserveSubmit(model.TxResolveMarket.String(), err, started)
	if err != nil {
		return Settlement{}, fmt.Errorf("resolve market: %w", err)
	}
	n.logger.Info("market resolved",
		zap.String("market", marketID),
		zap.String("outcome", outcome),
		zap.Int("payouts", len(s.Payouts)))
	n.record(ctx, "market_resolved", settlementDetail(s, outcome))
	return s, nil
}

func (n *Node) resolveMarket(marketID, outcome string) (Settlement, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.writable(); err != nil {
		return Settlement{}, err
	}

	m, err := n.pending.engine.Market(marketID)
	if err != nil {
		return Settlement{}, err
	}
	if m.State != model.MarketClosed {
		return Settlement{}, fmt.Errorf("resolve %s market %s: %w", m.State, m.ID, model.ErrInvalidTransition)
	}
	idx, ok := m.Outcome(outcome)
	if !ok {
		return Settlement{}, fmt.Errorf("outcome %q in %s: %w", outcome, m.ID, model.ErrOutcomeNotFound)
	}
	return n.settle(&model.Transaction{
		Kind:      model.TxResolveMarket,
		Sender:    model.SystemAddress,
		Payload:   model.Payload{MarketID: m.ID, OutcomeID: m.Outcomes[idx].ID},
		Timestamp: n.now(),
	})
}

// CancelMarket voids an open or closed market and refunds every stake. The
// subsidy returns to the sponsor.
func (n *Node) CancelMarket(ctx context.Context, marketID string) (Settlement, error) {
	started := time.Now()
	s, err := n.cancelMarket(marketID)
	n.metrics.ObserveSubmit(model.TxCancelMarket.String(), err, started)
	if err != nil {
		return Settlement{}, fmt.Errorf("cancel market: %w", err)
	}
	n.logger.Info("market cancelled", zap.String("market", marketID), zap.Int("refunds", len(s.Payouts)))
	n.record(ctx, "market_cancelled", settlementDetail(s, ""))
	return s, nil
}

func (n *Node) cancelMarket(marketID string) (Settlement, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.writable(); err != nil {
		return Settlement{}, err
	}
	return n.settle(&model.Transaction{
		Kind:      model.TxCancelMarket,
		Sender:    model.SystemAddress,
		Payload:   model.Payload{MarketID: marketID},
		Timestamp: n.now(),
	})
}

// settle applies the terminal transition and the escrow withdrawals it
// implies to a copy of the pending view, then queues them all or none.
func (n *Node) settle(transition *model.Transaction) (Settlement, error) {
	work := n.pending.clone()
	n.seal(transition)
	if err := work.apply(transition); err != nil {
		return Settlement{}, err
	}
	marketID := transition.Payload.MarketID
	txs := []*model.Transaction{transition}
	res := Settlement{MarketID: marketID, TransactionID: transition.ID}

	owed, err := work.engine.Unsettled(marketID)
	if err != nil {
		return Settlement{}, err
	}
	m, err := work.engine.Market(marketID)
	if err != nil {
		return Settlement{}, err
	}
	escrow := m.Escrow()
	var total model.Amount
	for _, s := range owed {
		total += s.Amount
	}
	if held := work.ledger.BalanceOf(escrow); total > held {
		return Settlement{}, fmt.Errorf("escrow %s holds %s, owes %s: %w", escrow, held, total, model.ErrInvariantViolation)
	}

	withdraw := func(to model.Address, amount model.Amount, betID string, reason model.WithdrawReason) (*model.Transaction, error) {
		tx := &model.Transaction{
			Kind:      model.TxWithdraw,
			Sender:    escrow,
			Outputs:   []model.Output{{Address: to, Value: amount}},
			Payload:   model.Payload{MarketID: marketID, BetID: betID, Amount: amount, Reason: reason},
			Timestamp: transition.Timestamp,
		}
		if err := work.ledger.Fund(tx); err != nil {
			return nil, err
		}
		n.seal(tx)
		if err := work.apply(tx); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
		return tx, nil
	}

	for _, s := range owed {
		tx, err := withdraw(s.Bet.Account, s.Amount, s.Bet.ID, s.Reason)
		if err != nil {
			return Settlement{}, fmt.Errorf("settle bet %s: %w", s.Bet.ID, err)
		}
		res.Payouts = append(res.Payouts, Payout{
			BetID:         s.Bet.ID,
			Account:       s.Bet.Account,
			Amount:        s.Amount,
			Reason:        s.Reason,
			TransactionID: tx.ID,
		})
	}
	if rest := work.ledger.BalanceOf(escrow); rest > 0 {
		tx, err := withdraw(m.Sponsor, rest, "", model.WithdrawSponsorReturn)
		if err != nil {
			return Settlement{}, fmt.Errorf("return escrow to sponsor: %w", err)
		}
		res.SponsorReturn = &Payout{
			Account:       m.Sponsor,
			Amount:        rest,
			Reason:        model.WithdrawSponsorReturn,
			TransactionID: tx.ID,
		}
	}

	if err := n.enqueue(work, txs); err != nil {
		return Settlement{}, err
	}
	return res, nil
}

func settlementDetail(s Settlement, outcome string) map[string]any {
	var paid model.Amount
	for _, p := range s.Payouts {
		paid += p.Amount
	}
	detail := map[string]any{
		"market_id": s.MarketID,
		"tx_id":     s.TransactionID.String(),
		"payouts":   len(s.Payouts),
		"paid":      uint64(paid),
	}
	if outcome != "" {
		detail["outcome"] = outcome
	}
	if s.SponsorReturn != nil {
		detail["sponsor_return"] = uint64(s.SponsorReturn.Amount)
	}
	return detail
}
