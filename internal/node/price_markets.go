package node

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goodnatureofminers/blackbook/internal/model"
	"go.uber.org/zap"
)

// PriceMarketSpec asks for a Higher/Lower market on the pushed price of Asset.
type PriceMarketSpec struct {
	ID        string
	Asset     string
	Duration  time.Duration
	Liquidity float64
	Sponsor   model.Address
}

// CreatePriceMarket opens a market on whether the price of asset ends above
// or below its last pushed price. A zero duration uses the shortest allowed
// trading window.
func (n *Node) CreatePriceMarket(ctx context.Context, req PriceMarketSpec) (string, error) {
	started := time.Now()
	id, err := n.createPriceMarket(ctx, req)
	n.metrics.ObserveSubmit(model.TxCreateMarket.String(), err, started)
	if err != nil {
		return "", fmt.Errorf("create price market: %w", err)
	}
	n.logger.Info("price market created", zap.String("market", id), zap.String("asset", req.Asset))
	return id, nil
}

func (n *Node) createPriceMarket(ctx context.Context, req PriceMarketSpec) (string, error) {
	asset := strings.TrimSpace(req.Asset)
	if asset == "" {
		return "", fmt.Errorf("empty asset: %w", model.ErrInvalidMarketSpec)
	}
	quote, err := n.Price(ctx, asset)
	if err != nil {
		return "", err
	}
	window := req.Duration
	if window == 0 {
		window = n.cfg.Market.MinDuration
	}
	entry := strconv.FormatFloat(quote.Price, 'f', -1, 64)
	return n.createMarket(model.MarketSpec{
		ID:               req.ID,
		Title:            fmt.Sprintf("Will %s end above %s?", asset, entry),
		Description:      fmt.Sprintf("Higher if the %s price pushed after close exceeds %s, Lower if it is below. An unchanged price refunds every bet.", asset, entry),
		Category:         "price",
		Outcomes:         []string{model.OutcomeHigher, model.OutcomeLower},
		Liquidity:        req.Liquidity,
		ResolutionSource: "price:" + asset,
		Sponsor:          req.Sponsor,
		PriceAsset:       asset,
		EntryPrice:       quote.Price,
	}, window)
}

// SettlePriceMarket settles a price market once its trading window is over.
// The last pushed price must be stamped at or after the close time. Above the
// entry price the market resolves Higher, below it Lower, and an unchanged
// price cancels the market and refunds every bet.
func (n *Node) SettlePriceMarket(ctx context.Context, marketID string) (Settlement, error) {
	started := time.Now()
	s, outcome, err := n.settlePriceMarket(ctx, marketID)
	kind := model.TxResolveMarket
	if outcome == "" {
		kind = model.TxCancelMarket
	}
	n.metrics.ObserveSubmit(kind.String(), err, started)
	if err != nil {
		return Settlement{}, fmt.Errorf("settle price market: %w", err)
	}
	n.logger.Info("price market settled",
		zap.String("market", marketID),
		zap.String("outcome", outcome),
		zap.Int("payouts", len(s.Payouts)))
	event := "market_resolved"
	if outcome == "" {
		event = "market_cancelled"
	}
	n.record(ctx, event, settlementDetail(s, outcome))
	return s, nil
}

func (n *Node) settlePriceMarket(ctx context.Context, marketID string) (Settlement, string, error) {
	n.mu.RLock()
	m, err := n.pending.engine.Market(marketID)
	n.mu.RUnlock()
	if err != nil {
		return Settlement{}, "", err
	}
	if !m.IsPriceMarket() {
		return Settlement{}, "", fmt.Errorf("market %s has no price asset: %w", m.ID, model.ErrInvalidMarketSpec)
	}
	quote, err := n.Price(ctx, m.PriceAsset)
	if err != nil {
		return Settlement{}, "", err
	}
	if quote.Timestamp.Before(m.ClosesAt) {
		return Settlement{}, "", fmt.Errorf("%s quote at %s, close at %s: %w",
			m.PriceAsset, quote.Timestamp.UTC().Format(time.RFC3339), m.ClosesAt.UTC().Format(time.RFC3339), model.ErrStalePrice)
	}

	var outcome string
	switch {
	case quote.Price > m.EntryPrice:
		outcome = model.OutcomeID(model.OutcomeHigher)
	case quote.Price < m.EntryPrice:
		outcome = model.OutcomeID(model.OutcomeLower)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.writable(); err != nil {
		return Settlement{}, outcome, err
	}
	m, err = n.pending.engine.Market(marketID)
	if err != nil {
		return Settlement{}, outcome, err
	}
	now := n.now()
	switch m.State {
	case model.MarketOpen:
		if now.Before(m.ClosesAt) {
			return Settlement{}, outcome, fmt.Errorf("settle market %s before close: %w", m.ID, model.ErrInvalidTransition)
		}
		if err := n.submitClose(m.ID, now); err != nil {
			return Settlement{}, outcome, err
		}
	case model.MarketClosed:
	default:
		return Settlement{}, outcome, fmt.Errorf("settle %s market %s: %w", m.State, m.ID, model.ErrInvalidTransition)
	}

	tx := &model.Transaction{
		Kind:      model.TxCancelMarket,
		Sender:    model.SystemAddress,
		Payload:   model.Payload{MarketID: m.ID},
		Timestamp: now,
	}
	if outcome != "" {
		tx.Kind = model.TxResolveMarket
		tx.Payload.OutcomeID = outcome
	}
	s, err := n.settle(tx)
	return s, outcome, err
}
