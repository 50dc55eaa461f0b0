// Package market owns market, outcome and bet records and the lifecycle
// Open -> Closed -> Resolved, with Cancelled reachable from Open and Closed.
//
// The engine never moves funds. It validates the market side of each
// transaction in Prepare and applies it through the returned commit func,
// after the ledger has accepted the same transaction.
package market

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goodnatureofminers/blackbook/internal/amm"
	"github.com/goodnatureofminers/blackbook/internal/model"
)

// Engine holds market state. It is not safe for concurrent use.
type Engine struct {
	cfg      Config
	markets  map[string]*model.Market
	order    []string
	bets     map[string]*model.Bet
	betOrder []string
	byMarket map[string][]string
}

// NewEngine returns an empty engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:      cfg,
		markets:  make(map[string]*model.Market),
		bets:     make(map[string]*model.Bet),
		byMarket: make(map[string][]string),
	}
}

// Config returns the engine limits.
func (e *Engine) Config() Config {
	return e.cfg
}

// ValidateSpec checks a market request created at now.
func (e *Engine) ValidateSpec(spec *model.MarketSpec, now time.Time) error {
	if spec == nil {
		return fmt.Errorf("missing spec: %w", model.ErrInvalidMarketSpec)
	}
	if strings.TrimSpace(spec.ID) == "" {
		return fmt.Errorf("empty id: %w", model.ErrInvalidMarketSpec)
	}
	if strings.TrimSpace(spec.Title) == "" {
		return fmt.Errorf("empty title: %w", model.ErrInvalidMarketSpec)
	}
	if len(spec.Outcomes) < 2 || (e.cfg.MaxOutcomes > 0 && len(spec.Outcomes) > e.cfg.MaxOutcomes) {
		return fmt.Errorf("%d outcomes: %w", len(spec.Outcomes), model.ErrInvalidMarketSpec)
	}
	seen := make(map[string]struct{}, len(spec.Outcomes))
	for _, name := range spec.Outcomes {
		id := model.OutcomeID(name)
		if id == "" {
			return fmt.Errorf("empty outcome name: %w", model.ErrInvalidMarketSpec)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate outcome %q: %w", name, model.ErrInvalidMarketSpec)
		}
		seen[id] = struct{}{}
	}
	if spec.Liquidity <= 0 || math.IsNaN(spec.Liquidity) || math.IsInf(spec.Liquidity, 0) {
		return fmt.Errorf("liquidity %v: %w", spec.Liquidity, model.ErrInvalidMarketSpec)
	}
	if e.cfg.MaxLiquidity > 0 && spec.Liquidity > e.cfg.MaxLiquidity {
		return fmt.Errorf("liquidity %v above %v: %w", spec.Liquidity, e.cfg.MaxLiquidity, model.ErrInvalidMarketSpec)
	}
	if amm.Subsidy(spec.Liquidity, len(spec.Outcomes)) >= maxSubsidy {
		return fmt.Errorf("liquidity %v: subsidy overflows: %w", spec.Liquidity, model.ErrInvalidMarketSpec)
	}
	window := spec.ClosesAt.Sub(now)
	if window < e.cfg.MinDuration || window > e.cfg.MaxDuration {
		return fmt.Errorf("closes in %s, allowed %s..%s: %w", window, e.cfg.MinDuration, e.cfg.MaxDuration, model.ErrInvalidMarketSpec)
	}
	if !spec.ResolvesAt.IsZero() && spec.ResolvesAt.Before(spec.ClosesAt) {
		return fmt.Errorf("resolves before close: %w", model.ErrInvalidMarketSpec)
	}
	if spec.Sponsor == "" || spec.Sponsor.IsEscrow() {
		return fmt.Errorf("sponsor %q: %w", spec.Sponsor, model.ErrInvalidMarketSpec)
	}
	if spec.PriceAsset != "" || spec.EntryPrice != 0 {
		return validatePriceSpec(spec)
	}
	return nil
}

func validatePriceSpec(spec *model.MarketSpec) error {
	if strings.TrimSpace(spec.PriceAsset) == "" {
		return fmt.Errorf("entry price without asset: %w", model.ErrInvalidMarketSpec)
	}
	if spec.EntryPrice <= 0 || math.IsNaN(spec.EntryPrice) || math.IsInf(spec.EntryPrice, 0) {
		return fmt.Errorf("entry price %v: %w", spec.EntryPrice, model.ErrInvalidMarketSpec)
	}
	if len(spec.Outcomes) != 2 ||
		model.OutcomeID(spec.Outcomes[0]) != model.OutcomeID(model.OutcomeHigher) ||
		model.OutcomeID(spec.Outcomes[1]) != model.OutcomeID(model.OutcomeLower) {
		return fmt.Errorf("price market outcomes %v: %w", spec.Outcomes, model.ErrInvalidMarketSpec)
	}
	return nil
}

// maxSubsidy keeps ceil(b * ln N) exactly convertible to an Amount.
const maxSubsidy = 1 << 62

// Subsidy is the escrow funding a sponsor provides so that every outcome's
// payout is covered, ceil(b * ln N) base units.
func Subsidy(spec *model.MarketSpec) model.Amount {
	return model.Amount(math.Ceil(amm.Subsidy(spec.Liquidity, len(spec.Outcomes))))
}

// Prepare validates the market side of tx. The returned func applies it and
// must only be called once the ledger accepted tx.
func (e *Engine) Prepare(tx *model.Transaction) (func(), error) {
	switch tx.Kind {
	case model.TxGenesis, model.TxTransfer, model.TxAdminCredit:
		if err := onlyTo(tx, ""); err != nil {
			return nil, err
		}
		return func() {}, nil
	case model.TxCreateMarket:
		return e.prepareCreate(tx)
	case model.TxPlaceBet:
		return e.preparePlaceBet(tx)
	case model.TxCloseMarket:
		return e.prepareClose(tx)
	case model.TxResolveMarket:
		return e.prepareResolve(tx)
	case model.TxCancelMarket:
		return e.prepareCancel(tx)
	case model.TxWithdraw:
		return e.prepareWithdraw(tx)
	default:
		return nil, fmt.Errorf("unknown kind %s: %w", tx.Kind, model.ErrInvalidTransaction)
	}
}

// onlyTo rejects outputs to any escrow other than allowed.
func onlyTo(tx *model.Transaction, allowed model.Address) error {
	for i, o := range tx.Outputs {
		if o.Address.IsEscrow() && o.Address != allowed {
			return fmt.Errorf("output %d pays %s: %w", i, o.Address, model.ErrInvalidTransaction)
		}
	}
	return nil
}

// split sums the outputs paid to addr and checks every other output returns to change.
func split(tx *model.Transaction, addr, change model.Address) (model.Amount, error) {
	var paid model.Amount
	for i, o := range tx.Outputs {
		switch o.Address {
		case addr:
			paid += o.Value
		case change:
		default:
			return 0, fmt.Errorf("output %d pays %s: %w", i, o.Address, model.ErrInvalidTransaction)
		}
	}
	return paid, nil
}

func (e *Engine) prepareCreate(tx *model.Transaction) (func(), error) {
	spec := tx.Payload.Market
	if err := e.ValidateSpec(spec, tx.Timestamp); err != nil {
		return nil, err
	}
	if _, exists := e.markets[spec.ID]; exists {
		return nil, fmt.Errorf("market %s exists: %w", spec.ID, model.ErrInvalidMarketSpec)
	}
	if tx.Payload.MarketID != spec.ID || tx.Sender != spec.Sponsor {
		return nil, fmt.Errorf("create market %s: %w", spec.ID, model.ErrInvalidTransaction)
	}
	subsidy := Subsidy(spec)
	funded, err := split(tx, model.EscrowAddress(spec.ID), tx.Sender)
	if err != nil {
		return nil, err
	}
	if funded != subsidy || tx.Payload.Amount != subsidy {
		return nil, fmt.Errorf("escrow funded %d, subsidy %d: %w", funded, subsidy, model.ErrInvalidTransaction)
	}

	return func() {
		m := &model.Market{
			ID:               spec.ID,
			Title:            spec.Title,
			Description:      spec.Description,
			Category:         spec.Category,
			State:            model.MarketOpen,
			Outcomes:         make([]model.Outcome, len(spec.Outcomes)),
			Liquidity:        spec.Liquidity,
			CreatedAt:        tx.Timestamp,
			ClosesAt:         spec.ClosesAt,
			ResolvesAt:       spec.ResolvesAt,
			ResolutionSource: spec.ResolutionSource,
			Sponsor:          spec.Sponsor,
			Subsidy:          subsidy,
			PriceAsset:       spec.PriceAsset,
			EntryPrice:       spec.EntryPrice,
		}
		for i, name := range spec.Outcomes {
			m.Outcomes[i] = model.Outcome{ID: model.OutcomeID(name), Name: name}
		}
		reprice(m)
		e.markets[m.ID] = m
		e.order = append(e.order, m.ID)
	}, nil
}

func (e *Engine) preparePlaceBet(tx *model.Transaction) (func(), error) {
	p := tx.Payload
	m, ok := e.markets[p.MarketID]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", p.MarketID, model.ErrMarketNotFound)
	}
	if m.State != model.MarketOpen {
		return nil, fmt.Errorf("market %s is %s: %w", m.ID, m.State, model.ErrMarketNotOpen)
	}
	if !tx.Timestamp.Before(m.ClosesAt) {
		return nil, fmt.Errorf("market %s closed at %s: %w", m.ID, m.ClosesAt, model.ErrMarketNotOpen)
	}
	idx := outcomeIndex(m, p.OutcomeID)
	if idx < 0 {
		return nil, fmt.Errorf("outcome %q in %s: %w", p.OutcomeID, m.ID, model.ErrOutcomeNotFound)
	}
	if p.Amount == 0 {
		return nil, fmt.Errorf("bet amount: %w", model.ErrInvalidAmount)
	}
	if p.BetID == "" {
		return nil, fmt.Errorf("missing bet id: %w", model.ErrInvalidTransaction)
	}
	if _, dup := e.bets[p.BetID]; dup {
		return nil, fmt.Errorf("bet %s exists: %w", p.BetID, model.ErrInvalidTransaction)
	}
	if tx.Sender == model.SystemAddress || tx.Sender.IsEscrow() {
		return nil, fmt.Errorf("bettor %s: %w", tx.Sender, model.ErrInvalidTransaction)
	}
	staked, err := split(tx, m.Escrow(), tx.Sender)
	if err != nil {
		return nil, err
	}
	if staked != p.Amount {
		return nil, fmt.Errorf("escrow receives %d, bet %d: %w", staked, p.Amount, model.ErrInvalidTransaction)
	}
	if !(p.Shares > 0) || math.IsInf(p.Shares, 0) {
		return nil, fmt.Errorf("shares %v: %w", p.Shares, model.ErrInvalidTransaction)
	}
	cost := amm.TradeCost(m.Shares(), m.Liquidity, idx, p.Shares)
	if cost > float64(p.Amount)+e.cfg.CostTolerance {
		return nil, fmt.Errorf("cost %.6f for %d: %w", cost, p.Amount, model.ErrTradeCostMismatch)
	}

	return func() {
		m.Outcomes[idx].Shares += p.Shares
		m.TotalVolume += p.Amount
		reprice(m)
		bet := &model.Bet{
			ID:            p.BetID,
			MarketID:      m.ID,
			Account:       tx.Sender,
			OutcomeID:     m.Outcomes[idx].ID,
			Amount:        p.Amount,
			Shares:        p.Shares,
			PricePerShare: float64(p.Amount) / p.Shares,
			TransactionID: tx.ID,
			Timestamp:     tx.Timestamp,
		}
		e.bets[bet.ID] = bet
		e.betOrder = append(e.betOrder, bet.ID)
		e.byMarket[m.ID] = append(e.byMarket[m.ID], bet.ID)
	}, nil
}

func (e *Engine) prepareTransition(tx *model.Transaction) (*model.Market, error) {
	if len(tx.Inputs) != 0 || len(tx.Outputs) != 0 {
		return nil, fmt.Errorf("%s moves funds: %w", tx.Kind, model.ErrInvalidTransaction)
	}
	m, ok := e.markets[tx.Payload.MarketID]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", tx.Payload.MarketID, model.ErrMarketNotFound)
	}
	return m, nil
}

func (e *Engine) prepareClose(tx *model.Transaction) (func(), error) {
	m, err := e.prepareTransition(tx)
	if err != nil {
		return nil, err
	}
	switch m.State {
	case model.MarketOpen:
	case model.MarketClosed:
		return nil, fmt.Errorf("close %s: %w", m.ID, model.ErrAlreadyClosed)
	case model.MarketResolved:
		return nil, fmt.Errorf("close %s: %w", m.ID, model.ErrAlreadyResolved)
	default:
		return nil, fmt.Errorf("close %s from %s: %w", m.ID, m.State, model.ErrInvalidTransition)
	}
	return func() { m.State = model.MarketClosed }, nil
}

func (e *Engine) prepareResolve(tx *model.Transaction) (func(), error) {
	m, err := e.prepareTransition(tx)
	if err != nil {
		return nil, err
	}
	if m.State != model.MarketClosed {
		return nil, fmt.Errorf("resolve %s from %s: %w", m.ID, m.State, model.ErrInvalidTransition)
	}
	idx := outcomeIndex(m, tx.Payload.OutcomeID)
	if idx < 0 {
		return nil, fmt.Errorf("outcome %q in %s: %w", tx.Payload.OutcomeID, m.ID, model.ErrOutcomeNotFound)
	}

	return func() {
		m.State = model.MarketResolved
		m.ResolvedOutcome = m.Outcomes[idx].ID
		for _, id := range e.byMarket[m.ID] {
			b := e.bets[id]
			if b.OutcomeID != m.ResolvedOutcome || b.WinningPayout() == 0 {
				b.Settled = true
			}
		}
	}, nil
}

func (e *Engine) prepareCancel(tx *model.Transaction) (func(), error) {
	m, err := e.prepareTransition(tx)
	if err != nil {
		return nil, err
	}
	if m.State != model.MarketOpen && m.State != model.MarketClosed {
		return nil, fmt.Errorf("cancel %s from %s: %w", m.ID, m.State, model.ErrInvalidTransition)
	}
	return func() { m.State = model.MarketCancelled }, nil
}

func (e *Engine) prepareWithdraw(tx *model.Transaction) (func(), error) {
	p := tx.Payload
	m, ok := e.markets[p.MarketID]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", p.MarketID, model.ErrMarketNotFound)
	}
	if owner, ok := tx.Sender.EscrowMarket(); !ok || owner != m.ID {
		return nil, fmt.Errorf("withdraw from %s by %s: %w", m.Escrow(), tx.Sender, model.ErrOwnershipMismatch)
	}
	if p.Amount == 0 {
		return nil, fmt.Errorf("withdraw amount: %w", model.ErrInvalidSettlement)
	}

	switch p.Reason {
	case model.WithdrawPayout, model.WithdrawRefund:
		b, ok := e.bets[p.BetID]
		if !ok || b.MarketID != m.ID {
			return nil, fmt.Errorf("bet %s in %s: %w", p.BetID, m.ID, model.ErrBetNotFound)
		}
		if b.Settled {
			return nil, fmt.Errorf("bet %s already settled: %w", b.ID, model.ErrInvalidSettlement)
		}
		want, err := owed(m, b, p.Reason)
		if err != nil {
			return nil, err
		}
		paid, err := split(tx, b.Account, m.Escrow())
		if err != nil {
			return nil, err
		}
		if paid != want || p.Amount != want {
			return nil, fmt.Errorf("bet %s paid %d, owed %d: %w", b.ID, paid, want, model.ErrInvalidSettlement)
		}
		return func() {
			b.Settled = true
			b.Payout = want
		}, nil

	case model.WithdrawSponsorReturn:
		if !m.State.Terminal() {
			return nil, fmt.Errorf("sponsor return from %s: %w", m.State, model.ErrInvalidSettlement)
		}
		if m.SponsorReturned {
			return nil, fmt.Errorf("sponsor of %s already repaid: %w", m.ID, model.ErrInvalidSettlement)
		}
		for _, id := range e.byMarket[m.ID] {
			if !e.bets[id].Settled {
				return nil, fmt.Errorf("bet %s unsettled: %w", id, model.ErrInvalidSettlement)
			}
		}
		paid, err := split(tx, m.Sponsor, "")
		if err != nil {
			return nil, err
		}
		if paid != p.Amount {
			return nil, fmt.Errorf("sponsor paid %d of %d: %w", paid, p.Amount, model.ErrInvalidSettlement)
		}
		return func() { m.SponsorReturned = true }, nil

	default:
		return nil, fmt.Errorf("withdraw reason %q: %w", p.Reason, model.ErrInvalidSettlement)
	}
}

func owed(m *model.Market, b *model.Bet, reason model.WithdrawReason) (model.Amount, error) {
	switch {
	case reason == model.WithdrawPayout && m.State == model.MarketResolved && b.OutcomeID == m.ResolvedOutcome:
		return b.WinningPayout(), nil
	case reason == model.WithdrawRefund && m.State == model.MarketCancelled:
		return b.Amount, nil
	default:
		return 0, fmt.Errorf("%s for bet %s on %s market: %w", reason, b.ID, m.State, model.ErrInvalidSettlement)
	}
}

func outcomeIndex(m *model.Market, id string) int {
	for i, o := range m.Outcomes {
		if o.ID == id {
			return i
		}
	}
	return -1
}

func reprice(m *model.Market) {
	prices := amm.Prices(m.Shares(), m.Liquidity)
	for i := range m.Outcomes {
		m.Outcomes[i].Price = prices[i]
	}
}

// Market returns a copy of the market.
func (e *Engine) Market(id string) (model.Market, error) {
	m, ok := e.markets[id]
	if !ok {
		return model.Market{}, fmt.Errorf("market %s: %w", id, model.ErrMarketNotFound)
	}
	return *m.Clone(), nil
}

// Markets returns copies of all markets in creation order.
func (e *Engine) Markets() []model.Market {
	res := make([]model.Market, 0, len(e.order))
	for _, id := range e.order {
		res = append(res, *e.markets[id].Clone())
	}
	return res
}

// Bet returns a copy of the bet.
func (e *Engine) Bet(id string) (model.Bet, error) {
	b, ok := e.bets[id]
	if !ok {
		return model.Bet{}, fmt.Errorf("bet %s: %w", id, model.ErrBetNotFound)
	}
	return *b, nil
}

// Bets returns copies of all bets in placement order, optionally filtered by account.
func (e *Engine) Bets(account model.Address) []model.Bet {
	res := make([]model.Bet, 0, len(e.betOrder))
	for _, id := range e.betOrder {
		b := e.bets[id]
		if account != "" && b.Account != account {
			continue
		}
		res = append(res, *b)
	}
	return res
}

// MarketBets returns copies of the bets placed on a market.
func (e *Engine) MarketBets(marketID string) []model.Bet {
	ids := e.byMarket[marketID]
	res := make([]model.Bet, 0, len(ids))
	for _, id := range ids {
		res = append(res, *e.bets[id])
	}
	return res
}

// Expired lists open markets whose close time has passed at now.
func (e *Engine) Expired(now time.Time) []string {
	var ids []string
	for _, id := range e.order {
		m := e.markets[id]
		if m.State == model.MarketOpen && !now.Before(m.ClosesAt) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Settlement is an escrow release still owed for a terminal market.
type Settlement struct {
	Bet    model.Bet
	Reason model.WithdrawReason
	Amount model.Amount
}

// Unsettled lists the withdrawals still owed by a resolved or cancelled
// market, in bet placement order.
func (e *Engine) Unsettled(marketID string) ([]Settlement, error) {
	m, ok := e.markets[marketID]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", marketID, model.ErrMarketNotFound)
	}
	reason := model.WithdrawPayout
	switch m.State {
	case model.MarketResolved:
	case model.MarketCancelled:
		reason = model.WithdrawRefund
	default:
		return nil, fmt.Errorf("settle %s market %s: %w", m.State, m.ID, model.ErrInvalidTransition)
	}

	var res []Settlement
	for _, id := range e.byMarket[m.ID] {
		b := e.bets[id]
		if b.Settled {
			continue
		}
		amount, err := owed(m, b, reason)
		if err != nil {
			return nil, err
		}
		res = append(res, Settlement{Bet: *b, Reason: reason, Amount: amount})
	}
	return res, nil
}

// Clone returns an independent copy.
func (e *Engine) Clone() *Engine {
	c := &Engine{
		cfg:      e.cfg,
		markets:  make(map[string]*model.Market, len(e.markets)),
		order:    append([]string(nil), e.order...),
		bets:     make(map[string]*model.Bet, len(e.bets)),
		betOrder: append([]string(nil), e.betOrder...),
		byMarket: make(map[string][]string, len(e.byMarket)),
	}
	for id, m := range e.markets {
		c.markets[id] = m.Clone()
	}
	for id, b := range e.bets {
		bc := *b
		c.bets[id] = &bc
	}
	for id, ids := range e.byMarket {
		c.byMarket[id] = append([]string(nil), ids...)
	}
	return c
}
