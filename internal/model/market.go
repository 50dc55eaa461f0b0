package model

import (
	"io"
	"math"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// MarketState is a node of the market lifecycle.
type MarketState string

const (
	MarketOpen      MarketState = "open"
	MarketClosed    MarketState = "closed"
	MarketResolved  MarketState = "resolved"
	MarketCancelled MarketState = "cancelled"
)

// Terminal reports whether no transition leaves the state.
func (s MarketState) Terminal() bool {
	return s == MarketResolved || s == MarketCancelled
}

// MarketSpec is the request to create a market.
type MarketSpec struct {
	ID               string
	Title            string
	Description      string
	Category         string
	Outcomes         []string
	Liquidity        float64
	ClosesAt         time.Time
	ResolvesAt       time.Time
	ResolutionSource string
	Sponsor          Address
	// PriceAsset and EntryPrice are set on Higher/Lower price markets only.
	PriceAsset string
	EntryPrice float64
}

// Outcomes of a price market.
const (
	OutcomeHigher = "Higher"
	OutcomeLower  = "Lower"
)

func (s *MarketSpec) serialize(w io.Writer) error {
	for _, v := range []string{s.ID, s.Title, s.Description, s.Category, s.ResolutionSource, string(s.Sponsor), s.PriceAsset} {
		if err := wire.WriteVarString(w, 0, v); err != nil {
			return err
		}
	}
	if err := wire.WriteVarInt(w, 0, uint64(len(s.Outcomes))); err != nil {
		return err
	}
	for _, o := range s.Outcomes {
		if err := wire.WriteVarString(w, 0, o); err != nil {
			return err
		}
	}
	if err := writeUint64(w, math.Float64bits(s.Liquidity)); err != nil {
		return err
	}
	if err := writeUint64(w, math.Float64bits(s.EntryPrice)); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(s.ClosesAt.UnixNano())); err != nil {
		return err
	}
	var resolves int64
	if !s.ResolvesAt.IsZero() {
		resolves = s.ResolvesAt.UnixNano()
	}
	return writeUint64(w, uint64(resolves))
}

// Outcome is one possible result of a market.
type Outcome struct {
	ID     string
	Name   string
	Shares float64
	Price  float64
}

// OutcomeID derives the stable identifier of an outcome from its name.
func OutcomeID(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// Market is a prediction market with its LMSR state.
type Market struct {
	ID               string
	Title            string
	Description      string
	Category         string
	State            MarketState
	Outcomes         []Outcome
	Liquidity        float64
	TotalVolume      Amount
	CreatedAt        time.Time
	ClosesAt         time.Time
	ResolvesAt       time.Time
	ResolutionSource string
	ResolvedOutcome  string
	Sponsor          Address
	Subsidy          Amount
	SponsorReturned  bool
	PriceAsset       string
	EntryPrice       float64
}

// IsPriceMarket reports whether the market settles against a pushed price.
func (m *Market) IsPriceMarket() bool {
	return m.PriceAsset != ""
}

// Escrow returns the address holding the market stakes.
func (m *Market) Escrow() Address {
	return EscrowAddress(m.ID)
}

// Outcome finds an outcome by id or case-insensitive name.
func (m *Market) Outcome(ref string) (int, bool) {
	id := OutcomeID(ref)
	for i, o := range m.Outcomes {
		if o.ID == ref || o.ID == id || strings.EqualFold(o.Name, ref) {
			return i, true
		}
	}
	return -1, false
}

// Shares returns the q vector.
func (m *Market) Shares() []float64 {
	q := make([]float64, len(m.Outcomes))
	for i, o := range m.Outcomes {
		q[i] = o.Shares
	}
	return q
}

// Prices returns the current outcome prices.
func (m *Market) Prices() []float64 {
	p := make([]float64, len(m.Outcomes))
	for i, o := range m.Outcomes {
		p[i] = o.Price
	}
	return p
}

// Clone returns a deep copy.
func (m *Market) Clone() *Market {
	c := *m
	c.Outcomes = append([]Outcome(nil), m.Outcomes...)
	return &c
}

// Bet is an immutable record of a trade against a market.
type Bet struct {
	ID            string
	MarketID      string
	Account       Address
	OutcomeID     string
	Amount        Amount
	Shares        float64
	PricePerShare float64
	TransactionID chainhash.Hash
	Timestamp     time.Time
	Settled       bool
	Payout        Amount
}

// WinningPayout is the amount redeemed by a winning bet, in whole base units.
func (b *Bet) WinningPayout() Amount {
	return Amount(math.Floor(b.Shares))
}
