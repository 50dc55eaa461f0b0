package node

import (
	"github.com/goodnatureofminers/blackbook/internal/ledger"
	"github.com/goodnatureofminers/blackbook/internal/market"
	"github.com/goodnatureofminers/blackbook/internal/model"
)

// state pairs the UTXO set with the market records derived from the same
// transaction sequence.
type state struct {
	ledger *ledger.Ledger
	engine *market.Engine
}

func newState(cfg market.Config) *state {
	return &state{ledger: ledger.New(), engine: market.NewEngine(cfg)}
}

// apply validates tx against both halves and commits it to both or neither.
func (s *state) apply(tx *model.Transaction) error {
	commit, err := s.engine.Prepare(tx)
	if err != nil {
		return err
	}
	if err := s.ledger.Apply(tx); err != nil {
		return err
	}
	commit()
	return nil
}

func (s *state) clone() *state {
	return &state{ledger: s.ledger.Clone(), engine: s.engine.Clone()}
}

func checkConservation(s *state) error {
	return s.ledger.CheckConservation()
}
