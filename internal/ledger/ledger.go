// Package ledger keeps the UTXO set and derives balances and supply from it.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/blackbook/internal/model"
	"github.com/goodnatureofminers/blackbook/pkg/safe"
)

type entry struct {
	out model.Output
	seq uint64
}

// Supply summarises where the token supply came from.
type Supply struct {
	Genesis     model.Amount
	Minted      model.Amount
	Circulating model.Amount
}

// Expected is the supply implied by genesis and the logged admin credits.
func (s Supply) Expected() model.Amount {
	return s.Genesis + s.Minted
}

// Ledger is the UTXO set. It is not safe for concurrent use.
type Ledger struct {
	utxos      map[model.OutPoint]entry
	owned      map[model.Address]map[model.OutPoint]struct{}
	applied    map[chainhash.Hash]struct{}
	seq        uint64
	hasGenesis bool
	genesis    model.Amount
	minted     model.Amount
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		utxos:   make(map[model.OutPoint]entry),
		owned:   make(map[model.Address]map[model.OutPoint]struct{}),
		applied: make(map[chainhash.Hash]struct{}),
	}
}

// Apply validates tx against the current set and, if valid, consumes its
// inputs and inserts its outputs. On error the ledger is unchanged.
func (l *Ledger) Apply(tx *model.Transaction) error {
	out, err := l.validate(tx)
	if err != nil {
		return err
	}

	for _, op := range tx.Inputs {
		l.remove(op)
	}
	for i, o := range tx.Outputs {
		l.insert(model.OutPoint{TxID: tx.ID, Index: uint32(i)}, o)
	}
	l.applied[tx.ID] = struct{}{}

	switch tx.Kind {
	case model.TxGenesis:
		l.hasGenesis = true
		l.genesis = out
	case model.TxAdminCredit:
		l.minted += out
	}
	return nil
}

// validate returns the output sum of tx. Outside the minting kinds the
// inputs must equal the outputs exactly.
func (l *Ledger) validate(tx *model.Transaction) (out model.Amount, err error) {
	if tx == nil {
		return 0, fmt.Errorf("nil transaction: %w", model.ErrInvalidTransaction)
	}
	if tx.ID != tx.Hash() {
		return 0, fmt.Errorf("id does not match content: %w", model.ErrInvalidTransaction)
	}
	if _, ok := l.applied[tx.ID]; ok {
		return 0, fmt.Errorf("transaction %s already applied: %w", tx.ID, model.ErrDoubleSpend)
	}
	if tx.Sender.IsEscrow() && tx.Kind != model.TxWithdraw {
		return 0, fmt.Errorf("escrow can only be spent by withdraw: %w", model.ErrOwnershipMismatch)
	}

	for i, o := range tx.Outputs {
		if o.Address == "" {
			return 0, fmt.Errorf("output %d has no owner: %w", i, model.ErrInvalidTransaction)
		}
		if o.Value == 0 {
			return 0, fmt.Errorf("output %d has zero value: %w", i, model.ErrInvalidAmount)
		}
	}
	if out, err = tx.OutputSum(); err != nil {
		return 0, err
	}

	if tx.Kind.Mints() {
		if len(tx.Inputs) != 0 {
			return 0, fmt.Errorf("%s cannot spend inputs: %w", tx.Kind, model.ErrInvalidTransaction)
		}
		if len(tx.Outputs) == 0 {
			return 0, fmt.Errorf("%s without outputs: %w", tx.Kind, model.ErrInvalidTransaction)
		}
		if tx.Sender != model.SystemAddress {
			return 0, fmt.Errorf("%s sent by %s: %w", tx.Kind, tx.Sender, model.ErrOwnershipMismatch)
		}
		if tx.Kind == model.TxGenesis && l.hasGenesis {
			return 0, fmt.Errorf("genesis already applied: %w", model.ErrInvalidTransaction)
		}
		if tx.Kind == model.TxAdminCredit {
			if _, err = safe.Add(l.minted, out); err != nil {
				return 0, fmt.Errorf("mint: %w", model.ErrInvalidAmount)
			}
		}
		return out, nil
	}

	var in model.Amount
	seen := make(map[model.OutPoint]struct{}, len(tx.Inputs))
	for _, op := range tx.Inputs {
		if _, dup := seen[op]; dup {
			return 0, fmt.Errorf("input %s listed twice: %w", op, model.ErrDoubleSpend)
		}
		seen[op] = struct{}{}

		e, ok := l.utxos[op]
		if !ok {
			return 0, fmt.Errorf("input %s spent or unknown: %w", op, model.ErrDoubleSpend)
		}
		if e.out.Address != tx.Sender {
			return 0, fmt.Errorf("input %s owned by %s, not %s: %w", op, e.out.Address, tx.Sender, model.ErrOwnershipMismatch)
		}
		if in, err = safe.Add(in, e.out.Value); err != nil {
			return 0, fmt.Errorf("sum inputs: %w", model.ErrInvalidAmount)
		}
	}
	if _, err = safe.Sub(in, out); err != nil {
		return 0, fmt.Errorf("outputs %d exceed inputs %d: %w", out, in, model.ErrInsufficientBalance)
	}
	if in != out {
		return 0, fmt.Errorf("inputs %d leave %d unassigned: %w", in, in-out, model.ErrInvalidTransaction)
	}
	return out, nil
}

func (l *Ledger) insert(op model.OutPoint, o model.Output) {
	l.seq++
	l.utxos[op] = entry{out: o, seq: l.seq}
	set, ok := l.owned[o.Address]
	if !ok {
		set = make(map[model.OutPoint]struct{})
		l.owned[o.Address] = set
	}
	set[op] = struct{}{}
}

func (l *Ledger) remove(op model.OutPoint) {
	e := l.utxos[op]
	delete(l.utxos, op)
	if set, ok := l.owned[e.out.Address]; ok {
		delete(set, op)
		if len(set) == 0 {
			delete(l.owned, e.out.Address)
		}
	}
}

// Applied reports whether a transaction id has been applied.
func (l *Ledger) Applied(id chainhash.Hash) bool {
	_, ok := l.applied[id]
	return ok
}

// BalanceOf sums the unspent outputs of addr. Unknown addresses have zero balance.
func (l *Ledger) BalanceOf(addr model.Address) model.Amount {
	var sum model.Amount
	for op := range l.owned[addr] {
		sum += l.utxos[op].out.Value
	}
	return sum
}

// Unspent lists the outputs owned by addr, oldest first.
func (l *Ledger) Unspent(addr model.Address) []model.UTXO {
	set := l.owned[addr]
	type ordered struct {
		utxo model.UTXO
		seq  uint64
	}
	items := make([]ordered, 0, len(set))
	for op := range set {
		e := l.utxos[op]
		items = append(items, ordered{utxo: model.UTXO{OutPoint: op, Output: e.out}, seq: e.seq})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })

	res := make([]model.UTXO, len(items))
	for i, it := range items {
		res[i] = it.utxo
	}
	return res
}

// Select picks the oldest outputs of addr until they cover amount.
func (l *Ledger) Select(addr model.Address, amount model.Amount) ([]model.UTXO, model.Amount, error) {
	if amount == 0 {
		return nil, 0, fmt.Errorf("select zero amount: %w", model.ErrInvalidAmount)
	}
	var (
		picked []model.UTXO
		total  model.Amount
	)
	for _, u := range l.Unspent(addr) {
		picked = append(picked, u)
		total += u.Value
		if total >= amount {
			return picked, total, nil
		}
	}
	return nil, 0, fmt.Errorf("%s has %d, needs %d: %w", addr, total, amount, model.ErrInsufficientBalance)
}

// Fund adds inputs of the sender covering the outputs of tx, plus a change
// output back to the sender when the inputs overshoot.
func (l *Ledger) Fund(tx *model.Transaction) error {
	need, err := tx.OutputSum()
	if err != nil {
		return err
	}
	utxos, total, err := l.Select(tx.Sender, need)
	if err != nil {
		return err
	}
	for _, u := range utxos {
		tx.Inputs = append(tx.Inputs, u.OutPoint)
	}
	if total > need {
		tx.Outputs = append(tx.Outputs, model.Output{Address: tx.Sender, Value: total - need})
	}
	return nil
}

// CreditAdmin mints amount to addr through a logged AdminCredit transaction.
func (l *Ledger) CreditAdmin(addr model.Address, amount model.Amount, ts time.Time, nonce uint64) (*model.Transaction, error) {
	if amount == 0 {
		return nil, fmt.Errorf("credit admin: %w", model.ErrInvalidAmount)
	}
	if addr.IsEscrow() {
		return nil, fmt.Errorf("credit admin to %s: %w", addr, model.ErrInvalidTransaction)
	}
	tx := (&model.Transaction{
		Kind:      model.TxAdminCredit,
		Sender:    model.SystemAddress,
		Outputs:   []model.Output{{Address: addr, Value: amount}},
		Payload:   model.Payload{Amount: amount},
		Timestamp: ts,
		Nonce:     nonce,
	}).Seal()
	if err := l.Apply(tx); err != nil {
		return nil, fmt.Errorf("credit admin: %w", err)
	}
	return tx, nil
}

// Accounts lists every address that owns unspent outputs, sorted by address.
func (l *Ledger) Accounts() []model.Account {
	accounts := make([]model.Account, 0, len(l.owned))
	for addr := range l.owned {
		accounts = append(accounts, model.Account{Address: addr, Balance: l.BalanceOf(addr)})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Address < accounts[j].Address })
	return accounts
}

// Supply reports the supply components.
func (l *Ledger) Supply() Supply {
	var circulating model.Amount
	for _, e := range l.utxos {
		circulating += e.out.Value
	}
	return Supply{
		Genesis:     l.genesis,
		Minted:      l.minted,
		Circulating: circulating,
	}
}

// CheckConservation verifies that the unspent set and the per-account
// balances both equal genesis plus admin credits.
func (l *Ledger) CheckConservation() error {
	s := l.Supply()
	var errs []error
	if s.Circulating != s.Expected() {
		errs = append(errs, fmt.Errorf("circulating %d != expected %d", s.Circulating, s.Expected()))
	}
	var byAccount model.Amount
	for _, a := range l.Accounts() {
		byAccount += a.Balance
	}
	if byAccount != s.Circulating {
		errs = append(errs, fmt.Errorf("account balances %d != circulating %d", byAccount, s.Circulating))
	}
	if len(errs) > 0 {
		return fmt.Errorf("conservation: %w: %w", errors.Join(errs...), model.ErrInvariantViolation)
	}
	return nil
}

// Clone returns an independent copy.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		utxos:      make(map[model.OutPoint]entry, len(l.utxos)),
		owned:      make(map[model.Address]map[model.OutPoint]struct{}, len(l.owned)),
		applied:    make(map[chainhash.Hash]struct{}, len(l.applied)),
		seq:        l.seq,
		hasGenesis: l.hasGenesis,
		genesis:    l.genesis,
		minted:     l.minted,
	}
	for op, e := range l.utxos {
		c.utxos[op] = e
	}
	for addr, set := range l.owned {
		cs := make(map[model.OutPoint]struct{}, len(set))
		for op := range set {
			cs[op] = struct{}{}
		}
		c.owned[addr] = cs
	}
	for id := range l.applied {
		c.applied[id] = struct{}{}
	}
	return c
}
