package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/blackbook/pkg/safe"
)

// TxKind enumerates transaction kinds.
type TxKind uint8

const (
	TxGenesis TxKind = iota
	TxTransfer
	TxPlaceBet
	TxCreateMarket
	TxResolveMarket
	TxWithdraw
	TxAdminCredit
	TxCloseMarket
	TxCancelMarket
)

var txKindNames = map[TxKind]string{
	TxGenesis:       "genesis",
	TxTransfer:      "transfer",
	TxPlaceBet:      "place_bet",
	TxCreateMarket:  "create_market",
	TxResolveMarket: "resolve_market",
	TxWithdraw:      "withdraw",
	TxAdminCredit:   "admin_credit",
	TxCloseMarket:   "close_market",
	TxCancelMarket:  "cancel_market",
}

func (k TxKind) String() string {
	if name, ok := txKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Mints reports whether the kind creates supply instead of moving it.
func (k TxKind) Mints() bool {
	return k == TxGenesis || k == TxAdminCredit
}

// WithdrawReason tells why escrow funds are released.
type WithdrawReason string

const (
	WithdrawPayout        WithdrawReason = "payout"
	WithdrawRefund        WithdrawReason = "refund"
	WithdrawSponsorReturn WithdrawReason = "sponsor_return"
)

// OutPoint identifies a transaction output.
type OutPoint struct {
	TxID  chainhash.Hash
	Index uint32
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Index)
}

// Output is a value assigned to an owner.
type Output struct {
	Address Address
	Value   Amount
}

// UTXO is an unspent output together with its location.
type UTXO struct {
	OutPoint
	Output
}

// Payload carries kind-specific transaction data.
type Payload struct {
	MarketID  string
	OutcomeID string
	BetID     string
	Amount    Amount
	Shares    float64
	Reason    WithdrawReason
	Market    *MarketSpec
}

// Transaction is a ledger state change.
type Transaction struct {
	ID        chainhash.Hash
	Kind      TxKind
	Sender    Address
	Inputs    []OutPoint
	Outputs   []Output
	Payload   Payload
	Timestamp time.Time
	Nonce     uint64
}

// Hash computes the content hash of the transaction, excluding its ID.
func (tx *Transaction) Hash() chainhash.Hash {
	var buf bytes.Buffer
	_ = tx.Serialize(&buf)
	return chainhash.DoubleHashH(buf.Bytes())
}

// Seal sets ID to the content hash.
func (tx *Transaction) Seal() *Transaction {
	tx.ID = tx.Hash()
	return tx
}

// OutputSum returns the total value of the outputs.
func (tx *Transaction) OutputSum() (Amount, error) {
	values := make([]Amount, len(tx.Outputs))
	for i, out := range tx.Outputs {
		values[i] = out.Value
	}
	sum, err := safe.Sum(values...)
	if err != nil {
		return 0, fmt.Errorf("sum outputs: %w", ErrInvalidAmount)
	}
	return sum, nil
}

// Serialize writes the canonical encoding used for hashing.
func (tx *Transaction) Serialize(w io.Writer) error {
	if _, err := w.Write([]byte{byte(tx.Kind)}); err != nil {
		return err
	}
	if err := wire.WriteVarString(w, 0, string(tx.Sender)); err != nil {
		return err
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(tx.Inputs))); err != nil {
		return err
	}
	for _, in := range tx.Inputs {
		if _, err := w.Write(in.TxID[:]); err != nil {
			return err
		}
		if err := writeUint32(w, in.Index); err != nil {
			return err
		}
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(tx.Outputs))); err != nil {
		return err
	}
	for _, out := range tx.Outputs {
		if err := wire.WriteVarString(w, 0, string(out.Address)); err != nil {
			return err
		}
		if err := writeUint64(w, uint64(out.Value)); err != nil {
			return err
		}
	}

	if err := tx.Payload.serialize(w); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(tx.Timestamp.UnixNano())); err != nil {
		return err
	}
	return writeUint64(w, tx.Nonce)
}

func (p Payload) serialize(w io.Writer) error {
	for _, s := range []string{p.MarketID, p.OutcomeID, p.BetID, string(p.Reason)} {
		if err := wire.WriteVarString(w, 0, s); err != nil {
			return err
		}
	}
	if err := writeUint64(w, uint64(p.Amount)); err != nil {
		return err
	}
	if err := writeUint64(w, math.Float64bits(p.Shares)); err != nil {
		return err
	}
	if p.Market == nil {
		_, err := w.Write([]byte{0})
		return err
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return err
	}
	return p.Market.serialize(w)
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// TxSummary is the flattened view of a transaction used by listings.
type TxSummary struct {
	ID        chainhash.Hash
	Kind      TxKind
	From      Address
	To        Address
	Amount    Amount
	Timestamp time.Time
	Height    uint64
	MarketID  string
}

// Summarize flattens a confirmed transaction. Amount is the value leaving the sender.
func Summarize(tx *Transaction, height uint64) TxSummary {
	s := TxSummary{
		ID:        tx.ID,
		Kind:      tx.Kind,
		From:      tx.Sender,
		Timestamp: tx.Timestamp,
		Height:    height,
		MarketID:  tx.Payload.MarketID,
	}
	for _, out := range tx.Outputs {
		if out.Address == tx.Sender {
			continue
		}
		if s.To == "" {
			s.To = out.Address
		}
		s.Amount += out.Value
	}
	return s
}
