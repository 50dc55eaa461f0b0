package model

import (
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
)

// SatoshiPerCoin is the number of base units in one BB.
const SatoshiPerCoin = btcutil.SatoshiPerBitcoin

// Amount is a quantity of the platform token in base units.
type Amount uint64

// Coins returns the amount expressed in BB.
func (a Amount) Coins() float64 {
	return btcutil.Amount(a).ToBTC()
}

func (a Amount) String() string {
	return strconv.FormatFloat(a.Coins(), 'f', -1, 64) + " BB"
}
