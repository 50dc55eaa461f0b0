package model

import "strings"

// Address is an opaque account identifier.
type Address string

const (
	// SystemAddress is the sender of transactions that are not funded by an account.
	SystemAddress Address = "system"

	escrowPrefix = "escrow:"
)

// EscrowAddress returns the pseudo-account holding the stakes of a market.
func EscrowAddress(marketID string) Address {
	return Address(escrowPrefix + marketID)
}

// IsEscrow reports whether the address belongs to a market escrow.
func (a Address) IsEscrow() bool {
	return strings.HasPrefix(string(a), escrowPrefix)
}

// EscrowMarket returns the market id of an escrow address.
func (a Address) EscrowMarket() (string, bool) {
	if !a.IsEscrow() {
		return "", false
	}
	return strings.TrimPrefix(string(a), escrowPrefix), true
}

// Account is an address with its spendable balance.
type Account struct {
	Address Address
	Balance Amount
}
