package model

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Block is a mined batch of transactions. The header hash covers version,
// previous hash, merkle root, timestamp, bits and nonce.
type Block struct {
	Header       wire.BlockHeader
	Height       uint64
	Transactions []*Transaction
}

// Hash returns the header hash.
func (b *Block) Hash() chainhash.Hash {
	return b.Header.BlockHash()
}

// TxIDs returns the ids of the contained transactions in block order.
func (b *Block) TxIDs() []chainhash.Hash {
	ids := make([]chainhash.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		ids[i] = tx.ID
	}
	return ids
}
