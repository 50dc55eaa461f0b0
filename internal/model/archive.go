package model

import "time"

// ArchiveBlock groups the rows written to the block archive for one block.
type ArchiveBlock struct {
	Block   BlockRow
	Txs     []TransactionRow
	Outputs []TransactionOutputRow
}

// BlockRow describes a committed block stored in ClickHouse.
type BlockRow struct {
	Height     uint64
	Hash       string
	PrevHash   string
	Timestamp  time.Time
	Version    int32
	MerkleRoot string
	Bits       uint32
	Nonce      uint32
	TXCount    uint32
}

// TransactionRow describes a confirmed transaction stored in ClickHouse.
type TransactionRow struct {
	TxID        string
	BlockHeight uint64
	Timestamp   time.Time
	Kind        string
	Sender      string
	MarketID    string
	InputCount  uint32
	OutputCount uint32
}

// TransactionOutputRow represents an output produced by a confirmed transaction.
type TransactionOutputRow struct {
	BlockHeight uint64
	TxID        string
	Index       uint32
	Address     string
	Value       uint64
}

// NewArchiveBlock flattens a block into archive rows.
func NewArchiveBlock(b *Block) ArchiveBlock {
	ab := ArchiveBlock{
		Block: BlockRow{
			Height:     b.Height,
			Hash:       b.Hash().String(),
			PrevHash:   b.Header.PrevBlock.String(),
			Timestamp:  b.Header.Timestamp.UTC(),
			Version:    b.Header.Version,
			MerkleRoot: b.Header.MerkleRoot.String(),
			Bits:       b.Header.Bits,
			Nonce:      b.Header.Nonce,
			TXCount:    uint32(len(b.Transactions)),
		},
		Txs: make([]TransactionRow, 0, len(b.Transactions)),
	}
	for _, tx := range b.Transactions {
		txID := tx.ID.String()
		ab.Txs = append(ab.Txs, TransactionRow{
			TxID:        txID,
			BlockHeight: b.Height,
			Timestamp:   tx.Timestamp.UTC(),
			Kind:        tx.Kind.String(),
			Sender:      string(tx.Sender),
			MarketID:    tx.Payload.MarketID,
			InputCount:  uint32(len(tx.Inputs)),
			OutputCount: uint32(len(tx.Outputs)),
		})
		for i, out := range tx.Outputs {
			ab.Outputs = append(ab.Outputs, TransactionOutputRow{
				BlockHeight: b.Height,
				TxID:        txID,
				Index:       uint32(i),
				Address:     string(out.Address),
				Value:       uint64(out.Value),
			})
		}
	}
	return ab
}
