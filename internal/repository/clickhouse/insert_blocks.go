package clickhouse

import (
	"context"
	"time"

	"github.com/goodnatureofminers/blackbook/internal/model"
)

const insertBlocksQuery = `
INSERT INTO blackbook_blocks (
	height,
	hash,
	prev_hash,
	timestamp,
	version,
	merkle_root,
	bits,
	nonce,
	tx_count
) VALUES`

// InsertBlocks stores block rows in ClickHouse.
func (r *Repository) InsertBlocks(ctx context.Context, blocks []model.BlockRow) (err error) {
	defer func(started time.Time) {
		r.metrics.Observe("insert_blocks", err, started)
	}(time.Now())

	if len(blocks) == 0 {
		return nil
	}
	return send(ctx, r.conn, insertBlocksQuery, "blocks", blocks, func(b model.BlockRow) []any {
		return []any{
			b.Height,
			b.Hash,
			b.PrevHash,
			b.Timestamp,
			b.Version,
			b.MerkleRoot,
			b.Bits,
			b.Nonce,
			b.TXCount,
		}
	})
}
