package clickhouse

import (
	"context"
	"time"

	"github.com/goodnatureofminers/blackbook/internal/model"
)

const insertTransactionOutputsQuery = `
INSERT INTO blackbook_transaction_outputs (
	block_height,
	txid,
	output_index,
	address,
	value
) VALUES`

// InsertTransactionOutputs stores transaction outputs in ClickHouse.
func (r *Repository) InsertTransactionOutputs(ctx context.Context, outputs []model.TransactionOutputRow) (err error) {
	defer func(started time.Time) {
		r.metrics.Observe("insert_transaction_outputs", err, started)
	}(time.Now())

	if len(outputs) == 0 {
		return nil
	}
	return send(ctx, r.conn, insertTransactionOutputsQuery, "transaction outputs", outputs, func(o model.TransactionOutputRow) []any {
		return []any{
			o.BlockHeight,
			o.TxID,
			o.Index,
			o.Address,
			o.Value,
		}
	})
}
