package clickhouse

import (
	"context"
	"time"

	"github.com/goodnatureofminers/blackbook/internal/model"
)

const insertTransactionsQuery = `
INSERT INTO blackbook_transactions (
	txid,
	block_height,
	timestamp,
	kind,
	sender,
	market_id,
	input_count,
	output_count
) VALUES`

// InsertTransactions stores confirmed transactions in ClickHouse.
func (r *Repository) InsertTransactions(ctx context.Context, txs []model.TransactionRow) (err error) {
	defer func(started time.Time) {
		r.metrics.Observe("insert_transactions", err, started)
	}(time.Now())

	if len(txs) == 0 {
		return nil
	}
	return send(ctx, r.conn, insertTransactionsQuery, "transactions", txs, func(tx model.TransactionRow) []any {
		return []any{
			tx.TxID,
			tx.BlockHeight,
			tx.Timestamp,
			tx.Kind,
			tx.Sender,
			tx.MarketID,
			tx.InputCount,
			tx.OutputCount,
		}
	})
}
