package clickhouse

import (
	"context"
	"time"

	"github.com/goodnatureofminers/blackbook/internal/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	Metrics interface {
		Observe(operation string, err error, started time.Time)
	}
	Conn interface {
		PrepareBatch(ctx context.Context, query string) (Batch, error)
	}
	Batch interface {
		Append(v ...any) error
		Send() error
		Abort() error
	}
	Writer interface {
		InsertBlocks(ctx context.Context, blocks []model.BlockRow) error
		InsertTransactions(ctx context.Context, txs []model.TransactionRow) error
		InsertTransactionOutputs(ctx context.Context, outputs []model.TransactionOutputRow) error
	}
)
