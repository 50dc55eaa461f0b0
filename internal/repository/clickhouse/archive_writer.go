package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/blackbook/internal/model"
	"github.com/goodnatureofminers/blackbook/pkg/batcher"
	"go.uber.org/zap"
)

const (
	transactionFlushThreshold = 1000
	outputFlushThreshold      = 10_000

	archiveBatchSize     = 100
	archiveFlushInterval = 5 * time.Second
	archiveFlushRate     = 10
)

// ArchiveWriter buffers committed blocks and writes them in batches.
type ArchiveWriter struct {
	logger  *zap.Logger
	batcher *batcher.Batcher[model.ArchiveBlock]
}

// NewArchiveWriter builds a writer flushing into repo.
func NewArchiveWriter(logger *zap.Logger, repo Writer) *ArchiveWriter {
	logger = logger.Named("archive")
	return &ArchiveWriter{
		logger: logger,
		batcher: batcher.New[model.ArchiveBlock](
			logger.Named("batcher"),
			flushArchive(repo),
			archiveBatchSize,
			archiveFlushInterval,
			archiveFlushRate,
		),
	}
}

func (w *ArchiveWriter) Start(ctx context.Context) {
	w.batcher.Start(ctx)
}

// Stop flushes what is queued and stops the writer.
func (w *ArchiveWriter) Stop() {
	w.batcher.Stop()
}

// Archive queues block for the next flush.
func (w *ArchiveWriter) Archive(ctx context.Context, block *model.Block) error {
	if err := w.batcher.Add(ctx, model.NewArchiveBlock(block)); err != nil {
		return fmt.Errorf("archive block %d: %w", block.Height, err)
	}
	return nil
}

// flushArchive writes transactions and outputs before their blocks so a block
// row is only visible once its contents are stored.
func flushArchive(repo Writer) func(context.Context, []model.ArchiveBlock) error {
	return func(ctx context.Context, items []model.ArchiveBlock) error {
		blocks := make([]model.BlockRow, 0, len(items))
		var (
			txs     []model.TransactionRow
			outputs []model.TransactionOutputRow
		)
		for _, item := range items {
			blocks = append(blocks, item.Block)
			txs = append(txs, item.Txs...)
			if len(txs) >= transactionFlushThreshold {
				if err := repo.InsertTransactions(ctx, txs); err != nil {
					return err
				}
				txs = nil
			}
			outputs = append(outputs, item.Outputs...)
			if len(outputs) >= outputFlushThreshold {
				if err := repo.InsertTransactionOutputs(ctx, outputs); err != nil {
					return err
				}
				outputs = nil
			}
		}

		if err := repo.InsertTransactions(ctx, txs); err != nil {
			return err
		}
		if err := repo.InsertTransactionOutputs(ctx, outputs); err != nil {
			return err
		}
		return repo.InsertBlocks(ctx, blocks)
	}
}
