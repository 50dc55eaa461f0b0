//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE
package node

import (
	"context"
	"time"

	"github.com/goodnatureofminers/blackbook/internal/model"
)

// PriceCache stores externally pushed asset prices and serves them back unmodified.
type PriceCache interface {
	SetPrice(ctx context.Context, asset string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, asset string) (float64, time.Time, error)
}

// AuditLog records privileged and exceptional events.
type AuditLog interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}

// BlockSink receives every committed block.
type BlockSink interface {
	Archive(ctx context.Context, block *model.Block) error
}

// Metrics captures node observations.
type Metrics interface {
	ObserveSubmit(kind string, err error, started time.Time)
	ObserveBlock(err error, txs int, height uint64)
	ObserveMempool(size, dropped int)
}
