// Package audit records privileged and exceptional ledger events.
package audit

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// Zap writes audit events to a structured logger.
type Zap struct {
	logger *zap.Logger
}

// NewZap returns an audit log backed by logger.
func NewZap(logger *zap.Logger) *Zap {
	return &Zap{logger: logger.Named("audit")}
}

// Log writes one event with its detail fields in key order.
func (z *Zap) Log(_ context.Context, event string, detail map[string]any) error {
	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys)+1)
	fields = append(fields, zap.String("event", event))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, detail[k]))
	}
	z.logger.Info("audit", fields...)
	return nil
}
