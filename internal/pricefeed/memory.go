// Package pricefeed stores asset prices pushed by an external feed.
package pricefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goodnatureofminers/blackbook/internal/model"
)

type quote struct {
	price float64
	ts    time.Time
}

// Memory is an in-process price cache.
type Memory struct {
	mu     sync.RWMutex
	prices map[string]quote
}

// NewMemory returns an empty cache.
func NewMemory() *Memory {
	return &Memory{prices: make(map[string]quote)}
}

// SetPrice stores the latest price and timestamp for an asset.
func (m *Memory) SetPrice(_ context.Context, asset string, price float64, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[asset] = quote{price: price, ts: ts}
	return nil
}

// GetPrice returns the latest price and timestamp for an asset.
func (m *Memory) GetPrice(_ context.Context, asset string) (float64, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.prices[asset]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("asset %s: %w", asset, model.ErrPriceNotFound)
	}
	return q.price, q.ts, nil
}
