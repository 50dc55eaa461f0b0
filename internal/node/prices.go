package node

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PriceQuote is an externally supplied asset price.
type PriceQuote struct {
	Asset     string
	Price     float64
	Timestamp time.Time
}

// PushPrice stores an asset price as given. A zero ts is stamped with the node clock.
func (n *Node) PushPrice(ctx context.Context, asset string, price float64, ts time.Time) error {
	if strings.TrimSpace(asset) == "" {
		return fmt.Errorf("push price: empty asset")
	}
	if ts.IsZero() {
		ts = n.now()
	}
	if err := n.prices.SetPrice(ctx, asset, price, ts); err != nil {
		return fmt.Errorf("push price: %w", err)
	}
	return nil
}

// Price returns the last pushed price of asset.
func (n *Node) Price(ctx context.Context, asset string) (PriceQuote, error) {
	price, ts, err := n.prices.GetPrice(ctx, asset)
	if err != nil {
		return PriceQuote{}, fmt.Errorf("price %s: %w", asset, err)
	}
	return PriceQuote{Asset: asset, Price: price, Timestamp: ts}, nil
}
