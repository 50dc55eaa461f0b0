package pricefeed

import (
	"context"
	"testing"
	"time"

	"github.com/goodnatureofminers/blackbook/internal/model"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, _, err := m.GetPrice(ctx, "BTC")
	require.ErrorIs(t, err, model.ErrPriceNotFound)

	ts := time.Unix(1_700_000_000, 42)
	require.NoError(t, m.SetPrice(ctx, "BTC", 64123.456789, ts))
	require.NoError(t, m.SetPrice(ctx, "ETH", -1, ts))

	price, got, err := m.GetPrice(ctx, "BTC")
	require.NoError(t, err)
	require.Equal(t, 64123.456789, price)
	require.True(t, got.Equal(ts))

	price, _, err = m.GetPrice(ctx, "ETH")
	require.NoError(t, err)
	require.Equal(t, -1.0, price, "values are stored unmodified")
}
