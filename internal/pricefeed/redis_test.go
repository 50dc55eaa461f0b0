package pricefeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodnatureofminers/blackbook/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeHashes implements the hash commands used by Redis on top of a map.
type fakeHashes struct {
	redis.Cmdable
	data map[string]map[string]string
	err  error
}

func (f *fakeHashes) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	h, ok := f.data[key]
	if !ok {
		h = make(map[string]string)
		f.data[key] = h
	}
	for _, v := range values {
		for k, val := range v.(map[string]interface{}) {
			h[k] = val.(string)
		}
	}
	cmd.SetVal(int64(len(h)))
	return cmd
}

func (f *fakeHashes) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	cmd := redis.NewMapStringStringCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	out := make(map[string]string)
	for k, v := range f.data[key] {
		out[k] = v
	}
	cmd.SetVal(out)
	return cmd
}

func TestRedisRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := &fakeHashes{data: make(map[string]map[string]string)}
	r := NewRedis(fake)

	_, _, err := r.GetPrice(ctx, "BTC")
	require.ErrorIs(t, err, model.ErrPriceNotFound)

	ts := time.Unix(1_700_000_000, 123)
	require.NoError(t, r.SetPrice(ctx, "BTC", 0.1+0.2, ts))
	require.Equal(t, "0.30000000000000004", fake.data["price:BTC"]["price"])

	price, got, err := r.GetPrice(ctx, "BTC")
	require.NoError(t, err)
	require.Equal(t, 0.1+0.2, price)
	require.True(t, got.Equal(ts))
}

func TestRedisErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")
	r := NewRedis(&fakeHashes{data: map[string]map[string]string{}, err: boom})

	require.ErrorIs(t, r.SetPrice(ctx, "BTC", 1, time.Now()), boom)
	_, _, err := r.GetPrice(ctx, "BTC")
	require.ErrorIs(t, err, boom)

	bad := &fakeHashes{data: map[string]map[string]string{
		"price:BTC": {"price": "abc", "ts": "1"},
	}}
	_, _, err = NewRedis(bad).GetPrice(ctx, "BTC")
	require.Error(t, err)
}
