package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitForSignal(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(t *testing.T) (context.Context, time.Duration, <-chan struct{})
		wantErr   error
		expectMin time.Duration
		expectMax time.Duration
	}{
		{
			name: "waits for duration when context active",
			setup: func(_ *testing.T) (context.Context, time.Duration, <-chan struct{}) {
				return context.Background(), 15 * time.Millisecond, nil
			},
			expectMin: 15 * time.Millisecond,
		},
		{
			name: "returns early on signal",
			setup: func(_ *testing.T) (context.Context, time.Duration, <-chan struct{}) {
				signal := make(chan struct{}, 1)
				signal <- struct{}{}
				return context.Background(), time.Second, signal
			},
			expectMax: 100 * time.Millisecond,
		},
		{
			name: "returns when context canceled",
			setup: func(t *testing.T) (context.Context, time.Duration, <-chan struct{}) {
				ctx, cancel := context.WithCancel(context.Background())
				t.Cleanup(cancel)
				time.AfterFunc(5*time.Millisecond, cancel)
				return ctx, 200 * time.Millisecond, nil
			},
			wantErr:   context.Canceled,
			expectMax: 100 * time.Millisecond,
		},
		{
			name: "honors deadline exceeded",
			setup: func(t *testing.T) (context.Context, time.Duration, <-chan struct{}) {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
				t.Cleanup(cancel)
				return ctx, 200 * time.Millisecond, nil
			},
			wantErr:   context.DeadlineExceeded,
			expectMax: 100 * time.Millisecond,
		},
		{
			name: "zero duration reports canceled context",
			setup: func(_ *testing.T) (context.Context, time.Duration, <-chan struct{}) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx, 0, nil
			},
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, d, signal := tt.setup(t)

			start := time.Now()
			err := WaitForSignal(ctx, d, signal)
			elapsed := time.Since(start)

			if tt.wantErr == nil && err != nil {
				t.Fatalf("WaitForSignal() unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("WaitForSignal() error = %v, want %v", err, tt.wantErr)
			}
			if tt.expectMin > 0 && elapsed < tt.expectMin {
				t.Fatalf("returned too early: elapsed %v, expected at least %v", elapsed, tt.expectMin)
			}
			if tt.expectMax > 0 && elapsed > tt.expectMax {
				t.Fatalf("returned too late: elapsed %v, expected under %v", elapsed, tt.expectMax)
			}
		})
	}
}

func TestSleepWithContext(t *testing.T) {
	require.NoError(t, SleepWithContext(context.Background(), time.Millisecond))
	require.NoError(t, SleepWithContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, SleepWithContext(ctx, time.Hour), context.Canceled)
}

func TestBlockTime(t *testing.T) {
	floor := time.Unix(1_700_000_000, 0).UTC()

	got := BlockTime(time.Unix(1_700_000_100, 999_999_999), floor)
	require.Equal(t, time.Unix(1_700_000_100, 0).UTC(), got)
	require.Zero(t, got.Nanosecond())

	require.Equal(t, floor, BlockTime(time.Unix(1_699_999_999, 500), floor))
	require.Equal(t, floor, BlockTime(floor, floor))
}
