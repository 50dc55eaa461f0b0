package watcher

import (
	"context"
	"time"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	Closer interface {
		CloseExpired(ctx context.Context) ([]string, error)
	}
	Metrics interface {
		ObserveSweep(err error, closed int, started time.Time)
	}
)
