package miner

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/blackbook/internal/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	Node interface {
		BlockTemplate(ctx context.Context, limit int) (*model.Block, error)
		SubmitBlock(ctx context.Context, block *model.Block) error
		Pending() <-chan struct{}
	}
	Solver interface {
		Solve(ctx context.Context, header wire.BlockHeader) (wire.BlockHeader, error)
	}
	Metrics interface {
		ObserveSolve(err error, started time.Time)
		ObserveCommit(err error)
		SetState(state int)
	}
)
