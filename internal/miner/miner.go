// Package miner drains the node mempool into proof-of-work blocks.
package miner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodnatureofminers/blackbook/internal/clock"
	"github.com/goodnatureofminers/blackbook/internal/model"
	"go.uber.org/zap"
)

// State is the miner lifecycle position.
type State int

const (
	Idle State = iota
	Mining
	Committed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Mining:
		return "mining"
	case Committed:
		return "committed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config tunes the mining loop.
type Config struct {
	// Interval bounds how long the miner idles without a mempool signal.
	Interval time.Duration
	// RetryDelay is the pause after every nonce was tried, long enough for
	// the next template to carry a new timestamp.
	RetryDelay time.Duration
	// MaxTransactions caps a block; zero uses the chain default.
	MaxTransactions int
	// MineEmpty produces blocks on every interval even with no transactions.
	MineEmpty bool
}

// DefaultConfig returns the loop settings used by the node command.
func DefaultConfig() Config {
	return Config{
		Interval:   idleInterval,
		RetryDelay: retryDelay,
	}
}

// Service runs the Idle -> Mining -> Committed cycle.
type Service struct {
	logger          *zap.Logger
	node            Node
	solver          Solver
	metrics         Metrics
	sleep           func(context.Context, time.Duration) error
	interval        time.Duration
	retryDelay      time.Duration
	backoff         time.Duration
	maxTransactions int
	mineEmpty       bool
	signal          <-chan struct{}

	mu    sync.Mutex
	state State
}

// NewService builds a mining service on top of node.
func NewService(logger *zap.Logger, node Node, solver Solver, metrics Metrics, cfg Config) (*Service, error) {
	if node == nil {
		return nil, errors.New("miner node is required")
	}
	if solver == nil {
		return nil, errors.New("miner solver is required")
	}
	if metrics == nil {
		return nil, errors.New("miner metrics is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = idleInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = retryDelay
	}

	return &Service{
		logger:          logger.Named("miner"),
		node:            node,
		solver:          solver,
		metrics:         metrics,
		sleep:           clock.SleepWithContext,
		interval:        cfg.Interval,
		retryDelay:      cfg.RetryDelay,
		backoff:         failureBackoff,
		maxTransactions: cfg.MaxTransactions,
		mineEmpty:       cfg.MineEmpty,
		signal:          node.Pending(),
	}, nil
}

// State reports the current lifecycle position.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.metrics.SetState(int(state))
}

// Run mines until ctx is canceled or the node halts.
func (s *Service) Run(ctx context.Context) error {
	s.setState(Idle)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, model.ErrHalted) {
				s.logger.Error("node halted, stopping miner", zap.Error(err))
				return err
			}
			s.logger.Warn("mining iteration failed, backing off", zap.Error(err), zap.Duration("sleep", s.backoff))
			if sleepErr := s.sleep(ctx, s.backoff); sleepErr != nil {
				return sleepErr
			}
		}
	}
}

func (s *Service) run(ctx context.Context) error {
	block, err := s.node.BlockTemplate(ctx, s.maxTransactions)
	if err != nil {
		s.setState(Idle)
		return fmt.Errorf("block template: %w", err)
	}
	if len(block.Transactions) == 0 && !s.mineEmpty {
		s.setState(Idle)
		return s.wait(ctx, s.interval)
	}

	s.setState(Mining)
	started := time.Now()
	header, err := s.solver.Solve(ctx, block.Header)
	s.metrics.ObserveSolve(err, started)
	if err != nil {
		s.setState(Idle)
		if errors.Is(err, model.ErrNonceExhausted) {
			s.logger.Info("nonce space exhausted, retrying with a fresh template",
				zap.Uint64("height", block.Height),
				zap.Duration("sleep", s.retryDelay))
			return s.sleep(ctx, s.retryDelay)
		}
		return fmt.Errorf("solve block %d: %w", block.Height, err)
	}
	block.Header = header

	err = s.node.SubmitBlock(ctx, block)
	s.metrics.ObserveCommit(err)
	if err != nil {
		s.setState(Idle)
		return fmt.Errorf("commit block %d: %w", block.Height, err)
	}
	s.setState(Committed)
	s.logger.Info("mined block",
		zap.Uint64("height", block.Height),
		zap.Stringer("hash", block.Hash()),
		zap.Uint32("nonce", header.Nonce),
		zap.Int("transactions", len(block.Transactions)),
		zap.Duration("elapsed", time.Since(started)))
	if s.mineEmpty && len(block.Transactions) == 0 {
		return s.sleep(ctx, s.interval)
	}
	return nil
}

func (s *Service) wait(ctx context.Context, d time.Duration) error {
	if s.signal == nil {
		return s.sleep(ctx, d)
	}
	return clock.WaitForSignal(ctx, d, s.signal)
}
