// Package watcher closes markets whose closing time has passed.
package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/goodnatureofminers/blackbook/internal/clock"
	"github.com/goodnatureofminers/blackbook/internal/model"
	"go.uber.org/zap"
)

const defaultInterval = 5 * time.Second

// Service sweeps expired markets on a fixed interval.
type Service struct {
	logger   *zap.Logger
	closer   Closer
	metrics  Metrics
	sleep    func(context.Context, time.Duration) error
	interval time.Duration
}

// NewService builds an expiry watcher. A non-positive interval uses the default.
func NewService(logger *zap.Logger, closer Closer, metrics Metrics, interval time.Duration) (*Service, error) {
	if closer == nil {
		return nil, errors.New("watcher closer is required")
	}
	if metrics == nil {
		return nil, errors.New("watcher metrics is required")
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logger:   logger.Named("watcher"),
		closer:   closer,
		metrics:  metrics,
		sleep:    clock.SleepWithContext,
		interval: interval,
	}, nil
}

// Run sweeps until ctx is canceled or the node halts.
func (s *Service) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.run(ctx); err != nil {
			if errors.Is(err, model.ErrHalted) {
				return err
			}
			s.logger.Warn("expiry sweep failed", zap.Error(err))
		}
		if err := s.sleep(ctx, s.interval); err != nil {
			return err
		}
	}
}

func (s *Service) run(ctx context.Context) error {
	started := time.Now()
	closed, err := s.closer.CloseExpired(ctx)
	s.metrics.ObserveSweep(err, len(closed), started)
	if err != nil {
		return err
	}
	if len(closed) > 0 {
		s.logger.Info("closed expired markets", zap.Strings("markets", closed))
	}
	return nil
}
