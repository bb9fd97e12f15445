package service

import (
	"context"
	"sync"
	"time"

	"github.com/plasmakit/ionmix/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultRetentionInterval = 1 * time.Hour
	defaultRetentionMaxAge   = 90 * 24 * time.Hour
)

// RetentionService prunes solve runs past their retention window on a
// periodic schedule. Converged states and provenance edges are removed with
// their run by the schema's cascade rules.
type RetentionService struct {
	runStore domain.RunStore
	logger   *zap.Logger

	interval time.Duration
	maxAge   time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewRetentionService(rs domain.RunStore, logger *zap.Logger) *RetentionService {
	return &RetentionService{
		runStore: rs,
		logger:   logger,
		interval: defaultRetentionInterval,
		maxAge:   defaultRetentionMaxAge,
		stopCh:   make(chan struct{}),
	}
}

func (s *RetentionService) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

func (s *RetentionService) SetMaxAge(d time.Duration) {
	if d > 0 {
		s.maxAge = d
	}
}

// Start runs retention pruning in a background goroutine.
func (s *RetentionService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("retention pruner started",
			zap.Duration("interval", s.interval),
			zap.Duration("max_age", s.maxAge))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.run(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("retention pruner stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the pruner.
func (s *RetentionService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *RetentionService) run(ctx context.Context) {
	cutoff := time.Now().Add(-s.maxAge)
	deleted, err := s.runStore.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to prune old solve runs", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("pruned solve runs past retention",
			zap.Int64("count", deleted),
			zap.Time("cutoff", cutoff))
	}
}
