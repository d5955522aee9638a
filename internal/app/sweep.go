package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/pitchboard/internal/domain/model"
	"github.com/okian/pitchboard/pkg/logger"
	"github.com/okian/pitchboard/pkg/metrics"
)

const defaultSweepInterval = time.Minute

// Reconcile computes results for every ended event that has never had a
// computation attempt, which is what an undelivered ended change leaves
// behind. Failed events are left for Recompute. It returns how many events
// were computed.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	docs, err := s.store.List(ctx, model.EventsCollection)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}
	ran := 0
	for _, d := range docs {
		ev := model.EventFromData(d.ID(), d.Data)
		if ev.Status != model.StatusEnded || ev.ResultsReady != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		ran++
		s.logger.Info(ctx, "computing results for ended event without results",
			logger.String("event_id", ev.ID),
		)
		// Compute records its own failure on the event.
		_, _ = s.pipeline.Compute(ctx, ev.ID)
	}
	return ran, nil
}

// runSweeper reconciles once, then on every interval or dropped change,
// until ctx is done.
func (s *Service) runSweeper(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		if n, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
			metrics.RecordErrorByComponent("service", "sweep_failed")
			s.logger.Error(ctx, "results sweep failed", logger.Error(err))
		} else if n > 0 {
			s.logger.Info(ctx, "results sweep computed events", logger.Int("events", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.sweepNow:
		}
	}
}
