package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/tourcast/tourcast/internal/pipeline"
	"github.com/tourcast/tourcast/internal/types"
)

// Submitter is the orchestrator surface the scheduler drives.
type Submitter interface {
	Submit(ctx context.Context, req types.TourRequest) (*types.Tour, *pipeline.TourHandle, error)
	Refresh(ctx context.Context, fingerprint string) (*pipeline.TourHandle, error)
}

// ExpiryWatcher reports cached fingerprints close to expiring.
type ExpiryWatcher interface {
	ExpiringSoon(window time.Duration) []string
}

// Scheduler keeps popular tours warm. On every tick it resubmits each seed
// request and rebuilds cached tours that would expire before the next tick.
// A seed whose tour is still cached is a no-op, one near expiry or missing
// triggers a fresh build through the ordinary pipeline.
type Scheduler struct {
	logger   *slog.Logger
	orch     Submitter
	watcher  ExpiryWatcher
	seeds    []types.TourRequest
	interval time.Duration
}

func New(orch Submitter, watcher ExpiryWatcher, seeds []types.TourRequest, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		logger:   logger,
		orch:     orch,
		watcher:  watcher,
		seeds:    seeds,
		interval: interval,
	}
}

// Start runs the warm-up loop. It blocks until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	l := s.logger.With(slog.String("component", "PreGenerationScheduler"))
	if len(s.seeds) == 0 && s.watcher == nil {
		l.Info("no seeds configured, scheduler idle")
		return
	}

	l.Info("scheduler started",
		slog.Int("seeds", len(s.seeds)),
		slog.Duration("interval", s.interval))

	s.tick(ctx, l)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx, l)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, l *slog.Logger) {
	for _, seed := range s.seeds {
		tour, handle, err := s.orch.Submit(ctx, seed)
		switch {
		case err != nil:
			l.WarnContext(ctx, "seed submission failed", slog.Any("error", err))
		case tour != nil:
			l.DebugContext(ctx, "seed already warm", slog.String("fingerprint", tour.Fingerprint))
		case handle != nil:
			l.InfoContext(ctx, "seed build started", slog.String("fingerprint", handle.Fingerprint))
		}
	}

	if s.watcher == nil {
		return
	}
	// Rebuild anything that would expire before the next pass.
	for _, fingerprint := range s.watcher.ExpiringSoon(s.interval) {
		if _, err := s.orch.Refresh(ctx, fingerprint); err != nil {
			l.WarnContext(ctx, "refresh failed",
				slog.String("fingerprint", fingerprint), slog.Any("error", err))
			continue
		}
		l.InfoContext(ctx, "refresh started", slog.String("fingerprint", fingerprint))
	}
}
