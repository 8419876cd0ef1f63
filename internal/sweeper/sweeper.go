package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shoplinkhq/shoplink/internal/config"
	"github.com/shoplinkhq/shoplink/internal/dedup"
	"github.com/shoplinkhq/shoplink/internal/owners"
	"github.com/shoplinkhq/shoplink/internal/payments"
)

// Sweeper runs the periodic retention jobs: dedup markers past their
// retention window, expired magic links, and stale reconciliation
// state.
type Sweeper struct {
	cron      *cron.Cron
	dedup     dedup.Store
	links     owners.LinkRepository
	payments  *payments.Service
	retention time.Duration
	schedule  string
	logger    *slog.Logger
	now       func() time.Time
}

func New(
	log *slog.Logger,
	cfg config.SweeperConfig,
	dedupStore dedup.Store,
	links owners.LinkRepository,
	paymentsSvc *payments.Service,
) *Sweeper {
	return &Sweeper{
		cron:      cron.New(),
		dedup:     dedupStore,
		links:     links,
		payments:  paymentsSvc,
		retention: cfg.DedupRetention,
		schedule:  cfg.Schedule,
		logger:    log.With(slog.String("service", "sweeper")),
		now:       time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }

// Start schedules the sweep and runs the cron loop in the background.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("sweep failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("sweeper started", slog.String("schedule", s.schedule))
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep runs all retention jobs once. Each job runs even when an
// earlier one failed; the first error is returned.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.now().UTC()
	var firstErr error

	dropped, err := s.dedup.PurgeOlderThan(ctx, now.Add(-s.retention))
	if err != nil {
		firstErr = fmt.Errorf("purge dedup markers: %w", err)
	} else if dropped > 0 {
		s.logger.Info("dedup markers purged", slog.Int64("count", dropped))
	}

	expired, err := s.links.PurgeExpired(ctx, now)
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("purge magic links: %w", err)
	} else if err == nil && expired > 0 {
		s.logger.Info("expired magic links purged", slog.Int64("count", expired))
	}

	if err := s.payments.ExpireStale(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
