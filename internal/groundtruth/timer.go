package groundtruth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/helixpay/payguard/internal/fusion"
	"github.com/helixpay/payguard/internal/verdict"
)

// SweepReviewer is the reviewer recorded on auto-approved labels, so audits
// can tell human labels from backlog hygiene.
const SweepReviewer = "system_sweep"

// sweepAge is how long a REVIEW verdict may sit unlabeled before the sweep
// considers it.
const sweepAge = 24 * time.Hour

// Timer periodically auto-approves stale low-risk REVIEW verdicts to bound
// the manual review backlog. BLOCK verdicts are never touched.
type Timer struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
}

// NewTimer creates a new auto-approval sweep timer.
func NewTimer(service *Service, logger *slog.Logger) *Timer {
	return &Timer{
		service:  service,
		interval: 30 * time.Minute,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweep(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) sweep(ctx context.Context) {
	count, err := t.service.SweepStaleReviews(ctx)
	if err != nil {
		t.logger.Warn("ground-truth sweep failed", "error", err)
		return
	}
	if count > 0 {
		t.logger.Info("stale review verdicts auto-approved", "count", count)
	}
}

// SweepStaleReviews labels every REVIEW verdict below HIGH risk that has
// sat unlabeled for longer than the sweep age as legitimate. It returns
// how many verdicts were labeled.
func (s *Service) SweepStaleReviews(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-sweepAge)
	stale, err := s.verdicts.ListUnlabeled(ctx, fusion.ActionReview, cutoff)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, v := range stale {
		if !fusion.LevelBelow(v.RiskLevel, fusion.LevelHigh) {
			continue
		}
		_, err := s.Verify(ctx, v.ID, verdict.LabelLegitimate, SweepReviewer)
		if errors.Is(err, verdict.ErrAlreadyLabeled) {
			continue
		}
		if err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}
