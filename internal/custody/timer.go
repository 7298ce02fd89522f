package custody

import (
	"context"
	"log/slog"
	"time"

	"github.com/helixpay/payguard/internal/fusion"
)

// SweepSettledBy is the resolver recorded on auto-released transfers.
const SweepSettledBy = "system_expiry"

// FraudChecker reports whether a verdict carries a fraud label. The timer
// uses it to refuse auto-release of money tied to confirmed fraud.
type FraudChecker interface {
	LabeledFraud(ctx context.Context, verdictID string) (bool, error)
}

// Timer periodically releases review holds whose hold window has passed.
// Block holds are never auto-resolved; those wait for an admin.
type Timer struct {
	service  *Service
	fraud    FraudChecker
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
}

// NewTimer creates a new hold-expiry timer.
func NewTimer(service *Service, fraud FraudChecker, logger *slog.Logger) *Timer {
	return &Timer{
		service:  service,
		fraud:    fraud,
		interval: 5 * time.Minute,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the expiry loop. Call in a goroutine.
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
			t.releaseExpired(ctx)
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

func (t *Timer) releaseExpired(ctx context.Context) {
	expired, err := t.service.store.ListExpiredHeld(ctx, string(fusion.ActionReview), t.service.now())
	if err != nil {
		t.logger.Warn("failed to list expired holds", "error", err)
		return
	}

	released := 0
	for _, tr := range expired {
		isFraud, err := t.fraud.LabeledFraud(ctx, tr.VerdictID)
		if err != nil {
			t.logger.Warn("failed to check fraud label", "transfer_id", tr.ID, "error", err)
			continue
		}
		if isFraud {
			continue
		}
		if _, err := t.service.Release(ctx, tr.ID, SweepSettledBy); err != nil {
			t.logger.Warn("failed to auto-release hold", "transfer_id", tr.ID, "error", err)
			continue
		}
		released++
	}
	if released > 0 {
		t.logger.Info("expired review holds released", "count", released)
	}
}
