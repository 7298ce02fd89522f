package groundtruth

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/helixpay/payguard/internal/fusion"
	"github.com/helixpay/payguard/internal/verdict"
)

func seedVerdict(t *testing.T, store verdict.Store, id string, score int, action fusion.Action, createdAt time.Time) {
	t.Helper()
	err := store.Create(context.Background(), &verdict.Verdict{
		ID:              id,
		ActorID:         "alice",
		Amount:          "100.00",
		Kind:            "transfer",
		RuleScore:       score,
		FinalScore:      score,
		RiskLevel:       fusion.LevelForScore(score),
		Action:          action,
		DetectionMethod: verdict.MethodRulesOnly,
		CreatedAt:       createdAt,
	})
	if err != nil {
		t.Fatalf("seed verdict %s: %v", id, err)
	}
}

func TestVerifyDerivesConfusionClass(t *testing.T) {
	ctx := context.Background()
	store := verdict.NewMemoryStore()
	svc := NewService(store)

	seedVerdict(t, store, "vrd_1", 85, fusion.ActionBlock, time.Now())

	a, err := svc.Verify(ctx, "vrd_1", verdict.LabelFraud, "admin_1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if a.ConfusionClass != verdict.TruePositive {
		t.Errorf("BLOCK x fraud = %s, want TP", a.ConfusionClass)
	}

	if _, err := svc.Verify(ctx, "vrd_1", verdict.LabelLegitimate, "admin_2"); !errors.Is(err, verdict.ErrAlreadyLabeled) {
		t.Errorf("second verify: expected ErrAlreadyLabeled, got %v", err)
	}
}

func TestVerifyRejectsUnknownLabel(t *testing.T) {
	svc := NewService(verdict.NewMemoryStore())
	if _, err := svc.Verify(context.Background(), "vrd_1", "maybe", "admin_1"); !errors.Is(err, ErrInvalidLabel) {
		t.Errorf("expected ErrInvalidLabel, got %v", err)
	}
}

func TestRevokeFlipsClassAndKeepsAudit(t *testing.T) {
	ctx := context.Background()
	store := verdict.NewMemoryStore()
	svc := NewService(store)

	seedVerdict(t, store, "vrd_1", 85, fusion.ActionBlock, time.Now())
	if _, err := svc.Verify(ctx, "vrd_1", verdict.LabelLegitimate, "admin_1"); err != nil {
		t.Fatalf("verify: %v", err)
	}

	a, err := svc.Revoke(ctx, "vrd_1", verdict.LabelFraud, "admin_2", "chargeback confirmed")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if a.ConfusionClass != verdict.TruePositive {
		t.Errorf("revoked class = %s, want TP", a.ConfusionClass)
	}
	if a.RevokedFrom != verdict.LabelLegitimate || a.RevokeReason != "chargeback confirmed" {
		t.Errorf("audit fields missing: %+v", a)
	}

	if _, err := svc.Revoke(ctx, "vrd_1", verdict.LabelFraud, "admin_2", "again"); !errors.Is(err, ErrSameLabel) {
		t.Errorf("same-label revoke: expected ErrSameLabel, got %v", err)
	}
	if _, err := svc.Revoke(ctx, "vrd_1", verdict.LabelLegitimate, "admin_2", ""); err == nil {
		t.Errorf("expected error for empty revoke reason")
	}
}

func TestReportMetrics(t *testing.T) {
	ctx := context.Background()
	store := verdict.NewMemoryStore()
	svc := NewService(store)
	now := time.Now()

	// 3 TP, 1 FP, 4 TN, 2 FN.
	labels := []struct {
		id     string
		action fusion.Action
		label  verdict.Label
	}{
		{"v1", fusion.ActionBlock, verdict.LabelFraud},
		{"v2", fusion.ActionBlock, verdict.LabelFraud},
		{"v3", fusion.ActionReview, verdict.LabelFraud},
		{"v4", fusion.ActionReview, verdict.LabelLegitimate},
		{"v5", fusion.ActionAllow, verdict.LabelLegitimate},
		{"v6", fusion.ActionAllow, verdict.LabelLegitimate},
		{"v7", fusion.ActionChallenge, verdict.LabelLegitimate},
		{"v8", fusion.ActionChallenge, verdict.LabelLegitimate},
		{"v9", fusion.ActionAllow, verdict.LabelFraud},
		{"v10", fusion.ActionChallenge, verdict.LabelFraud},
	}
	for _, l := range labels {
		seedVerdict(t, store, l.id, 50, l.action, now)
		if _, err := svc.Verify(ctx, l.id, l.label, "admin_1"); err != nil {
			t.Fatalf("verify %s: %v", l.id, err)
		}
	}

	r, err := svc.Report(ctx)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if r.TruePositives != 3 || r.FalsePositives != 1 || r.TrueNegatives != 4 || r.FalseNegatives != 2 {
		t.Fatalf("confusion matrix = %d/%d/%d/%d, want 3/1/4/2",
			r.TruePositives, r.FalsePositives, r.TrueNegatives, r.FalseNegatives)
	}

	approx := func(got, want float64) bool { return got > want-0.0001 && got < want+0.0001 }
	if !approx(r.Precision, 0.75) {
		t.Errorf("precision = %f, want 0.75", r.Precision)
	}
	if !approx(r.Recall, 0.6) {
		t.Errorf("recall = %f, want 0.6", r.Recall)
	}
	if !approx(r.Specificity, 0.8) {
		t.Errorf("specificity = %f, want 0.8", r.Specificity)
	}
	if !approx(r.Accuracy, 0.7) {
		t.Errorf("accuracy = %f, want 0.7", r.Accuracy)
	}
	if !approx(r.F1, 2*0.75*0.6/(0.75+0.6)) {
		t.Errorf("f1 = %f", r.F1)
	}
	if !approx(r.FalsePositiveRate, 0.2) {
		t.Errorf("fpr = %f, want 0.2", r.FalsePositiveRate)
	}
	if !approx(r.FalseNegativeRate, 0.4) {
		t.Errorf("fnr = %f, want 0.4", r.FalseNegativeRate)
	}
}

func TestReportEmptyIsAllZeros(t *testing.T) {
	svc := NewService(verdict.NewMemoryStore())
	r, err := svc.Report(context.Background())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if r.Total != 0 || r.Precision != 0 || r.Recall != 0 || r.F1 != 0 || r.Accuracy != 0 {
		t.Errorf("empty report should be all zeros: %+v", r)
	}
}

func TestSweepStaleReviews(t *testing.T) {
	ctx := context.Background()
	store := verdict.NewMemoryStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := NewService(store).WithClock(func() time.Time { return now })

	// Stale low-band REVIEW: swept.
	seedVerdict(t, store, "vrd_stale_low", 62, fusion.ActionReview, now.Add(-30*time.Hour))
	// Stale high-band REVIEW: left for a human.
	seedVerdict(t, store, "vrd_stale_high", 75, fusion.ActionReview, now.Add(-30*time.Hour))
	// Fresh low-band REVIEW: not old enough.
	seedVerdict(t, store, "vrd_fresh", 62, fusion.ActionReview, now.Add(-2*time.Hour))
	// Stale BLOCK: never swept.
	seedVerdict(t, store, "vrd_block", 90, fusion.ActionBlock, now.Add(-30*time.Hour))

	count, err := svc.SweepStaleReviews(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("swept %d verdicts, want 1", count)
	}

	swept, _ := store.Get(ctx, "vrd_stale_low")
	if !swept.Labeled() || swept.Annotation.Label != verdict.LabelLegitimate {
		t.Errorf("stale low-band review not auto-approved")
	}
	if swept.Annotation.VerifiedBy != SweepReviewer {
		t.Errorf("sweep label attributed to %q, want %q", swept.Annotation.VerifiedBy, SweepReviewer)
	}

	for _, id := range []string{"vrd_stale_high", "vrd_fresh", "vrd_block"} {
		v, _ := store.Get(ctx, id)
		if v.Labeled() {
			t.Errorf("%s should not be swept", id)
		}
	}
}

func TestExportCSV(t *testing.T) {
	ctx := context.Background()
	store := verdict.NewMemoryStore()
	svc := NewService(store)
	now := time.Now()

	seedVerdict(t, store, "vrd_1", 85, fusion.ActionBlock, now)
	seedVerdict(t, store, "vrd_2", 10, fusion.ActionAllow, now)
	seedVerdict(t, store, "vrd_unlabeled", 50, fusion.ActionChallenge, now)
	if _, err := svc.Verify(ctx, "vrd_1", verdict.LabelFraud, "admin_1"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := svc.Verify(ctx, "vrd_2", verdict.LabelLegitimate, "admin_1"); err != nil {
		t.Fatalf("verify: %v", err)
	}

	var buf bytes.Buffer
	if err := svc.ExportCSV(ctx, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "verdict_id,") {
		t.Errorf("missing header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "vrd_1") || !strings.HasSuffix(lines[1], "1,0,0,0") {
		t.Errorf("TP row flags wrong: %q", lines[1])
	}
	if !strings.Contains(lines[2], "vrd_2") || !strings.HasSuffix(lines[2], "0,0,1,0") {
		t.Errorf("TN row flags wrong: %q", lines[2])
	}
}
