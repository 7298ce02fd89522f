// Package groundtruth attaches fraud/legitimate labels to verdicts and
// derives detection-quality metrics from them. Every labeled verdict lands
// in exactly one confusion-matrix cell, and the report is always recomputed
// from the stored rows so a revoked label retroactively corrects the counts.
package groundtruth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/helixpay/payguard/internal/logging"
	"github.com/helixpay/payguard/internal/metrics"
	"github.com/helixpay/payguard/internal/verdict"
)

var (
	ErrInvalidLabel = errors.New("label must be fraud or legitimate")
	ErrSameLabel    = errors.New("revoke must change the label")
)

// Report is the confusion matrix plus the derived detection metrics.
// Every ratio is guarded: an empty denominator yields 0, not NaN.
type Report struct {
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	TrueNegatives  int `json:"true_negatives"`
	FalseNegatives int `json:"false_negatives"`
	Total          int `json:"total"`

	Precision         float64 `json:"precision"`
	Recall            float64 `json:"recall"`
	Specificity       float64 `json:"specificity"`
	Accuracy          float64 `json:"accuracy"`
	F1                float64 `json:"f1"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	FalseNegativeRate float64 `json:"false_negative_rate"`
}

// Service labels verdicts and reports on detection quality.
type Service struct {
	verdicts verdict.Store
	now      func() time.Time
}

// NewService creates a ground-truth service over a verdict store.
func NewService(verdicts verdict.Store) *Service {
	return &Service{verdicts: verdicts, now: time.Now}
}

// WithClock overrides the service clock for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Verify attaches the one ground-truth label a verdict gets. The confusion
// class is derived from the verdict's action and the label, never supplied.
func (s *Service) Verify(ctx context.Context, verdictID string, label verdict.Label, reviewerID string) (*verdict.Annotation, error) {
	if label != verdict.LabelFraud && label != verdict.LabelLegitimate {
		return nil, ErrInvalidLabel
	}

	v, err := s.verdicts.Get(ctx, verdictID)
	if err != nil {
		return nil, err
	}

	a := &verdict.Annotation{
		Label:          label,
		ConfusionClass: verdict.Classify(v.Action, label),
		VerifiedBy:     reviewerID,
		VerifiedAt:     s.now(),
	}
	if err := s.verdicts.AttachLabel(ctx, verdictID, a); err != nil {
		return nil, err
	}
	metrics.GroundTruthLabelsTotal.WithLabelValues(string(a.ConfusionClass)).Inc()

	logging.L(ctx).Info("verdict labeled",
		"verdict_id", verdictID,
		"label", string(label),
		"confusion_class", string(a.ConfusionClass),
		"verified_by", reviewerID,
	)
	return a, nil
}

// Revoke replaces an existing label, recording the old one and the reason.
// The confusion class is re-derived, so a BLOCK flips TN-style bookkeeping
// cleanly (e.g. FP becomes TP).
func (s *Service) Revoke(ctx context.Context, verdictID string, newLabel verdict.Label, reviewerID, reason string) (*verdict.Annotation, error) {
	if newLabel != verdict.LabelFraud && newLabel != verdict.LabelLegitimate {
		return nil, ErrInvalidLabel
	}
	if reason == "" {
		return nil, fmt.Errorf("revoke reason is required")
	}

	v, err := s.verdicts.Get(ctx, verdictID)
	if err != nil {
		return nil, err
	}
	if v.Annotation == nil {
		return nil, verdict.ErrNotLabeled
	}
	if v.Annotation.Label == newLabel {
		return nil, ErrSameLabel
	}

	a := &verdict.Annotation{
		Label:          newLabel,
		ConfusionClass: verdict.Classify(v.Action, newLabel),
		VerifiedBy:     reviewerID,
		VerifiedAt:     s.now(),
		RevokedFrom:    v.Annotation.Label,
		RevokeReason:   reason,
	}
	if err := s.verdicts.ReplaceLabel(ctx, verdictID, a); err != nil {
		return nil, err
	}

	logging.L(ctx).Info("verdict label revoked",
		"verdict_id", verdictID,
		"from", string(a.RevokedFrom),
		"to", string(newLabel),
		"verified_by", reviewerID,
	)
	return a, nil
}

// LabeledFraud reports whether a verdict currently carries a fraud label.
// A missing verdict counts as not fraud.
func (s *Service) LabeledFraud(ctx context.Context, verdictID string) (bool, error) {
	v, err := s.verdicts.Get(ctx, verdictID)
	if errors.Is(err, verdict.ErrVerdictNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v.Annotation != nil && v.Annotation.Label == verdict.LabelFraud, nil
}

// Report computes the confusion matrix and derived metrics over all
// labeled verdicts.
func (s *Service) Report(ctx context.Context) (*Report, error) {
	labeled, err := s.verdicts.ListLabeled(ctx)
	if err != nil {
		return nil, err
	}

	var r Report
	for _, v := range labeled {
		switch v.Annotation.ConfusionClass {
		case verdict.TruePositive:
			r.TruePositives++
		case verdict.FalsePositive:
			r.FalsePositives++
		case verdict.TrueNegative:
			r.TrueNegatives++
		case verdict.FalseNegative:
			r.FalseNegatives++
		}
	}
	r.Total = len(labeled)

	tp, fp := float64(r.TruePositives), float64(r.FalsePositives)
	tn, fn := float64(r.TrueNegatives), float64(r.FalseNegatives)

	r.Precision = ratio(tp, tp+fp)
	r.Recall = ratio(tp, tp+fn)
	r.Specificity = ratio(tn, tn+fp)
	r.Accuracy = ratio(tp+tn, float64(r.Total))
	r.F1 = ratio(2*r.Precision*r.Recall, r.Precision+r.Recall)
	r.FalsePositiveRate = ratio(fp, fp+tn)
	r.FalseNegativeRate = ratio(fn, fn+tp)
	return &r, nil
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
