package verdict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/helixpay/payguard/internal/fusion"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		action fusion.Action
		label  Label
		want   ConfusionClass
	}{
		{fusion.ActionBlock, LabelFraud, TruePositive},
		{fusion.ActionReview, LabelFraud, TruePositive},
		{fusion.ActionBlock, LabelLegitimate, FalsePositive},
		{fusion.ActionReview, LabelLegitimate, FalsePositive},
		{fusion.ActionAllow, LabelLegitimate, TrueNegative},
		{fusion.ActionChallenge, LabelLegitimate, TrueNegative},
		{fusion.ActionAllow, LabelFraud, FalseNegative},
		{fusion.ActionChallenge, LabelFraud, FalseNegative},
	}
	for _, tt := range tests {
		if got := Classify(tt.action, tt.label); got != tt.want {
			t.Errorf("Classify(%s, %s) = %s, want %s", tt.action, tt.label, got, tt.want)
		}
	}
}

func mkVerdict(id, actorID string, action fusion.Action, createdAt time.Time) *Verdict {
	return &Verdict{
		ID:              id,
		ActorID:         actorID,
		Amount:          "100.00",
		Kind:            "transfer",
		RuleScore:       30,
		TriggeredRules:  []string{"rapid-fire"},
		FinalScore:      30,
		RiskLevel:       fusion.LevelForScore(30),
		Action:          action,
		DetectionMethod: MethodRulesOnly,
		CreatedAt:       createdAt,
	}
}

func TestAttachLabelExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	if err := store.Create(ctx, mkVerdict("vrd_1", "alice", fusion.ActionReview, now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	a := &Annotation{Label: LabelFraud, ConfusionClass: TruePositive, VerifiedBy: "admin_1", VerifiedAt: now}
	if err := store.AttachLabel(ctx, "vrd_1", a); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := store.AttachLabel(ctx, "vrd_1", a); !errors.Is(err, ErrAlreadyLabeled) {
		t.Errorf("second attach: expected ErrAlreadyLabeled, got %v", err)
	}

	v, err := store.Get(ctx, "vrd_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !v.Labeled() || v.Annotation.Label != LabelFraud {
		t.Errorf("verdict not labeled fraud after attach")
	}
}

func TestReplaceLabelRequiresExisting(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	if err := store.Create(ctx, mkVerdict("vrd_1", "alice", fusion.ActionBlock, now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	a := &Annotation{Label: LabelLegitimate, ConfusionClass: FalsePositive, VerifiedBy: "admin_1", VerifiedAt: now}
	if err := store.ReplaceLabel(ctx, "vrd_1", a); !errors.Is(err, ErrNotLabeled) {
		t.Errorf("replace on unlabeled: expected ErrNotLabeled, got %v", err)
	}

	if err := store.AttachLabel(ctx, "vrd_1", &Annotation{Label: LabelFraud, ConfusionClass: TruePositive, VerifiedBy: "admin_1", VerifiedAt: now}); err != nil {
		t.Fatalf("attach: %v", err)
	}

	a.RevokedFrom = LabelFraud
	a.RevokeReason = "appeal approved"
	if err := store.ReplaceLabel(ctx, "vrd_1", a); err != nil {
		t.Fatalf("replace: %v", err)
	}

	v, _ := store.Get(ctx, "vrd_1")
	if v.Annotation.Label != LabelLegitimate || v.Annotation.RevokedFrom != LabelFraud {
		t.Errorf("replace did not record the revoke: %+v", v.Annotation)
	}
}

func TestListUnlabeledFiltersActionAndAge(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	_ = store.Create(ctx, mkVerdict("vrd_old_review", "alice", fusion.ActionReview, now.Add(-48*time.Hour)))
	_ = store.Create(ctx, mkVerdict("vrd_new_review", "alice", fusion.ActionReview, now.Add(-1*time.Hour)))
	_ = store.Create(ctx, mkVerdict("vrd_old_block", "alice", fusion.ActionBlock, now.Add(-48*time.Hour)))
	_ = store.Create(ctx, mkVerdict("vrd_labeled", "alice", fusion.ActionReview, now.Add(-48*time.Hour)))
	_ = store.AttachLabel(ctx, "vrd_labeled", &Annotation{Label: LabelFraud, ConfusionClass: TruePositive, VerifiedBy: "admin_1", VerifiedAt: now})

	unlabeled, err := store.ListUnlabeled(ctx, fusion.ActionReview, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("list unlabeled: %v", err)
	}
	if len(unlabeled) != 1 || unlabeled[0].ID != "vrd_old_review" {
		t.Errorf("expected only vrd_old_review, got %d verdicts", len(unlabeled))
	}
}

func TestListForHealthNewestFirstWithinWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	_ = store.Create(ctx, mkVerdict("vrd_ancient", "alice", fusion.ActionAllow, now.Add(-200*24*time.Hour)))
	_ = store.Create(ctx, mkVerdict("vrd_old", "alice", fusion.ActionAllow, now.Add(-30*24*time.Hour)))
	_ = store.Create(ctx, mkVerdict("vrd_recent", "alice", fusion.ActionAllow, now.Add(-1*time.Hour)))
	_ = store.Create(ctx, mkVerdict("vrd_other", "bob", fusion.ActionAllow, now))

	vs, err := store.ListForHealth(ctx, "alice", now.Add(-180*24*time.Hour))
	if err != nil {
		t.Fatalf("list for health: %v", err)
	}
	if len(vs) != 2 {
		t.Fatalf("expected 2 verdicts in window, got %d", len(vs))
	}
	if vs[0].ID != "vrd_recent" || vs[1].ID != "vrd_old" {
		t.Errorf("expected newest first, got %s then %s", vs[0].ID, vs[1].ID)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.Create(ctx, mkVerdict("vrd_1", "alice", fusion.ActionAllow, time.Now()))

	v1, _ := store.Get(ctx, "vrd_1")
	v1.TriggeredRules[0] = "mutated"
	v1.FinalScore = 99

	v2, _ := store.Get(ctx, "vrd_1")
	if v2.TriggeredRules[0] != "rapid-fire" || v2.FinalScore != 30 {
		t.Errorf("store returned a shared reference, mutation leaked")
	}
}
