package groundtruth

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/helixpay/payguard/internal/verdict"
)

// ExportCSV writes all labeled verdicts as CSV. The four confusion columns
// are 0/1 flags so the file loads straight into analysis tooling.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	labeled, err := s.verdicts.ListLabeled(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{
		"verdict_id", "actor_id", "amount", "kind", "action", "final_score",
		"risk_level", "label", "verified_by", "verified_at",
		"tp", "fp", "tn", "fn",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, v := range labeled {
		row := []string{
			v.ID,
			v.ActorID,
			v.Amount,
			v.Kind,
			string(v.Action),
			strconv.Itoa(v.FinalScore),
			string(v.RiskLevel),
			string(v.Annotation.Label),
			v.Annotation.VerifiedBy,
			v.Annotation.VerifiedAt.UTC().Format("2006-01-02T15:04:05Z"),
			flag(v.Annotation.ConfusionClass == verdict.TruePositive),
			flag(v.Annotation.ConfusionClass == verdict.FalsePositive),
			flag(v.Annotation.ConfusionClass == verdict.TrueNegative),
			flag(v.Annotation.ConfusionClass == verdict.FalseNegative),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
