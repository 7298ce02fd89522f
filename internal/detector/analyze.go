package detector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/helixpay/payguard/internal/assessor"
	"github.com/helixpay/payguard/internal/directory"
	"github.com/helixpay/payguard/internal/fusion"
	"github.com/helixpay/payguard/internal/geo"
	"github.com/helixpay/payguard/internal/idgen"
	"github.com/helixpay/payguard/internal/ledger"
	"github.com/helixpay/payguard/internal/logging"
	"github.com/helixpay/payguard/internal/metrics"
	"github.com/helixpay/payguard/internal/rules"
	"github.com/helixpay/payguard/internal/traces"
	"github.com/helixpay/payguard/internal/verdict"
)

// AnalyzeFraudRisk runs one fraud check end to end. The only errors it
// returns are rejected requests (IsValidationError); everything else
// degrades to a safe ALLOW verdict so the caller always gets an answer.
func (s *Service) AnalyzeFraudRisk(ctx context.Context, req *CheckRequest) (*verdict.Verdict, error) {
	ctx, span := traces.StartSpan(ctx, "detector.AnalyzeFraudRisk", traces.ActorID(req.ActorID))
	defer span.End()

	start := s.now()

	amount, account, err := s.validate(ctx, req)
	if err != nil {
		if IsValidationError(err) {
			return nil, err
		}
		logging.L(ctx).Error("fraud check validation failed internally", "error", err)
		return s.record(ctx, s.safeVerdict(req, start)), nil
	}

	v := s.score(ctx, req, amount, account, start)
	ctx = logging.WithCheckID(ctx, v.ID)

	if err := s.moveMoney(ctx, v, req); err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			// Balance raced away between the pre-check and the movement.
			// Still a rejected request: no custody state, no verdict row.
			return nil, ErrInsufficientBalance
		}
		logging.L(ctx).Error("custody execution failed", "error", err)
		v = s.safeVerdict(req, start)
	}

	return s.record(ctx, v), nil
}

// score runs geo, rules and the AI assessor and fuses the result. It never
// fails: a panic anywhere in scoring yields the safe default verdict.
func (s *Service) score(ctx context.Context, req *CheckRequest, amount float64, account *directory.Account, start time.Time) (v *verdict.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			logging.L(ctx).Error("fraud scoring panicked", "panic", fmt.Sprint(r), "actor_id", req.ActorID)
			v = s.safeVerdict(req, start)
		}
	}()

	recent := s.recentActivity(ctx, req.ActorID)

	// The assessor call is the one slow operation; issue it first so rules
	// and geo run while it is in flight.
	aiCh := make(chan aiResult, 1)
	go s.assess(ctx, req, amount, account, recent, aiCh)

	signal, snapshot := s.geoSignal(ctx, req)

	ec := &rules.EvalContext{
		Tx: rules.Transaction{
			ActorID:        req.ActorID,
			CounterpartyID: req.CounterpartyID,
			Amount:         amount,
			Kind:           rules.Kind(req.Kind),
		},
		Account: rules.Account{CreatedAt: account.CreatedAt},
		Recent:  recent,
		Geo:     signal,
		Now:     start,
	}
	ruleResult := s.engine.Evaluate(ec)
	for _, tr := range ruleResult.Triggered {
		metrics.RulesFiredTotal.WithLabelValues(tr.Name).Inc()
	}

	ai := s.awaitAssessment(ctx, aiCh)

	unavailable := ai.err != nil || ai.assessment == nil
	var aiScore, aiConfidence int
	if !unavailable {
		aiScore, aiConfidence = ai.assessment.RiskScore, ai.assessment.Confidence
	}

	final := fusion.Fuse(ruleResult.Score, aiScore, aiConfidence, unavailable, s.strategy)
	action := fusion.ActionForScore(final)

	method := verdict.MethodRulesAndAI
	if unavailable {
		method = verdict.MethodRulesOnly
	}

	v = &verdict.Verdict{
		ID:              idgen.WithPrefix("vrd_"),
		ActorID:         req.ActorID,
		Amount:          req.Amount,
		Kind:            req.Kind,
		RuleScore:       ruleResult.Score,
		TriggeredRules:  triggeredNames(ruleResult),
		FinalScore:      final,
		RiskLevel:       fusion.LevelForScore(final),
		Action:          action,
		DetectionMethod: method,
		CreatedAt:       start,
	}
	if !unavailable {
		v.AIScore = &ai.assessment.RiskScore
		v.AIConfidence = &ai.assessment.Confidence
		v.AIReasoning = ai.assessment.Reasoning
		v.AIRedFlags = ai.assessment.RedFlags
	}
	if snapshot != nil {
		v.LocationSnapshot = snapshot
	}
	if req.CounterpartyID != "" {
		if cp, err := s.directory.Get(ctx, req.CounterpartyID); err == nil {
			v.Counterparty = &verdict.CounterpartySnapshot{
				UserID:         cp.ID,
				AccountAgeDays: cp.AgeDays(start),
			}
		}
	}
	return v
}

type aiResult struct {
	assessment *assessor.Assessment
	err        error
}

func (s *Service) assess(ctx context.Context, req *CheckRequest, amount float64, account *directory.Account, recent []rules.RecentTx, out chan<- aiResult) {
	defer func() {
		if r := recover(); r != nil {
			out <- aiResult{err: fmt.Errorf("assessor panicked: %v", r)}
		}
	}()

	input := &assessor.Input{
		ActorID:        req.ActorID,
		CounterpartyID: req.CounterpartyID,
		Amount:         amount,
		Kind:           req.Kind,
		AccountAgeDays: account.AgeDays(s.now()),
	}
	for _, tx := range recent {
		input.Recent = append(input.Recent, assessor.RecentTx{Amount: tx.Amount, CreatedAt: tx.CreatedAt})
	}

	a, err := s.assessor.Assess(ctx, input)
	out <- aiResult{assessment: a, err: err}
}

// awaitAssessment waits for the assessor goroutine with a backstop timeout.
// The assessor applies its own hard deadline; the backstop only matters if
// that deadline is misconfigured.
func (s *Service) awaitAssessment(ctx context.Context, aiCh <-chan aiResult) aiResult {
	var res aiResult
	select {
	case res = <-aiCh:
	case <-time.After(s.aiWait):
		res = aiResult{err: &assessor.Error{Code: assessor.CodeAPIError, Err: errors.New("assessment abandoned after wait")}}
	}

	switch {
	case res.err != nil:
		code := assessor.CodeOf(res.err)
		metrics.AssessorCallsTotal.WithLabelValues(strings.ToLower(string(code))).Inc()
		logging.L(ctx).Warn("ai assessment unavailable", "code", string(code), "error", res.err)
	case res.assessment != nil:
		metrics.AssessorCallsTotal.WithLabelValues("success").Inc()
	}
	return res
}

// geoSignal resolves the source IP and compares it with the actor's most
// recent located verdict. Resolution failures leave the check without a
// geo signal rather than failing it.
func (s *Service) geoSignal(ctx context.Context, req *CheckRequest) (*geo.Signal, *geo.Location) {
	if req.SourceIP == "" || s.resolver == nil {
		return nil, nil
	}

	cur, err := s.resolver.Resolve(req.SourceIP)
	if err != nil {
		logging.L(ctx).Warn("geo resolution failed", "ip", req.SourceIP, "error", err)
		return nil, nil
	}

	prior := s.priorSnapshot(ctx, req.ActorID)
	signal := geo.Check(prior, cur, s.now())
	return &signal, &cur
}

// priorSnapshot finds the actor's most recent verdict with usable
// coordinates.
func (s *Service) priorSnapshot(ctx context.Context, actorID string) *geo.Snapshot {
	history, err := s.verdicts.ListByActor(ctx, actorID, 10)
	if err != nil {
		logging.L(ctx).Warn("prior location lookup failed", "error", err)
		return nil
	}
	for _, v := range history {
		if v.LocationSnapshot != nil && v.LocationSnapshot.HasCoordinates() {
			return &geo.Snapshot{Location: *v.LocationSnapshot, ObservedAt: v.CreatedAt}
		}
	}
	return nil
}

// recentActivity maps the actor's outgoing ledger entries to the shape the
// rules read. Failures degrade to an empty history.
func (s *Service) recentActivity(ctx context.Context, actorID string) []rules.RecentTx {
	entries, err := s.ledger.GetHistory(ctx, actorID, 50)
	if err != nil {
		logging.L(ctx).Warn("recent activity lookup failed", "error", err)
		return nil
	}

	var recent []rules.RecentTx
	for _, e := range entries {
		if e.Type != "transfer_out" && e.Type != "hold" {
			continue
		}
		cents, err := ledger.ParseAmount(e.Amount)
		if err != nil {
			continue
		}
		recent = append(recent, rules.RecentTx{Amount: float64(cents) / 100, CreatedAt: e.CreatedAt})
	}
	return recent
}

// moveMoney applies the decision to the ledger. Transfers and withdrawals
// go through custody; top-ups only ever credit, so a holding action simply
// refuses the credit until review.
func (s *Service) moveMoney(ctx context.Context, v *verdict.Verdict, req *CheckRequest) error {
	switch rules.Kind(req.Kind) {
	case rules.KindTopUp:
		if v.Action.Holds() {
			return nil
		}
		return s.ledger.TopUp(ctx, req.ActorID, req.Amount, "wallet top-up")
	case rules.KindWithdrawal:
		_, err := s.custody.Execute(ctx, v.Action, v.ID, req.ActorID, WithdrawalAccount, req.Amount)
		return err
	default:
		_, err := s.custody.Execute(ctx, v.Action, v.ID, req.ActorID, req.CounterpartyID, req.Amount)
		return err
	}
}

// record persists the verdict and emits the check metrics. Persistence
// failure is logged, not surfaced; the caller still gets the verdict.
func (s *Service) record(ctx context.Context, v *verdict.Verdict) *verdict.Verdict {
	if v.ID == "" {
		v.ID = idgen.WithPrefix("vrd_")
	}
	v.ExecutionTimeMs = s.now().Sub(v.CreatedAt).Milliseconds()

	if err := s.verdicts.Create(ctx, v); err != nil {
		logging.L(ctx).Error("failed to persist verdict", "verdict_id", v.ID, "error", err)
	}

	metrics.ChecksTotal.WithLabelValues(string(v.Action), string(v.DetectionMethod)).Inc()
	metrics.CheckDuration.Observe(float64(v.ExecutionTimeMs) / 1000)

	logging.L(ctx).Info("fraud check complete",
		"verdict_id", v.ID,
		"actor_id", v.ActorID,
		"action", string(v.Action),
		"final_score", v.FinalScore,
		"rule_score", v.RuleScore,
		"method", string(v.DetectionMethod),
		"execution_ms", v.ExecutionTimeMs,
	)
	return v
}

// safeVerdict is the degraded answer for internal failures: the wallet
// stays up, the check records that detection errored.
func (s *Service) safeVerdict(req *CheckRequest, start time.Time) *verdict.Verdict {
	return &verdict.Verdict{
		ID:              idgen.WithPrefix("vrd_"),
		ActorID:         req.ActorID,
		Amount:          req.Amount,
		Kind:            req.Kind,
		FinalScore:      0,
		RiskLevel:       fusion.LevelMinimal,
		Action:          fusion.ActionAllow,
		DetectionMethod: verdict.MethodError,
		CreatedAt:       start,
	}
}

func triggeredNames(r *rules.Result) []string {
	names := make([]string, 0, len(r.Triggered))
	for _, t := range r.Triggered {
		names = append(names, t.Name)
	}
	return names
}
