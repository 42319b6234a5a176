package service

import (
	"context"
	"fmt"
	"math"

	"autobook/internal/jurisdiction"
	"autobook/internal/llm"
	"autobook/internal/models"
	"autobook/internal/rules"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type Escalator interface {
	Escalate(ctx context.Context, prompt string) *llm.Judgement
}

// DecisionRecorder stores the current decision of a tenant's transaction,
// superseding older ones.
type DecisionRecorder interface {
	SaveCurrent(ctx context.Context, tenantID string, d *models.ClassificationDecision) error
}

type DecisionConfig struct {
	// AllowAmountCorrection lets an accepted model judgement replace the transaction amount.
	AllowAmountCorrection bool
}

type DecisionService struct {
	profiles   *jurisdiction.Store
	classifier *rules.Classifier
	escalator  Escalator
	recorder   DecisionRecorder
	clock      clockwork.Clock
	cfg        DecisionConfig
	logger     *zap.Logger
}

func NewDecisionService(
	profiles *jurisdiction.Store,
	classifier *rules.Classifier,
	escalator Escalator,
	recorder DecisionRecorder,
	clock clockwork.Clock,
	cfg DecisionConfig,
	logger *zap.Logger,
) *DecisionService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DecisionService{
		profiles:   profiles,
		classifier: classifier,
		escalator:  escalator,
		recorder:   recorder,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *DecisionService) EvaluateTransaction(ctx context.Context, tx models.CanonicalTransaction) (*models.ClassificationDecision, error) {
	clean := SanitizeTransaction(tx, s.clock)
	if err := clean.Validate(); err != nil {
		return nil, err
	}

	profile := s.profiles.Resolve(clean.CountryCode)
	verdict := s.classifier.Classify(clean)

	if verdict.Rank == models.RankOK && verdict.Confidence < profile.ReviewConfidenceThreshold {
		verdict.Rank = models.RankReview
		verdict.Reason += fmt.Sprintf("; below %s threshold %.2f", profile.CountryCode, profile.ReviewConfidenceThreshold)
	}

	decision := s.fromVerdict(clean, profile, verdict)

	if verdict.Rank == models.RankReview && s.escalator != nil {
		if j := s.escalator.Escalate(ctx, llm.BuildPrompt(clean, profile, verdict)); j != nil {
			decision = s.merge(decision, profile, j)
		}
	}

	s.logger.Info("Transaction evaluated",
		zap.String("transaction_id", decision.TransactionID),
		zap.String("rank", string(decision.Rank)),
		zap.Float64("confidence", decision.Confidence),
		zap.String("model_version", decision.ModelVersion),
	)
	return decision, nil
}

// EvaluateForTenant evaluates a transaction and records the decision under the
// tenant's scope. Anonymous tenants are evaluated without recording.
func (s *DecisionService) EvaluateForTenant(ctx context.Context, tenant models.TenantContext, tx models.CanonicalTransaction) (*models.ClassificationDecision, error) {
	decision, err := s.EvaluateTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}

	scope := tenant.Scope()
	if s.recorder == nil || scope == "" {
		return decision, nil
	}
	if err := s.recorder.SaveCurrent(ctx, scope, decision); err != nil {
		return nil, fmt.Errorf("failed to record decision: %w", err)
	}
	return decision, nil
}

type EvaluationOutcome struct {
	TransactionID string                         `json:"transaction_id"`
	Decision      *models.ClassificationDecision `json:"decision,omitempty"`
	Error         string                         `json:"error,omitempty"`
}

// EvaluateBatch evaluates transactions one after another. A failing item does not stop the rest.
func (s *DecisionService) EvaluateBatch(ctx context.Context, tenant models.TenantContext, txs []models.CanonicalTransaction) []EvaluationOutcome {
	out := make([]EvaluationOutcome, 0, len(txs))
	for _, tx := range txs {
		d, err := s.EvaluateForTenant(ctx, tenant, tx)
		item := EvaluationOutcome{TransactionID: tx.TransactionID, Decision: d}
		if err != nil {
			s.logger.Warn("Failed to evaluate transaction", zap.String("transaction_id", tx.TransactionID), zap.Error(err))
			item.Error = err.Error()
		}
		out = append(out, item)
	}
	return out
}

func (s *DecisionService) fromVerdict(tx models.CanonicalTransaction, profile models.JurisdictionProfile, v rules.Verdict) *models.ClassificationDecision {
	d := &models.ClassificationDecision{
		DecisionID:     uuid.New().String(),
		TransactionID:  tx.TransactionID,
		Rank:           v.Rank,
		IsExpense:      v.IsExpense,
		AllocationRate: math.Min(clampRate(v.BusinessRatio), profile.MaxAllocationRate),
		Category:       v.Category,
		Amount:         tx.Amount,
		Date:           tx.OccurredAt,
		Reason:         truncateRunes(v.Reason, 240),
		Confidence:     clampRate(v.Confidence),
		RuleVersion:    profile.RuleVersion,
		ModelVersion:   models.RuleOnlyModelVersion,
		CreatedAt:      s.clock.Now().UTC(),
	}
	if d.Rank == models.RankNG {
		d.IsExpense = false
		d.AllocationRate = 0
	}
	return d
}

// merge applies a model judgement on top of the rule decision. A judgement below
// the jurisdiction threshold is ignored entirely.
func (s *DecisionService) merge(rule *models.ClassificationDecision, profile models.JurisdictionProfile, j *llm.Judgement) *models.ClassificationDecision {
	if j.Confidence < profile.ReviewConfidenceThreshold {
		s.logger.Info("LLM judgement below threshold, keeping rule verdict",
			zap.String("transaction_id", rule.TransactionID),
			zap.String("provider", j.Provider),
			zap.Float64("confidence", j.Confidence),
			zap.Float64("threshold", profile.ReviewConfidenceThreshold),
		)
		return rule
	}

	d := *rule
	d.Confidence = j.Confidence
	d.ModelVersion = j.Provider + ":" + j.Model
	if j.Category != "" {
		d.Category = j.Category
	}
	if j.Reason != "" {
		d.Reason = j.Reason
	}
	if j.Date != "" {
		d.Date = j.Date
	}

	if !j.IsExpense {
		d.Rank = models.RankNG
		d.IsExpense = false
		d.AllocationRate = 0
		return &d
	}

	d.IsExpense = true
	d.Rank = models.RankOK
	if j.Rank == models.RankReview {
		s.logger.Debug("LLM suggested review on an accepted judgement",
			zap.String("transaction_id", d.TransactionID),
			zap.String("provider", j.Provider),
		)
	}
	if j.AllocationRate != nil {
		d.AllocationRate = math.Min(*j.AllocationRate, profile.MaxAllocationRate)
	}

	if j.Amount != nil && *j.Amount != d.Amount {
		if s.cfg.AllowAmountCorrection {
			s.logger.Warn("LLM corrected transaction amount",
				zap.String("transaction_id", d.TransactionID),
				zap.Int64("original", d.Amount),
				zap.Int64("corrected", *j.Amount),
				zap.String("provider", j.Provider),
			)
			d.Amount = *j.Amount
		} else {
			s.logger.Info("Ignoring LLM amount correction",
				zap.String("transaction_id", d.TransactionID),
				zap.Int64("original", d.Amount),
				zap.Int64("suggested", *j.Amount),
			)
		}
	}
	return &d
}

func clampRate(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
