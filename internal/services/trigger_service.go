package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"adpilot/internal/config"
	"adpilot/internal/models"
	"adpilot/internal/repositories"
)

// RollbackTriggerEvaluator decides whether a monitored change should be
// reversed. Oscillation prevention outranks regression detection: a rollback
// that would thrash against a recent opposite-lever change is blocked no
// matter how bad the numbers look.
type RollbackTriggerEvaluator interface {
	Decide(ctx context.Context, original *models.ChangeRecord, delta *models.PerformanceDelta, profile models.KPIProfile) (*models.RollbackDecision, error)
}

type triggerEvaluator struct {
	changesRepo repositories.ChangeRecordsRepository
	policy      *config.RollbackPolicy
}

func NewRollbackTriggerEvaluator(changesRepo repositories.ChangeRecordsRepository, policy *config.RollbackPolicy) RollbackTriggerEvaluator {
	if policy == nil {
		policy = config.DefaultRollbackPolicy()
	}
	return &triggerEvaluator{
		changesRepo: changesRepo,
		policy:      policy,
	}
}

func (t *triggerEvaluator) Decide(ctx context.Context, original *models.ChangeRecord, delta *models.PerformanceDelta, profile models.KPIProfile) (*models.RollbackDecision, error) {
	if blocked, decision, err := t.checkOscillation(ctx, original); err != nil {
		return nil, err
	} else if blocked {
		return decision, nil
	}

	if delta == nil {
		return &models.RollbackDecision{
			ShouldRollback: false,
			Trigger:        models.TriggerInsufficientData,
			Reason:         "performance windows are not complete yet",
		}, nil
	}

	if profile == models.KPIProfileCPA {
		return t.decideCPA(delta), nil
	}
	// ROAS is the default for unknown profiles.
	return t.decideROAS(delta), nil
}

func (t *triggerEvaluator) checkOscillation(ctx context.Context, original *models.ChangeRecord) (bool, *models.RollbackDecision, error) {
	opposite, ok := models.OppositeLever(original.Lever)
	if !ok {
		return false, nil, nil
	}

	since := time.Now().UTC().AddDate(0, 0, -t.policy.OscillationWindowDays)
	conflict, err := t.changesRepo.LatestForCampaignLever(ctx, original.CustomerID, original.CampaignID, opposite, since)
	if err != nil {
		return false, nil, err
	}
	if conflict == nil {
		return false, nil, nil
	}

	return true, &models.RollbackDecision{
		ShouldRollback: false,
		Trigger:        models.TriggerAntiOscillationBlock,
		Reason: fmt.Sprintf("campaign %s had a %s change on %s, within the %d-day oscillation window",
			original.CampaignID, opposite, conflict.ExecutedAt.Format("2006-01-02"), t.policy.OscillationWindowDays),
		Evidence: models.JSONB{
			"conflicting_change_id": conflict.ID.String(),
			"conflicting_lever":     string(opposite),
			"conflict_executed_at":  conflict.ExecutedAt.Format(time.RFC3339),
		},
	}, nil
}

// decideCPA applies the AND rule: CPA must have worsened past the threshold
// AND conversions must have dropped past theirs. A CPA rise with flat volume
// is not by itself sufficient cause.
func (t *triggerEvaluator) decideCPA(delta *models.PerformanceDelta) *models.RollbackDecision {
	cpaWorsened := delta.CPAChangePct > t.policy.CPAWorsenPct
	conversionsDropped := delta.ConversionsChangePct < -t.policy.ConversionsDropPct

	if cpaWorsened && conversionsDropped {
		cpaExcess := excessRatio(delta.CPAChangePct, t.policy.CPAWorsenPct)
		convExcess := excessRatio(-delta.ConversionsChangePct, t.policy.ConversionsDropPct)
		return &models.RollbackDecision{
			ShouldRollback: true,
			Trigger:        models.TriggerCPARegression,
			Confidence:     t.confidence((cpaExcess + convExcess) / 2),
			Reason: fmt.Sprintf("CPA worsened %.1f%% (threshold %.0f%%) and conversions dropped %.1f%% (threshold %.0f%%)",
				delta.CPAChangePct, t.policy.CPAWorsenPct, -delta.ConversionsChangePct, t.policy.ConversionsDropPct),
			Evidence: deltaEvidence(delta),
		}
	}

	return &models.RollbackDecision{
		ShouldRollback: false,
		Trigger:        models.TriggerNone,
		Reason:         "CPA regression rule not met",
		Evidence:       deltaEvidence(delta),
	}
}

// decideROAS applies the OR rule: either a ROAS drop or a conversion-value
// drop past its threshold is sufficient cause.
func (t *triggerEvaluator) decideROAS(delta *models.PerformanceDelta) *models.RollbackDecision {
	if delta.ROASChangePct < -t.policy.ROASWorsenPct {
		excess := excessRatio(-delta.ROASChangePct, t.policy.ROASWorsenPct)
		return &models.RollbackDecision{
			ShouldRollback: true,
			Trigger:        models.TriggerROASRegression,
			Confidence:     t.confidence(excess),
			Reason: fmt.Sprintf("ROAS worsened %.1f%% (threshold %.0f%%)",
				-delta.ROASChangePct, t.policy.ROASWorsenPct),
			Evidence: deltaEvidence(delta),
		}
	}

	if delta.ValueChangePct < -t.policy.ValueDropPct {
		excess := excessRatio(-delta.ValueChangePct, t.policy.ValueDropPct)
		return &models.RollbackDecision{
			ShouldRollback: true,
			Trigger:        models.TriggerValueRegression,
			Confidence:     t.confidence(excess),
			Reason: fmt.Sprintf("conversion value dropped %.1f%% (threshold %.0f%%)",
				-delta.ValueChangePct, t.policy.ValueDropPct),
			Evidence: deltaEvidence(delta),
		}
	}

	return &models.RollbackDecision{
		ShouldRollback: false,
		Trigger:        models.TriggerNone,
		Reason:         "ROAS regression rule not met",
		Evidence:       deltaEvidence(delta),
	}
}

// confidence maps how far past its threshold a regression landed onto
// [0.5, MaxConfidence]. An excess of 0 (barely over) scores 0.5.
func (t *triggerEvaluator) confidence(excess float64) float64 {
	return math.Min(t.policy.MaxConfidence, 0.5+0.3*excess)
}

// excessRatio is how far past the threshold the observed change landed,
// relative to the threshold itself.
func excessRatio(observed, threshold float64) float64 {
	if threshold == 0 {
		return 0
	}
	return (observed - threshold) / threshold
}

// deltaEvidence captures the full before/after windows so the decision is
// independently auditable.
func deltaEvidence(delta *models.PerformanceDelta) models.JSONB {
	evidence := models.JSONB{
		"cpa_change_pct":         delta.CPAChangePct,
		"roas_change_pct":        delta.ROASChangePct,
		"conversions_change_pct": delta.ConversionsChangePct,
		"value_change_pct":       delta.ValueChangePct,
		"cost_change_pct":        delta.CostChangePct,
	}
	if delta.Baseline != nil {
		evidence["baseline"] = delta.Baseline
	}
	if delta.Current != nil {
		evidence["current"] = delta.Current
	}
	return evidence
}
