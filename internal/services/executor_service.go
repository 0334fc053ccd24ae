package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"adpilot/internal/ads"
	"adpilot/internal/events"
	"adpilot/internal/models"
	"adpilot/internal/repositories"
)

// Executor validates a batch of recommendations against the guardrails,
// dispatches the allowed ones to the ads platform and records outcomes.
//
// Recommendations are processed strictly in input order: cooldown, one-lever
// and rate-limit checks depend on each prior audit append being visible to
// the next validation, so the batch is single-writer by construction.
type Executor interface {
	Execute(ctx context.Context, customerID string, recs []*models.Recommendation, dryRun bool) (*models.ExecutionSummary, error)
}

type executor struct {
	changesRepo repositories.ChangeRecordsRepository
	guardrails  GuardrailEngine
	adsClient   ads.Client
	publisher   events.Publisher
}

func NewExecutor(changesRepo repositories.ChangeRecordsRepository, guardrails GuardrailEngine, adsClient ads.Client, publisher events.Publisher) Executor {
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	return &executor{
		changesRepo: changesRepo,
		guardrails:  guardrails,
		adsClient:   adsClient,
		publisher:   publisher,
	}
}

func (e *executor) Execute(ctx context.Context, customerID string, recs []*models.Recommendation, dryRun bool) (*models.ExecutionSummary, error) {
	summary := &models.ExecutionSummary{DryRun: dryRun}

	for _, rec := range recs {
		if rec == nil {
			continue
		}
		// Non-executable action types (review-only output from the rules
		// collaborator) are filtered out before counting the batch.
		if _, ok := models.LeverForAction(rec.ActionType); !ok {
			log.Printf("Skipping non-executable action type %q for entity %s", rec.ActionType, rec.EntityID)
			continue
		}
		if rec.CustomerID == "" {
			rec.CustomerID = customerID
		}

		summary.Total++
		result := e.executeOne(ctx, rec, dryRun)
		if result == nil {
			// The audit store went away mid-batch. Items already appended
			// stay valid; the rest of the batch is retried next run.
			return nil, &models.PersistenceError{Operation: "execute_batch", Err: fmt.Errorf("aborted at item %d", summary.Total)}
		}
		if result.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, *result)
	}

	return summary, nil
}

// executeOne handles a single recommendation. A nil return means the audit
// store failed and the batch must abort; every other failure is converted to
// a failed result so one bad recommendation never aborts its siblings.
func (e *executor) executeOne(ctx context.Context, rec *models.Recommendation, dryRun bool) (result *models.ExecutionResult) {
	result = &models.ExecutionResult{
		RuleID:     rec.RuleID,
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		ActionType: rec.ActionType,
		DryRun:     dryRun,
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic executing %s for %s: %v", rec.ActionType, rec.EntityID, r)
			result.Success = false
			result.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	if rec.Blocked {
		result.Reason = rec.BlockReason
		if result.Reason == "" {
			result.Reason = "blocked by rules collaborator"
		}
		return result
	}

	guardrail, err := e.guardrails.Validate(ctx, rec)
	if err != nil {
		var persistErr *models.PersistenceError
		if errors.As(err, &persistErr) {
			return nil
		}
		result.Error = err.Error()
		return result
	}
	if !guardrail.Allowed {
		result.Reason = guardrail.Reason
		return result
	}

	if dryRun {
		result.Success = true
		result.ResourceRef = "dry-run"
		return result
	}

	resp, err := e.dispatch(ctx, rec)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if !resp.OK() {
		result.Error = resp.Error
		if result.Error == "" {
			result.Error = fmt.Sprintf("ads platform returned status %q", resp.Status)
		}
		// No audit record for an action that did not actually happen.
		return result
	}

	change := buildChangeRecord(rec, resp)
	if err := e.changesRepo.Create(ctx, change); err != nil {
		var persistErr *models.PersistenceError
		if errors.As(err, &persistErr) {
			return nil
		}
		result.Error = err.Error()
		return result
	}

	e.publisher.PublishChange(ctx, change)

	result.Success = true
	result.ChangeID = &change.ID
	result.ResourceRef = resp.ResourceRef
	return result
}

func (e *executor) dispatch(ctx context.Context, rec *models.Recommendation) (*ads.MutateResponse, error) {
	campaignID := rec.CampaignID
	if campaignID == "" {
		campaignID = rec.EntityID
	}

	switch rec.ActionType {
	case models.ActionSetBudget:
		return e.adsClient.SetCampaignBudget(ctx, rec.CustomerID, campaignID, valueOrZero(rec.RecommendedValue))
	case models.ActionSetBidTarget:
		strategy := rec.BidStrategy
		if strategy == "" {
			strategy = models.BidStrategyManual
		}
		return e.adsClient.SetCampaignBidTarget(ctx, rec.CustomerID, campaignID, strategy, valueOrZero(rec.RecommendedValue))
	case models.ActionAddKeyword:
		return e.adsClient.AddKeyword(ctx, rec.CustomerID, rec.AdGroupID,
			extraString(rec.Evidence.Extra, "keyword_text"),
			extraString(rec.Evidence.Extra, "match_type"),
			valueOrZero(rec.RecommendedValue))
	case models.ActionPauseKeyword:
		return e.adsClient.PauseKeyword(ctx, rec.CustomerID, rec.EntityID)
	case models.ActionUpdateKeywordBid:
		return e.adsClient.UpdateKeywordBid(ctx, rec.CustomerID, rec.EntityID, valueOrZero(rec.RecommendedValue))
	case models.ActionAddNegativeKw:
		return e.adsClient.AddNegativeKeyword(ctx, rec.CustomerID, campaignID,
			extraString(rec.Evidence.Extra, "keyword_text"),
			extraString(rec.Evidence.Extra, "match_type"))
	case models.ActionPauseAd:
		return e.adsClient.PauseAd(ctx, rec.CustomerID, rec.EntityID)
	case models.ActionEnableAd:
		return e.adsClient.EnableAd(ctx, rec.CustomerID, rec.EntityID)
	case models.ActionUpdateProductBid:
		return e.adsClient.UpdateProductBid(ctx, rec.CustomerID, rec.EntityID, valueOrZero(rec.RecommendedValue))
	case models.ActionExcludeProduct:
		return e.adsClient.ExcludeProduct(ctx, rec.CustomerID, rec.EntityID)
	default:
		return nil, models.NewValidationError("action_type", fmt.Sprintf("no dispatch for %q", rec.ActionType))
	}
}

func buildChangeRecord(rec *models.Recommendation, resp *ads.MutateResponse) *models.ChangeRecord {
	lever, _ := models.LeverForAction(rec.ActionType)
	campaignID := rec.CampaignID
	if campaignID == "" {
		campaignID = rec.EntityID
	}

	changePct := rec.ChangePct
	if changePct == 0 && rec.CurrentValue != nil && rec.RecommendedValue != nil && *rec.CurrentValue != 0 {
		changePct = (*rec.RecommendedValue - *rec.CurrentValue) / *rec.CurrentValue * 100
	}

	now := time.Now().UTC()
	return &models.ChangeRecord{
		CustomerID:  rec.CustomerID,
		EntityType:  rec.EntityType,
		EntityID:    rec.EntityID,
		CampaignID:  campaignID,
		AdGroupID:   rec.AdGroupID,
		Lever:       lever,
		ActionType:  rec.ActionType,
		OldValue:    rec.CurrentValue,
		NewValue:    rec.RecommendedValue,
		ChangePct:   changePct,
		RuleID:      rec.RuleID,
		RiskTier:    rec.RiskTier,
		BidStrategy: rec.BidStrategy,
		ApprovedBy:  models.ApprovedBySystem,
		ChangeDate:  now.Truncate(24 * time.Hour),
		ExecutedAt:  now,
		Metadata:    executionMetadata(rec, resp),
	}
}

func executionMetadata(rec *models.Recommendation, resp *ads.MutateResponse) models.JSONB {
	metadata := models.JSONB{
		"confidence":   rec.Confidence,
		"priority":     rec.Priority,
		"resource_ref": resp.ResourceRef,
	}
	if evidence := marshalEvidence(rec.Evidence); evidence != nil {
		metadata["evidence"] = evidence
	}
	return metadata
}

func marshalEvidence(evidence models.Evidence) map[string]interface{} {
	b, err := json.Marshal(evidence)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func extraString(extra models.JSONB, key string) string {
	if extra == nil {
		return ""
	}
	if s, ok := extra[key].(string); ok {
		return s
	}
	return ""
}
