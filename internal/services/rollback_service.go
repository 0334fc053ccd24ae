package services

import (
	"context"
	"fmt"
	"time"

	"adpilot/internal/ads"
	"adpilot/internal/events"
	"adpilot/internal/models"
	"adpilot/internal/repositories"

	"github.com/google/uuid"
)

// RollbackExecutor plans and performs reversals. A reversal always restores
// the original's recorded old_value; it never re-derives a value.
type RollbackExecutor interface {
	// PlanRollback loads the original change and checks it is eligible.
	PlanRollback(ctx context.Context, customerID string, changeID uuid.UUID) (*models.ChangeRecord, error)

	// ExecuteRollback dispatches the reversal to the ads platform. Dry runs
	// never reach the platform.
	ExecuteRollback(ctx context.Context, original *models.ChangeRecord, reason string, dryRun bool) (*models.RollbackResult, error)

	// LogRollback appends the reversal's own audit record and flips the
	// original to rolled_back, atomically. Live successes only.
	LogRollback(ctx context.Context, result *models.RollbackResult, reason string, original *models.ChangeRecord) (*models.ChangeRecord, error)

	// MarkConfirmedGood closes the loop for a change that did not regress,
	// so it is never re-evaluated.
	MarkConfirmedGood(ctx context.Context, customerID string, changeID uuid.UUID) error
}

type rollbackExecutor struct {
	changesRepo repositories.ChangeRecordsRepository
	adsClient   ads.Client
	publisher   events.Publisher
}

func NewRollbackExecutor(changesRepo repositories.ChangeRecordsRepository, adsClient ads.Client, publisher events.Publisher) RollbackExecutor {
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	return &rollbackExecutor{
		changesRepo: changesRepo,
		adsClient:   adsClient,
		publisher:   publisher,
	}
}

func (r *rollbackExecutor) PlanRollback(ctx context.Context, customerID string, changeID uuid.UUID) (*models.ChangeRecord, error) {
	original, err := r.changesRepo.GetByID(ctx, customerID, changeID)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, models.NewValidationError("change_id", fmt.Sprintf("change %s not found", changeID))
	}
	if original.RollbackStatus == models.RollbackStatusRolledBack {
		return nil, models.NewValidationError("change_id", fmt.Sprintf("change %s is already rolled back", changeID))
	}
	if original.RollbackStatus == models.RollbackStatusConfirmedGood {
		return nil, models.NewValidationError("change_id", fmt.Sprintf("change %s is confirmed good", changeID))
	}
	if original.RuleID == models.RuleIDRollback {
		return nil, models.NewValidationError("change_id", "a rollback record cannot itself be rolled back")
	}
	return original, nil
}

func (r *rollbackExecutor) ExecuteRollback(ctx context.Context, original *models.ChangeRecord, reason string, dryRun bool) (*models.RollbackResult, error) {
	result := &models.RollbackResult{
		DryRun: dryRun,
		// The reversal swaps the original's values back: what is currently
		// live (new_value) gets replaced by the recorded old_value.
		OldValue:   original.NewValue,
		NewValue:   original.OldValue,
		ExecutedAt: time.Now().UTC(),
	}

	if dryRun {
		result.Success = true
		result.ResourceRef = "dry-run"
		return result, nil
	}

	resp, err := r.reverseDispatch(ctx, original)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	if !resp.OK() {
		result.Error = resp.Error
		if result.Error == "" {
			result.Error = fmt.Sprintf("ads platform returned status %q", resp.Status)
		}
		return result, nil
	}

	result.Success = true
	result.ResourceRef = resp.ResourceRef
	return result, nil
}

// reverseDispatch maps the original action to its reversal. Numeric actions
// restore the recorded old value; status actions flip back.
func (r *rollbackExecutor) reverseDispatch(ctx context.Context, original *models.ChangeRecord) (*ads.MutateResponse, error) {
	switch original.ActionType {
	case models.ActionSetBudget:
		if original.OldValue == nil {
			return nil, models.NewValidationError("old_value", "budget rollback requires a recorded old value")
		}
		return r.adsClient.SetCampaignBudget(ctx, original.CustomerID, original.CampaignID, *original.OldValue)
	case models.ActionSetBidTarget:
		if original.OldValue == nil {
			return nil, models.NewValidationError("old_value", "bid rollback requires a recorded old value")
		}
		strategy := original.BidStrategy
		if strategy == "" {
			// Records written before bid_strategy existed cannot be
			// reversed safely without knowing which strategy to restore.
			return nil, models.NewValidationError("bid_strategy", "bid rollback requires the recorded bid strategy")
		}
		return r.adsClient.SetCampaignBidTarget(ctx, original.CustomerID, original.CampaignID, strategy, *original.OldValue)
	case models.ActionUpdateKeywordBid:
		if original.OldValue == nil {
			return nil, models.NewValidationError("old_value", "keyword bid rollback requires a recorded old value")
		}
		return r.adsClient.UpdateKeywordBid(ctx, original.CustomerID, original.EntityID, *original.OldValue)
	case models.ActionPauseKeyword:
		return r.adsClient.EnableKeyword(ctx, original.CustomerID, original.EntityID)
	case models.ActionPauseAd:
		return r.adsClient.EnableAd(ctx, original.CustomerID, original.EntityID)
	case models.ActionEnableAd:
		return r.adsClient.PauseAd(ctx, original.CustomerID, original.EntityID)
	case models.ActionUpdateProductBid:
		if original.OldValue == nil {
			return nil, models.NewValidationError("old_value", "product bid rollback requires a recorded old value")
		}
		return r.adsClient.UpdateProductBid(ctx, original.CustomerID, original.EntityID, *original.OldValue)
	case models.ActionExcludeProduct:
		return r.adsClient.IncludeProduct(ctx, original.CustomerID, original.EntityID)
	default:
		return nil, models.NewValidationError("action_type", fmt.Sprintf("%q is not reversible", original.ActionType))
	}
}

func (r *rollbackExecutor) LogRollback(ctx context.Context, result *models.RollbackResult, reason string, original *models.ChangeRecord) (*models.ChangeRecord, error) {
	if result == nil || !result.Success {
		return nil, models.NewValidationError("result", "only successful rollbacks are logged")
	}
	if result.DryRun {
		return nil, models.NewValidationError("result", "dry-run rollbacks are never logged")
	}

	changePct := 0.0
	if result.OldValue != nil && result.NewValue != nil && *result.OldValue != 0 {
		changePct = (*result.NewValue - *result.OldValue) / *result.OldValue * 100
	}

	reversal := &models.ChangeRecord{
		CustomerID:  original.CustomerID,
		EntityType:  original.EntityType,
		EntityID:    original.EntityID,
		CampaignID:  original.CampaignID,
		AdGroupID:   original.AdGroupID,
		Lever:       original.Lever,
		ActionType:  original.ActionType,
		OldValue:    result.OldValue,
		NewValue:    result.NewValue,
		ChangePct:   changePct,
		RuleID:      models.RuleIDRollback,
		RiskTier:    models.RiskTierLow,
		BidStrategy: original.BidStrategy,
		ApprovedBy:  models.ApprovedBySystem,
		ExecutedAt:  result.ExecutedAt,
		Metadata: models.JSONB{
			"original_change_id": original.ID.String(),
			"rollback_reason":    reason,
			"resource_ref":       result.ResourceRef,
		},
	}

	if err := r.changesRepo.MarkRolledBack(ctx, original.ID, reversal, reason, result.ExecutedAt); err != nil {
		return nil, err
	}

	r.publisher.PublishChange(ctx, reversal)
	return reversal, nil
}

func (r *rollbackExecutor) MarkConfirmedGood(ctx context.Context, customerID string, changeID uuid.UUID) error {
	return r.changesRepo.MarkConfirmedGood(ctx, customerID, changeID, time.Now().UTC())
}
