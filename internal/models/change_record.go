package models

import (
	"time"

	"github.com/google/uuid"
)

// Lever is the guardrail category of an automated change. It selects which
// cooldown, magnitude and rate-limit policy applies.
type Lever string

const (
	LeverBudget  Lever = "budget"
	LeverBid     Lever = "bid"
	LeverKeyword Lever = "keyword"
	LeverAd      Lever = "ad"
	LeverProduct Lever = "product"
)

// EntityType identifies the kind of advertising entity a change targets.
type EntityType string

const (
	EntityCampaign EntityType = "campaign"
	EntityKeyword  EntityType = "keyword"
	EntityAd       EntityType = "ad"
	EntityProduct  EntityType = "product"
)

// Risk tiers assigned by the rules collaborator.
const (
	RiskTierLow  = "low"
	RiskTierMed  = "med"
	RiskTierHigh = "high"
)

// Rollback lifecycle states. An empty status means the change is still
// active and eligible for monitoring.
const (
	RollbackStatusActive        = ""
	RollbackStatusMonitoring    = "monitoring"
	RollbackStatusConfirmedGood = "confirmed_good"
	RollbackStatusRolledBack    = "rolled_back"
)

// Bid strategy recorded at execution time so a bid rollback never has to
// guess which strategy it is restoring.
const (
	BidStrategyTargetCPA  = "target_cpa"
	BidStrategyTargetROAS = "target_roas"
	BidStrategyManual     = "manual"
)

// Fine-grained action types dispatched to the ads platform.
const (
	ActionSetBudget        = "set_budget"
	ActionSetBidTarget     = "set_bid_target"
	ActionAddKeyword       = "add_keyword"
	ActionPauseKeyword     = "pause_keyword"
	ActionUpdateKeywordBid = "update_keyword_bid"
	ActionAddNegativeKw    = "add_negative_keyword"
	ActionPauseAd          = "pause_ad"
	ActionEnableAd         = "enable_ad"
	ActionUpdateProductBid = "update_product_bid"
	ActionExcludeProduct   = "exclude_product"
)

// RuleIDRollback marks audit entries written by the rollback executor itself.
const RuleIDRollback = "ROLLBACK"

// ApprovedBySystem marks audit entries that were not approved by a human.
const ApprovedBySystem = "system"

// ChangeRecord is one row of the audit log: a single executed change and its
// rollback lifecycle. Immutable after insert except for the rollback fields,
// which are set exactly once by a later rollback or confirmation.
type ChangeRecord struct {
	ID                    uuid.UUID  `json:"id" db:"id"`
	CustomerID            string     `json:"customer_id" db:"customer_id"`
	EntityType            EntityType `json:"entity_type" db:"entity_type"`
	EntityID              string     `json:"entity_id" db:"entity_id"`
	CampaignID            string     `json:"campaign_id" db:"campaign_id"`
	AdGroupID             string     `json:"ad_group_id" db:"ad_group_id"`
	Lever                 Lever      `json:"lever" db:"lever"`
	ActionType            string     `json:"action_type" db:"action_type"`
	OldValue              *float64   `json:"old_value" db:"old_value"`
	NewValue              *float64   `json:"new_value" db:"new_value"`
	ChangePct             float64    `json:"change_pct" db:"change_pct"`
	RuleID                string     `json:"rule_id" db:"rule_id"`
	RiskTier              string     `json:"risk_tier" db:"risk_tier"`
	BidStrategy           string     `json:"bid_strategy,omitempty" db:"bid_strategy"`
	ApprovedBy            string     `json:"approved_by" db:"approved_by"`
	ChangeDate            time.Time  `json:"change_date" db:"change_date"`
	ExecutedAt            time.Time  `json:"executed_at" db:"executed_at"`
	Metadata              JSONB      `json:"metadata" db:"metadata"`
	RollbackStatus        string     `json:"rollback_status" db:"rollback_status"`
	RollbackID            *uuid.UUID `json:"rollback_id" db:"rollback_id"`
	RollbackReason        *string    `json:"rollback_reason" db:"rollback_reason"`
	RollbackExecutedAt    *time.Time `json:"rollback_executed_at" db:"rollback_executed_at"`
	MonitoringCompletedAt *time.Time `json:"monitoring_completed_at" db:"monitoring_completed_at"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
}

// ChangeRecordFilters represents filters for querying the audit log.
type ChangeRecordFilters struct {
	EntityType *EntityType `json:"entity_type"`
	EntityID   *string     `json:"entity_id"`
	CampaignID *string     `json:"campaign_id"`
	Lever      *Lever      `json:"lever"`
	ActionType *string     `json:"action_type"`
	RuleID     *string     `json:"rule_id"`
	Status     *string     `json:"status"`
	StartDate  *time.Time  `json:"start_date"`
	EndDate    *time.Time  `json:"end_date"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
}

// ChangeSummary represents aggregate counts over the audit log for a period.
type ChangeSummary struct {
	CustomerID      string         `json:"customer_id"`
	TotalChanges    int            `json:"total_changes"`
	LeverBreakdown  map[string]int `json:"lever_breakdown"`
	ActionBreakdown map[string]int `json:"action_breakdown"`
	StatusBreakdown map[string]int `json:"status_breakdown"`
	PeriodStart     time.Time      `json:"period_start"`
	PeriodEnd       time.Time      `json:"period_end"`
}

// InconsistencyKind classifies audit-log states that should be impossible.
type InconsistencyKind string

const (
	// Marked rolled_back but rollback_id was never set.
	InconsistencyMissingRollbackID InconsistencyKind = "missing_rollback_id"
	// rollback_id points at a record that does not exist.
	InconsistencyDanglingRollbackID InconsistencyKind = "dangling_rollback_id"
	// A rollback entry exists but no original references it.
	InconsistencyOrphanedRollback InconsistencyKind = "orphaned_rollback"
)

// Inconsistency is one detected audit-log invariant violation. Reported,
// never silently repaired.
type Inconsistency struct {
	ChangeID   uuid.UUID         `json:"change_id"`
	CustomerID string            `json:"customer_id"`
	Kind       InconsistencyKind `json:"kind"`
	Detail     string            `json:"detail"`
}

// LeverForAction maps a fine-grained action type to its guardrail lever.
func LeverForAction(actionType string) (Lever, bool) {
	switch actionType {
	case ActionSetBudget:
		return LeverBudget, true
	case ActionSetBidTarget:
		return LeverBid, true
	case ActionAddKeyword, ActionPauseKeyword, ActionUpdateKeywordBid, ActionAddNegativeKw:
		return LeverKeyword, true
	case ActionPauseAd, ActionEnableAd:
		return LeverAd, true
	case ActionUpdateProductBid, ActionExcludeProduct:
		return LeverProduct, true
	default:
		return "", false
	}
}

// OppositeLever returns the lever whose recent activity blocks rollback of
// the given lever. Only the campaign budget/bid pair oscillates.
func OppositeLever(lever Lever) (Lever, bool) {
	switch lever {
	case LeverBudget:
		return LeverBid, true
	case LeverBid:
		return LeverBudget, true
	default:
		return "", false
	}
}
