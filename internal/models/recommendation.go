package models

import "github.com/google/uuid"

// Recommendation is a proposed-but-not-yet-executed change produced by the
// rules collaborator. It is consumed once by the executor and only persisted
// (as a ChangeRecord) if it actually executes.
type Recommendation struct {
	RuleID           string     `json:"rule_id"`
	CustomerID       string     `json:"customer_id"`
	EntityType       EntityType `json:"entity_type"`
	EntityID         string     `json:"entity_id"`
	CampaignID       string     `json:"campaign_id"`
	AdGroupID        string     `json:"ad_group_id,omitempty"`
	ActionType       string     `json:"action_type"`
	RiskTier         string     `json:"risk_tier"`
	Confidence       float64    `json:"confidence"`
	CurrentValue     *float64   `json:"current_value"`
	RecommendedValue *float64   `json:"recommended_value"`
	ChangePct        float64    `json:"change_pct"`
	BidStrategy      string     `json:"bid_strategy,omitempty"`
	Evidence         Evidence   `json:"evidence"`
	Blocked          bool       `json:"blocked"`
	BlockReason      string     `json:"block_reason,omitempty"`
	Priority         int        `json:"priority"`
}

// ExecutionResult is the per-recommendation outcome of one executor pass.
// Errors never cross the item boundary; they land here instead.
type ExecutionResult struct {
	RuleID      string     `json:"rule_id"`
	EntityType  EntityType `json:"entity_type"`
	EntityID    string     `json:"entity_id"`
	ActionType  string     `json:"action_type"`
	Success     bool       `json:"success"`
	DryRun      bool       `json:"dry_run"`
	ChangeID    *uuid.UUID `json:"change_id,omitempty"`
	ResourceRef string     `json:"resource_ref,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ExecutionSummary is the batch outcome. Total counts only executable
// recommendations; non-executable action types are filtered before counting.
type ExecutionSummary struct {
	Total      int               `json:"total"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	DryRun     bool              `json:"dry_run"`
	Results    []ExecutionResult `json:"results"`
}
