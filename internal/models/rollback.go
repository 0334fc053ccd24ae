package models

import "time"

// KPIProfile selects which regression rule applies to a customer.
type KPIProfile string

const (
	KPIProfileCPA  KPIProfile = "cpa"
	KPIProfileROAS KPIProfile = "roas"
)

// Rollback triggers. NONE means the change is performing acceptably.
const (
	TriggerCPARegression        = "CPA_REGRESSION"
	TriggerROASRegression       = "ROAS_REGRESSION"
	TriggerValueRegression      = "VALUE_REGRESSION"
	TriggerAntiOscillationBlock = "ANTI_OSCILLATION_BLOCK"
	TriggerInsufficientData     = "INSUFFICIENT_DATA"
	TriggerNone                 = "NONE"
)

// RollbackDecision is the transient outcome of evaluating one monitored
// change. Evidence carries the full before/after windows so every decision
// is independently auditable.
type RollbackDecision struct {
	ShouldRollback bool    `json:"should_rollback"`
	Trigger        string  `json:"trigger"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason"`
	Evidence       JSONB   `json:"evidence"`
}

// RollbackResult is the outcome of dispatching one reversal to the ads
// platform.
type RollbackResult struct {
	Success     bool      `json:"success"`
	DryRun      bool      `json:"dry_run"`
	OldValue    *float64  `json:"old_value"`
	NewValue    *float64  `json:"new_value"`
	ResourceRef string    `json:"resource_ref,omitempty"`
	Error       string    `json:"error,omitempty"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// CustomerSettings holds the per-customer knobs the control loop reads:
// which KPI the client optimizes for and how tight their guardrails are.
type CustomerSettings struct {
	CustomerID    string     `json:"customer_id" db:"customer_id"`
	KPIProfile    KPIProfile `json:"kpi_profile" db:"kpi_profile"`
	RiskTolerance string     `json:"risk_tolerance" db:"risk_tolerance"`
	Active        bool       `json:"active" db:"active"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}
