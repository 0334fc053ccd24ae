package config

import (
	"os"
	"strconv"

	"adpilot/internal/models"
)

// GuardrailPolicy holds every threshold the guardrail engine applies. All
// values are named here, not inline in the checks, so they can be tightened
// per client risk tolerance.
type GuardrailPolicy struct {
	// Minimum days between two changes of the same entity+lever.
	CooldownDays map[models.Lever]int

	// A budget change blocks a bid change on the same campaign for this
	// many days, and vice versa.
	OneLeverWindowDays int

	// Ceiling on abs(change_pct) per lever.
	MaxChangePct map[models.Lever]float64

	// Per-day caps on a given action type for the same campaign/ad group.
	DailyActionCaps map[string]int

	// Statistical minimums for destructive actions.
	MinKeywordClicks30d    int
	MinAdImpressionsForCTR int64
	MinAdClicksForCVR      int

	// Domain protections.
	MinActiveAdsAfterPause    int
	ReEnableCTRImprovementPct float64
}

// RollbackPolicy holds the monitoring and regression thresholds.
type RollbackPolicy struct {
	// Changes younger than this are never monitored.
	MinWaitHours int

	// The current window starts this many days after the change date.
	PostChangeOffsetDays int

	// Monitoring window per lever, matching the lever's cooldown so a
	// change is re-evaluated exactly once its cooldown expires.
	MonitorWindowDays map[models.Lever]int

	// A rollback is blocked if the opposite lever changed within this
	// window.
	OscillationWindowDays int

	// CPA profile: both must hold (AND).
	CPAWorsenPct       float64
	ConversionsDropPct float64

	// ROAS profile: either suffices (OR).
	ROASWorsenPct float64
	ValueDropPct  float64

	// Percentage assigned when the baseline for a metric is zero and the
	// current value is not. A swing from zero cost to nonzero cost is a
	// flagged regression by policy, not an undefined ratio; the sentinel
	// keeps it finite, comparable and configurable.
	ZeroBaselineSentinelPct float64

	MaxConfidence float64
}

// DefaultGuardrailPolicy returns the stock policy.
func DefaultGuardrailPolicy() *GuardrailPolicy {
	return &GuardrailPolicy{
		CooldownDays: map[models.Lever]int{
			models.LeverBudget:  7,
			models.LeverBid:     7,
			models.LeverKeyword: 14,
			models.LeverAd:      7,
			models.LeverProduct: 14,
		},
		OneLeverWindowDays: 7,
		MaxChangePct: map[models.Lever]float64{
			models.LeverBudget:  15,
			models.LeverBid:     15,
			models.LeverKeyword: 20,
			models.LeverProduct: 20,
		},
		DailyActionCaps: map[string]int{
			models.ActionAddKeyword:     10,
			models.ActionAddNegativeKw:  20,
			models.ActionPauseAd:        5,
			models.ActionExcludeProduct: 10,
		},
		MinKeywordClicks30d:       30,
		MinAdImpressionsForCTR:    1000,
		MinAdClicksForCVR:         100,
		MinActiveAdsAfterPause:    2,
		ReEnableCTRImprovementPct: 20,
	}
}

// DefaultRollbackPolicy returns the stock monitoring thresholds.
func DefaultRollbackPolicy() *RollbackPolicy {
	return &RollbackPolicy{
		MinWaitHours:         72,
		PostChangeOffsetDays: 3,
		MonitorWindowDays: map[models.Lever]int{
			models.LeverBudget:  7,
			models.LeverBid:     14,
			models.LeverKeyword: 14,
			models.LeverAd:      7,
			models.LeverProduct: 14,
		},
		OscillationWindowDays:   14,
		CPAWorsenPct:            20,
		ConversionsDropPct:      10,
		ROASWorsenPct:           15,
		ValueDropPct:            15,
		ZeroBaselineSentinelPct: 999,
		MaxConfidence:           0.95,
	}
}

// ForRiskTolerance returns a copy of the policy adjusted for a customer's
// risk tolerance. Low tolerance halves the magnitude ceilings; high
// tolerance leaves cooldowns alone but allows the stock ceilings plus half
// again.
func (p *GuardrailPolicy) ForRiskTolerance(tolerance string) *GuardrailPolicy {
	adjusted := *p
	adjusted.MaxChangePct = make(map[models.Lever]float64, len(p.MaxChangePct))
	for lever, pct := range p.MaxChangePct {
		switch tolerance {
		case models.RiskTierLow:
			adjusted.MaxChangePct[lever] = pct / 2
		case models.RiskTierHigh:
			adjusted.MaxChangePct[lever] = pct * 1.5
		default:
			adjusted.MaxChangePct[lever] = pct
		}
	}
	return &adjusted
}

// LoadGuardrailPolicy applies environment overrides on top of the defaults.
func LoadGuardrailPolicy() *GuardrailPolicy {
	p := DefaultGuardrailPolicy()
	if v := envInt("GUARDRAIL_ONE_LEVER_WINDOW_DAYS"); v != nil {
		p.OneLeverWindowDays = *v
	}
	if v := envFloat("GUARDRAIL_MAX_CAMPAIGN_CHANGE_PCT"); v != nil {
		p.MaxChangePct[models.LeverBudget] = *v
		p.MaxChangePct[models.LeverBid] = *v
	}
	if v := envInt("GUARDRAIL_MIN_KEYWORD_CLICKS"); v != nil {
		p.MinKeywordClicks30d = *v
	}
	return p
}

// LoadRollbackPolicy applies environment overrides on top of the defaults.
func LoadRollbackPolicy() *RollbackPolicy {
	p := DefaultRollbackPolicy()
	if v := envInt("ROLLBACK_MIN_WAIT_HOURS"); v != nil {
		p.MinWaitHours = *v
	}
	if v := envFloat("ROLLBACK_CPA_WORSEN_PCT"); v != nil {
		p.CPAWorsenPct = *v
	}
	if v := envFloat("ROLLBACK_ROAS_WORSEN_PCT"); v != nil {
		p.ROASWorsenPct = *v
	}
	if v := envFloat("ROLLBACK_ZERO_BASELINE_SENTINEL_PCT"); v != nil {
		p.ZeroBaselineSentinelPct = *v
	}
	return p
}

func envInt(key string) *int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return &n
		}
	}
	return nil
}

func envFloat(key string) *float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
	}
	return nil
}
