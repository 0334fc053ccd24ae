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

// Guardrail check names, reported on every block so a failed recommendation
// always says which policy stopped it.
const (
	CheckCooldown         = "cooldown"
	CheckOneLever         = "one_lever_at_a_time"
	CheckMagnitude        = "magnitude_cap"
	CheckRateLimit        = "rate_limit"
	CheckDataSufficiency  = "data_sufficiency"
	CheckDomainProtection = "domain_protection"
)

// GuardrailResult is the engine's answer for one proposed change.
type GuardrailResult struct {
	Allowed bool   `json:"allowed"`
	Check   string `json:"check,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// GuardrailEngine decides whether a proposed change is allowed right now.
// It is a read-only evaluator over audit-store state plus the evidence on
// the recommendation; it has no side effects.
type GuardrailEngine interface {
	Validate(ctx context.Context, rec *models.Recommendation) (*GuardrailResult, error)
}

type guardrailEngine struct {
	changesRepo  repositories.ChangeRecordsRepository
	settingsRepo repositories.CustomerSettingsRepository
	policy       *config.GuardrailPolicy
}

func NewGuardrailEngine(changesRepo repositories.ChangeRecordsRepository, settingsRepo repositories.CustomerSettingsRepository, policy *config.GuardrailPolicy) GuardrailEngine {
	if policy == nil {
		policy = config.DefaultGuardrailPolicy()
	}
	return &guardrailEngine{
		changesRepo:  changesRepo,
		settingsRepo: settingsRepo,
		policy:       policy,
	}
}

type guardrailCheck func(ctx context.Context, rec *models.Recommendation, lever models.Lever, policy *config.GuardrailPolicy) (*GuardrailResult, error)

// Validate runs the checks in a fixed order and returns the first failure.
// Ordering is policy: a cooldown block is reported as a cooldown block even
// when the magnitude cap would also have failed.
func (e *guardrailEngine) Validate(ctx context.Context, rec *models.Recommendation) (*GuardrailResult, error) {
	if rec == nil {
		return nil, models.NewValidationError("", "recommendation is nil")
	}
	if rec.CustomerID == "" {
		return nil, models.NewValidationError("customer_id", "is required")
	}
	if rec.EntityID == "" {
		return nil, models.NewValidationError("entity_id", "is required")
	}
	lever, ok := models.LeverForAction(rec.ActionType)
	if !ok {
		return nil, models.NewValidationError("action_type", fmt.Sprintf("unknown action type %q", rec.ActionType))
	}

	policy := e.policy
	if e.settingsRepo != nil {
		settings, err := e.settingsRepo.GetByCustomerID(ctx, rec.CustomerID)
		if err != nil {
			return nil, err
		}
		if settings != nil && settings.RiskTolerance != "" {
			policy = e.policy.ForRiskTolerance(settings.RiskTolerance)
		}
	}

	checks := []guardrailCheck{
		e.checkCooldown,
		e.checkOneLeverAtATime,
		e.checkMagnitudeCap,
		e.checkRateLimit,
		e.checkDataSufficiency,
		e.checkDomainProtections,
	}

	for _, check := range checks {
		result, err := check(ctx, rec, lever, policy)
		if err != nil {
			return nil, err
		}
		if !result.Allowed {
			return result, nil
		}
	}

	return &GuardrailResult{Allowed: true}, nil
}

func (e *guardrailEngine) checkCooldown(ctx context.Context, rec *models.Recommendation, lever models.Lever, policy *config.GuardrailPolicy) (*GuardrailResult, error) {
	days, ok := policy.CooldownDays[lever]
	if !ok || days <= 0 {
		return &GuardrailResult{Allowed: true}, nil
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	prior, err := e.changesRepo.LatestForEntityLever(ctx, rec.CustomerID, rec.EntityID, rec.EntityType, lever, since)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return &GuardrailResult{
			Allowed: false,
			Check:   CheckCooldown,
			Reason: fmt.Sprintf("%s %s changed %s ago; %d-day cooldown active",
				rec.EntityType, rec.EntityID, time.Since(prior.ExecutedAt).Round(time.Hour), days),
		}, nil
	}
	return &GuardrailResult{Allowed: true}, nil
}

// checkOneLeverAtATime blocks a campaign budget change while a bid change is
// recent, and vice versa. Per-campaign only; other levers have no pair.
func (e *guardrailEngine) checkOneLeverAtATime(ctx context.Context, rec *models.Recommendation, lever models.Lever, policy *config.GuardrailPolicy) (*GuardrailResult, error) {
	opposite, ok := models.OppositeLever(lever)
	if !ok {
		return &GuardrailResult{Allowed: true}, nil
	}
	campaignID := rec.CampaignID
	if campaignID == "" {
		campaignID = rec.EntityID
	}

	since := time.Now().UTC().AddDate(0, 0, -policy.OneLeverWindowDays)
	prior, err := e.changesRepo.LatestForCampaignLever(ctx, rec.CustomerID, campaignID, opposite, since)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return &GuardrailResult{
			Allowed: false,
			Check:   CheckOneLever,
			Reason: fmt.Sprintf("campaign %s had a %s change %s ago; one lever at a time within %d days",
				campaignID, opposite, time.Since(prior.ExecutedAt).Round(time.Hour), policy.OneLeverWindowDays),
		}, nil
	}
	return &GuardrailResult{Allowed: true}, nil
}

func (e *guardrailEngine) checkMagnitudeCap(ctx context.Context, rec *models.Recommendation, lever models.Lever, policy *config.GuardrailPolicy) (*GuardrailResult, error) {
	ceiling, ok := policy.MaxChangePct[lever]
	if !ok {
		return &GuardrailResult{Allowed: true}, nil
	}

	changePct := rec.ChangePct
	if changePct == 0 && rec.CurrentValue != nil && rec.RecommendedValue != nil && *rec.CurrentValue != 0 {
		changePct = (*rec.RecommendedValue - *rec.CurrentValue) / *rec.CurrentValue * 100
	}
	if math.Abs(changePct) > ceiling {
		return &GuardrailResult{
			Allowed: false,
			Check:   CheckMagnitude,
			Reason:  fmt.Sprintf("change of %.1f%% exceeds the %.1f%% cap for %s changes", changePct, ceiling, lever),
		}, nil
	}
	return &GuardrailResult{Allowed: true}, nil
}

func (e *guardrailEngine) checkRateLimit(ctx context.Context, rec *models.Recommendation, lever models.Lever, policy *config.GuardrailPolicy) (*GuardrailResult, error) {
	dailyCap, ok := policy.DailyActionCaps[rec.ActionType]
	if !ok {
		return &GuardrailResult{Allowed: true}, nil
	}

	campaignID := rec.CampaignID
	if campaignID == "" {
		campaignID = rec.EntityID
	}
	count, err := e.changesRepo.CountActionsForDay(ctx, rec.CustomerID, campaignID, rec.AdGroupID, rec.ActionType, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if count >= dailyCap {
		return &GuardrailResult{
			Allowed: false,
			Check:   CheckRateLimit,
			Reason:  fmt.Sprintf("%s already executed %d times today (cap %d)", rec.ActionType, count, dailyCap),
		}, nil
	}
	return &GuardrailResult{Allowed: true}, nil
}

func (e *guardrailEngine) checkDataSufficiency(ctx context.Context, rec *models.Recommendation, lever models.Lever, policy *config.GuardrailPolicy) (*GuardrailResult, error) {
	switch rec.ActionType {
	case models.ActionPauseKeyword:
		ev := rec.Evidence.Keyword
		if ev == nil {
			return &GuardrailResult{
				Allowed: false,
				Check:   CheckDataSufficiency,
				Reason:  "pausing a keyword requires keyword evidence",
			}, nil
		}
		if ev.Clicks30d < policy.MinKeywordClicks30d {
			return &GuardrailResult{
				Allowed: false,
				Check:   CheckDataSufficiency,
				Reason:  fmt.Sprintf("keyword has %d clicks in 30 days; %d required to pause", ev.Clicks30d, policy.MinKeywordClicks30d),
			}, nil
		}
	case models.ActionPauseAd:
		ev := rec.Evidence.Ad
		if ev == nil {
			return &GuardrailResult{
				Allowed: false,
				Check:   CheckDataSufficiency,
				Reason:  "pausing an ad requires ad evidence",
			}, nil
		}
		switch ev.PauseGround {
		case "ctr":
			if ev.Impressions30d < policy.MinAdImpressionsForCTR {
				return &GuardrailResult{
					Allowed: false,
					Check:   CheckDataSufficiency,
					Reason:  fmt.Sprintf("ad has %d impressions; %d required to pause on CTR grounds", ev.Impressions30d, policy.MinAdImpressionsForCTR),
				}, nil
			}
		case "cvr":
			if ev.Clicks30d < policy.MinAdClicksForCVR {
				return &GuardrailResult{
					Allowed: false,
					Check:   CheckDataSufficiency,
					Reason:  fmt.Sprintf("ad has %d clicks; %d required to pause on CVR grounds", ev.Clicks30d, policy.MinAdClicksForCVR),
				}, nil
			}
		}
	}
	return &GuardrailResult{Allowed: true}, nil
}

func (e *guardrailEngine) checkDomainProtections(ctx context.Context, rec *models.Recommendation, lever models.Lever, policy *config.GuardrailPolicy) (*GuardrailResult, error) {
	switch rec.ActionType {
	case models.ActionPauseAd:
		if ev := rec.Evidence.Ad; ev != nil {
			if ev.ActiveAdsInGroup-1 < policy.MinActiveAdsAfterPause {
				return &GuardrailResult{
					Allowed: false,
					Check:   CheckDomainProtection,
					Reason: fmt.Sprintf("pausing would leave %d active ads in the group; %d required",
						ev.ActiveAdsInGroup-1, policy.MinActiveAdsAfterPause),
				}, nil
			}
		}
	case models.ActionEnableAd:
		ev := rec.Evidence.Ad
		if ev == nil || ev.CTRChangePct < policy.ReEnableCTRImprovementPct {
			got := 0.0
			if ev != nil {
				got = ev.CTRChangePct
			}
			return &GuardrailResult{
				Allowed: false,
				Check:   CheckDomainProtection,
				Reason: fmt.Sprintf("re-enabling requires ad-group CTR improvement of %.0f%% since the pause; got %.1f%%",
					policy.ReEnableCTRImprovementPct, got),
			}, nil
		}
	case models.ActionUpdateProductBid, models.ActionExcludeProduct:
		ev := rec.Evidence.Product
		if ev == nil {
			return &GuardrailResult{
				Allowed: false,
				Check:   CheckDomainProtection,
				Reason:  "product changes require product evidence",
			}, nil
		}
		if !ev.InStock {
			return &GuardrailResult{
				Allowed: false,
				Check:   CheckDomainProtection,
				Reason:  "product is out of stock",
			}, nil
		}
		if rec.ActionType == models.ActionExcludeProduct {
			if ev.SoleItemInCategory {
				return &GuardrailResult{
					Allowed: false,
					Check:   CheckDomainProtection,
					Reason:  "product is the sole item in its category",
				}, nil
			}
			if ev.OpenFeedIssues > 0 {
				return &GuardrailResult{
					Allowed: false,
					Check:   CheckDomainProtection,
					Reason:  fmt.Sprintf("product has %d open feed-quality issues", ev.OpenFeedIssues),
				}, nil
			}
		}
	}
	return &GuardrailResult{Allowed: true}, nil
}
