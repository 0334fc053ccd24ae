package services

import (
	"context"
	"time"

	"adpilot/internal/config"
	"adpilot/internal/metrics"
	"adpilot/internal/models"
	"adpilot/internal/repositories"
)

// ChangeMonitor finds executed changes that are past their minimum wait and
// computes the before/after performance windows for them. Windows are
// recomputed fresh on every pass; nothing here is persisted.
type ChangeMonitor interface {
	// ChangesToMonitor returns still-active changes whose executed_at is
	// older than the minimum wait.
	ChangesToMonitor(ctx context.Context, customerID string) ([]*models.ChangeRecord, error)

	// Baseline returns the performance window immediately preceding the
	// change date, or nil when the metrics collaborator has no data.
	Baseline(ctx context.Context, rec *models.ChangeRecord) (*models.PerformanceMetrics, error)

	// Current returns the post-change window, or nil when the window has
	// not fully elapsed yet. Insufficient data is nil, never zero-filled.
	Current(ctx context.Context, rec *models.ChangeRecord) (*models.PerformanceMetrics, error)

	Delta(baseline, current *models.PerformanceMetrics) *models.PerformanceDelta

	// MarkMonitoring flags a change as under evaluation so operators can
	// tell a fresh change from one waiting on its window.
	MarkMonitoring(ctx context.Context, rec *models.ChangeRecord) error
}

type changeMonitor struct {
	changesRepo repositories.ChangeRecordsRepository
	provider    metrics.Provider
	policy      *config.RollbackPolicy
}

func NewChangeMonitor(changesRepo repositories.ChangeRecordsRepository, provider metrics.Provider, policy *config.RollbackPolicy) ChangeMonitor {
	if policy == nil {
		policy = config.DefaultRollbackPolicy()
	}
	return &changeMonitor{
		changesRepo: changesRepo,
		provider:    provider,
		policy:      policy,
	}
}

func (m *changeMonitor) ChangesToMonitor(ctx context.Context, customerID string) ([]*models.ChangeRecord, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(m.policy.MinWaitHours) * time.Hour)
	return m.changesRepo.ListForMonitoring(ctx, customerID, cutoff)
}

func (m *changeMonitor) windowDays(lever models.Lever) int {
	if days, ok := m.policy.MonitorWindowDays[lever]; ok && days > 0 {
		return days
	}
	return 7
}

func (m *changeMonitor) Baseline(ctx context.Context, rec *models.ChangeRecord) (*models.PerformanceMetrics, error) {
	days := m.windowDays(rec.Lever)
	changeDate := rec.ChangeDate.Truncate(24 * time.Hour)
	start := changeDate.AddDate(0, 0, -days)
	end := changeDate.AddDate(0, 0, -1)
	return m.provider.Metrics(ctx, rec.EntityType, rec.EntityID, start, end)
}

func (m *changeMonitor) Current(ctx context.Context, rec *models.ChangeRecord) (*models.PerformanceMetrics, error) {
	days := m.windowDays(rec.Lever)
	changeDate := rec.ChangeDate.Truncate(24 * time.Hour)
	start := changeDate.AddDate(0, 0, m.policy.PostChangeOffsetDays)
	end := start.AddDate(0, 0, days-1)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	if !end.Before(today) {
		// The full window has not closed yet; re-checked next run.
		return nil, nil
	}
	return m.provider.Metrics(ctx, rec.EntityType, rec.EntityID, start, end)
}

func (m *changeMonitor) Delta(baseline, current *models.PerformanceMetrics) *models.PerformanceDelta {
	if baseline == nil || current == nil {
		return nil
	}

	sentinel := m.policy.ZeroBaselineSentinelPct

	// Spend with zero conversions is an unbounded real CPA; Derive leaves
	// the ratio at zero, so the degenerate case is pinned to the sentinel
	// rather than read as a CPA improvement.
	cpaPct := pctChange(baseline.CPA, current.CPA, sentinel)
	if current.Conversions == 0 && current.Cost > 0 {
		cpaPct = sentinel
	}

	delta := &models.PerformanceDelta{
		ImpressionsChangePct: pctChange(float64(baseline.Impressions), float64(current.Impressions), sentinel),
		ClicksChangePct:      pctChange(float64(baseline.Clicks), float64(current.Clicks), sentinel),
		CostChangePct:        pctChange(baseline.Cost, current.Cost, sentinel),
		ConversionsChangePct: pctChange(baseline.Conversions, current.Conversions, sentinel),
		ValueChangePct:       pctChange(baseline.ConversionValue, current.ConversionValue, sentinel),
		CTRChangePct:         pctChange(baseline.CTR, current.CTR, sentinel),
		CPAChangePct:         cpaPct,
		ROASChangePct:        pctChange(baseline.ROAS, current.ROAS, sentinel),
		Baseline:             baseline,
		Current:              current,
	}

	delta.CPAWorsened = delta.CPAChangePct > 0
	delta.ROASWorsened = delta.ROASChangePct < 0
	delta.ConversionsDropped = delta.ConversionsChangePct < 0
	delta.ValueDropped = delta.ValueChangePct < 0
	return delta
}

func (m *changeMonitor) MarkMonitoring(ctx context.Context, rec *models.ChangeRecord) error {
	return m.changesRepo.MarkMonitoring(ctx, rec.CustomerID, rec.ID)
}

// pctChange computes (current-baseline)/baseline as a percentage. A zero
// baseline with a zero current is 0; a zero baseline with a nonzero current
// returns the configured sentinel so emergence-from-zero blowups are flagged
// instead of dividing by zero.
func pctChange(baseline, current, sentinel float64) float64 {
	if baseline == 0 {
		if current == 0 {
			return 0
		}
		return sentinel
	}
	return (current - baseline) / baseline * 100
}
