package models

// PerformanceMetrics aggregates entity performance over a closed date window.
// CTR, CPA and ROAS are derived from the raw counters via Derive.
type PerformanceMetrics struct {
	Impressions     int64   `json:"impressions"`
	Clicks          int64   `json:"clicks"`
	Cost            float64 `json:"cost"`
	Conversions     float64 `json:"conversions"`
	ConversionValue float64 `json:"conversion_value"`
	CTR             float64 `json:"ctr"`
	CPA             float64 `json:"cpa"`
	ROAS            float64 `json:"roas"`
}

// Derive fills the ratio metrics from the raw counters. Zero denominators
// leave the ratio at zero.
func (m *PerformanceMetrics) Derive() {
	if m.Impressions > 0 {
		m.CTR = float64(m.Clicks) / float64(m.Impressions)
	}
	if m.Conversions > 0 {
		m.CPA = m.Cost / m.Conversions
	}
	if m.Cost > 0 {
		m.ROAS = m.ConversionValue / m.Cost
	}
}

// PerformanceDelta is the percentage change per metric between a baseline
// and a current window, plus the directional flags the rollback trigger
// reads. All percentages are expressed as percent (+25 means +25%).
type PerformanceDelta struct {
	ImpressionsChangePct float64 `json:"impressions_change_pct"`
	ClicksChangePct      float64 `json:"clicks_change_pct"`
	CostChangePct        float64 `json:"cost_change_pct"`
	ConversionsChangePct float64 `json:"conversions_change_pct"`
	ValueChangePct       float64 `json:"value_change_pct"`
	CTRChangePct         float64 `json:"ctr_change_pct"`
	CPAChangePct         float64 `json:"cpa_change_pct"`
	ROASChangePct        float64 `json:"roas_change_pct"`

	CPAWorsened        bool `json:"cpa_worsened"`
	ROASWorsened       bool `json:"roas_worsened"`
	ConversionsDropped bool `json:"conversions_dropped"`
	ValueDropped       bool `json:"value_dropped"`

	Baseline *PerformanceMetrics `json:"baseline"`
	Current  *PerformanceMetrics `json:"current"`
}
