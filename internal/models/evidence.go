package models

// JSONB represents a JSON object stored in a JSONB column
type JSONB map[string]interface{}

// KeywordEvidence carries the keyword statistics a recommendation was scored
// on. The guardrail data-sufficiency checks read these, so a keyword
// recommendation without evidence is blocked rather than trusted.
type KeywordEvidence struct {
	Clicks30d      int     `json:"clicks_30d"`
	Impressions30d int64   `json:"impressions_30d"`
	Cost30d        float64 `json:"cost_30d"`
	Conversions30d float64 `json:"conversions_30d"`
}

// AdEvidence carries ad and ad-group statistics for ad pause/enable checks.
// PauseGround says which metric the pause recommendation was based on.
type AdEvidence struct {
	Impressions30d   int64   `json:"impressions_30d"`
	Clicks30d        int     `json:"clicks_30d"`
	ActiveAdsInGroup int     `json:"active_ads_in_group"`
	CTRChangePct     float64 `json:"ctr_change_pct"`
	PauseGround      string  `json:"pause_ground,omitempty"` // "ctr" or "cvr"
}

// ProductEvidence carries product feed state for product-level protections.
type ProductEvidence struct {
	InStock            bool `json:"in_stock"`
	SoleItemInCategory bool `json:"sole_item_in_category"`
	OpenFeedIssues     int  `json:"open_feed_issues"`
}

// Evidence is the typed evidence attached to a recommendation. Exactly the
// section matching the action's lever is expected to be set; Extra round-trips
// any additional fields the rules collaborator emits so nothing is lost from
// the audit trail.
type Evidence struct {
	Keyword *KeywordEvidence `json:"keyword,omitempty"`
	Ad      *AdEvidence      `json:"ad,omitempty"`
	Product *ProductEvidence `json:"product,omitempty"`
	Extra   JSONB            `json:"extra,omitempty"`
}
