package ads

import "context"

// Mutation statuses returned by the platform.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// MutateResponse is the platform's answer to one mutation. The control loop
// assumes nothing about remote consistency beyond this value.
type MutateResponse struct {
	Status      string `json:"status"`
	ResourceRef string `json:"resource_ref,omitempty"`
	Error       string `json:"error,omitempty"`
}

// OK reports whether the mutation was accepted.
func (r *MutateResponse) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

// Client is the external action interface: one operation per lever category.
// Every call is bounded by the client's timeout; a timeout is a failure.
type Client interface {
	SetCampaignBudget(ctx context.Context, customerID, campaignID string, budget float64) (*MutateResponse, error)
	SetCampaignBidTarget(ctx context.Context, customerID, campaignID, bidStrategy string, target float64) (*MutateResponse, error)

	AddKeyword(ctx context.Context, customerID, adGroupID, keywordText, matchType string, bid float64) (*MutateResponse, error)
	PauseKeyword(ctx context.Context, customerID, keywordID string) (*MutateResponse, error)
	EnableKeyword(ctx context.Context, customerID, keywordID string) (*MutateResponse, error)
	UpdateKeywordBid(ctx context.Context, customerID, keywordID string, bid float64) (*MutateResponse, error)
	AddNegativeKeyword(ctx context.Context, customerID, campaignID, keywordText, matchType string) (*MutateResponse, error)

	PauseAd(ctx context.Context, customerID, adID string) (*MutateResponse, error)
	EnableAd(ctx context.Context, customerID, adID string) (*MutateResponse, error)

	UpdateProductBid(ctx context.Context, customerID, partitionID string, bid float64) (*MutateResponse, error)
	ExcludeProduct(ctx context.Context, customerID, partitionID string) (*MutateResponse, error)
	IncludeProduct(ctx context.Context, customerID, partitionID string) (*MutateResponse, error)
}
