package ads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"adpilot/internal/models"
)

// Config holds the connection settings for the ads platform gateway.
type Config struct {
	Endpoint       string
	APIKey         string
	TimeoutSeconds int
}

// HTTPClient talks to the internal ads platform gateway over REST. The
// gateway wraps the actual advertising APIs; this client only knows the
// gateway's mutation surface.
type HTTPClient struct {
	config     *Config
	httpClient *http.Client
}

func NewHTTPClient(cfg *Config) *HTTPClient {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	return &HTTPClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

func (c *HTTPClient) mutate(ctx context.Context, operation, endpoint string, payload map[string]interface{}) (*MutateResponse, error) {
	url := fmt.Sprintf("%s%s", c.config.Endpoint, endpoint)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.APIKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.ExternalCallError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, &models.ExternalCallError{
			Operation: operation,
			Err:       fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var result MutateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &models.ExternalCallError{Operation: operation, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return &result, nil
}

func (c *HTTPClient) SetCampaignBudget(ctx context.Context, customerID, campaignID string, budget float64) (*MutateResponse, error) {
	return c.mutate(ctx, "set_campaign_budget", "/api/campaigns/budget", map[string]interface{}{
		"customer_id": customerID,
		"campaign_id": campaignID,
		"budget":      budget,
	})
}

func (c *HTTPClient) SetCampaignBidTarget(ctx context.Context, customerID, campaignID, bidStrategy string, target float64) (*MutateResponse, error) {
	return c.mutate(ctx, "set_campaign_bid_target", "/api/campaigns/bid-target", map[string]interface{}{
		"customer_id":  customerID,
		"campaign_id":  campaignID,
		"bid_strategy": bidStrategy,
		"target":       target,
	})
}

func (c *HTTPClient) AddKeyword(ctx context.Context, customerID, adGroupID, keywordText, matchType string, bid float64) (*MutateResponse, error) {
	return c.mutate(ctx, "add_keyword", "/api/keywords", map[string]interface{}{
		"customer_id": customerID,
		"ad_group_id": adGroupID,
		"text":        keywordText,
		"match_type":  matchType,
		"bid":         bid,
	})
}

func (c *HTTPClient) PauseKeyword(ctx context.Context, customerID, keywordID string) (*MutateResponse, error) {
	return c.mutate(ctx, "pause_keyword", "/api/keywords/pause", map[string]interface{}{
		"customer_id": customerID,
		"keyword_id":  keywordID,
	})
}

func (c *HTTPClient) EnableKeyword(ctx context.Context, customerID, keywordID string) (*MutateResponse, error) {
	return c.mutate(ctx, "enable_keyword", "/api/keywords/enable", map[string]interface{}{
		"customer_id": customerID,
		"keyword_id":  keywordID,
	})
}

func (c *HTTPClient) UpdateKeywordBid(ctx context.Context, customerID, keywordID string, bid float64) (*MutateResponse, error) {
	return c.mutate(ctx, "update_keyword_bid", "/api/keywords/bid", map[string]interface{}{
		"customer_id": customerID,
		"keyword_id":  keywordID,
		"bid":         bid,
	})
}

func (c *HTTPClient) AddNegativeKeyword(ctx context.Context, customerID, campaignID, keywordText, matchType string) (*MutateResponse, error) {
	return c.mutate(ctx, "add_negative_keyword", "/api/keywords/negative", map[string]interface{}{
		"customer_id": customerID,
		"campaign_id": campaignID,
		"text":        keywordText,
		"match_type":  matchType,
	})
}

func (c *HTTPClient) PauseAd(ctx context.Context, customerID, adID string) (*MutateResponse, error) {
	return c.mutate(ctx, "pause_ad", "/api/ads/pause", map[string]interface{}{
		"customer_id": customerID,
		"ad_id":       adID,
	})
}

func (c *HTTPClient) EnableAd(ctx context.Context, customerID, adID string) (*MutateResponse, error) {
	return c.mutate(ctx, "enable_ad", "/api/ads/enable", map[string]interface{}{
		"customer_id": customerID,
		"ad_id":       adID,
	})
}

func (c *HTTPClient) UpdateProductBid(ctx context.Context, customerID, partitionID string, bid float64) (*MutateResponse, error) {
	return c.mutate(ctx, "update_product_bid", "/api/products/bid", map[string]interface{}{
		"customer_id":  customerID,
		"partition_id": partitionID,
		"bid":          bid,
	})
}

func (c *HTTPClient) ExcludeProduct(ctx context.Context, customerID, partitionID string) (*MutateResponse, error) {
	return c.mutate(ctx, "exclude_product", "/api/products/exclude", map[string]interface{}{
		"customer_id":  customerID,
		"partition_id": partitionID,
	})
}

func (c *HTTPClient) IncludeProduct(ctx context.Context, customerID, partitionID string) (*MutateResponse, error) {
	return c.mutate(ctx, "include_product", "/api/products/include", map[string]interface{}{
		"customer_id":  customerID,
		"partition_id": partitionID,
	})
}
