package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"adpilot/internal/models"
)

// Provider is the metrics collaborator: daily-aggregated performance for one
// entity over a closed date window. A nil result with nil error means the
// collaborator has no data for the window.
type Provider interface {
	Metrics(ctx context.Context, entityType models.EntityType, entityID string, startDate, endDate time.Time) (*models.PerformanceMetrics, error)
}

// Config holds the connection settings for the rollup metrics API.
type Config struct {
	Endpoint       string
	APIKey         string
	TimeoutSeconds int
}

type httpProvider struct {
	config     *Config
	httpClient *http.Client
}

func NewHTTPProvider(cfg *Config) Provider {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 15
	}
	return &httpProvider{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

func (p *httpProvider) Metrics(ctx context.Context, entityType models.EntityType, entityID string, startDate, endDate time.Time) (*models.PerformanceMetrics, error) {
	url := fmt.Sprintf("%s/api/metrics/%s/%s?start=%s&end=%s",
		p.config.Endpoint,
		entityType,
		entityID,
		startDate.Format("2006-01-02"),
		endDate.Format("2006-01-02"),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.config.APIKey))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &models.ExternalCallError{Operation: "metrics", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &models.ExternalCallError{
			Operation: "metrics",
			Err:       fmt.Errorf("metrics API returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	m := &models.PerformanceMetrics{}
	if err := json.NewDecoder(resp.Body).Decode(m); err != nil {
		return nil, &models.ExternalCallError{Operation: "metrics", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	m.Derive()
	return m, nil
}
