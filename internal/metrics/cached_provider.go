package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"adpilot/internal/models"

	"github.com/redis/go-redis/v9"
)

// cachedProvider decorates a Provider with a short-TTL redis cache. The
// monitor re-reads the same baseline windows for many changes in one pass;
// closed windows never change, so caching them is safe.
type cachedProvider struct {
	inner  Provider
	client *redis.Client
	ttl    time.Duration
}

func NewCachedProvider(inner Provider, client *redis.Client, ttl time.Duration) Provider {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &cachedProvider{inner: inner, client: client, ttl: ttl}
}

func (p *cachedProvider) Metrics(ctx context.Context, entityType models.EntityType, entityID string, startDate, endDate time.Time) (*models.PerformanceMetrics, error) {
	key := fmt.Sprintf("metrics:%s:%s:%s:%s",
		entityType, entityID, startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))

	if data, err := p.client.Get(ctx, key).Result(); err == nil {
		m := &models.PerformanceMetrics{}
		if err := json.Unmarshal([]byte(data), m); err == nil {
			return m, nil
		}
		// Corrupt cache entry, fall through to the source.
		p.client.Del(ctx, key)
	}

	m, err := p.inner.Metrics(ctx, entityType, entityID, startDate, endDate)
	if err != nil || m == nil {
		return m, err
	}

	if data, err := json.Marshal(m); err == nil {
		if err := p.client.Set(ctx, key, data, p.ttl).Err(); err != nil {
			log.Printf("Failed to cache metrics for %s: %v", key, err)
		}
	}
	return m, nil
}
