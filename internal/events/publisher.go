package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"adpilot/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Channels the control loop publishes on. Downstream reporting and alerting
// collaborators subscribe; delivery and formatting beyond this point are
// theirs.
const (
	ChannelChanges   = "adpilot:changes"
	ChannelRollbacks = "adpilot:rollbacks"
)

// Publisher emits the structured audit/rollback event feed. Publishing is
// best-effort: a feed outage must never fail the change that triggered the
// event.
type Publisher interface {
	PublishChange(ctx context.Context, rec *models.ChangeRecord)
	PublishRollbackDecision(ctx context.Context, customerID string, changeID uuid.UUID, decision *models.RollbackDecision)
}

// ChangeEvent is the wire shape of one audit append.
type ChangeEvent struct {
	EmittedAt time.Time            `json:"emitted_at"`
	Change    *models.ChangeRecord `json:"change"`
}

// RollbackEvent is the wire shape of one positive rollback decision.
type RollbackEvent struct {
	EmittedAt  time.Time                `json:"emitted_at"`
	CustomerID string                   `json:"customer_id"`
	ChangeID   uuid.UUID                `json:"change_id"`
	Decision   *models.RollbackDecision `json:"decision"`
}

type redisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) Publisher {
	return &redisPublisher{client: client}
}

func (p *redisPublisher) PublishChange(ctx context.Context, rec *models.ChangeRecord) {
	p.publish(ctx, ChannelChanges, &ChangeEvent{
		EmittedAt: time.Now().UTC(),
		Change:    rec,
	})
}

func (p *redisPublisher) PublishRollbackDecision(ctx context.Context, customerID string, changeID uuid.UUID, decision *models.RollbackDecision) {
	p.publish(ctx, ChannelRollbacks, &RollbackEvent{
		EmittedAt:  time.Now().UTC(),
		CustomerID: customerID,
		ChangeID:   changeID,
		Decision:   decision,
	})
}

func (p *redisPublisher) publish(ctx context.Context, channel string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal event for %s: %v", channel, err)
		return
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		log.Printf("Failed to publish event to %s: %v", channel, err)
	}
}

type noopPublisher struct{}

// NewNoopPublisher returns a publisher that drops every event. Used when the
// feed is disabled and in tests.
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) PublishChange(ctx context.Context, rec *models.ChangeRecord) {}

func (noopPublisher) PublishRollbackDecision(ctx context.Context, customerID string, changeID uuid.UUID, decision *models.RollbackDecision) {
}
