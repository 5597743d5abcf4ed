package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/stocktide/api/internal/services"
)

// PubSubMutationPublisher mirrors mutation events to a Pub/Sub topic so
// external consumers (reporting jobs, data warehouse loads) see the same
// stream the in-process pipeline does.
type PubSubMutationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubMutationPublisher constructs a Pub/Sub backed mutation publisher.
func NewPubSubMutationPublisher(topic *pubsub.Topic) (*PubSubMutationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub mutation publisher: topic is required")
	}
	return &PubSubMutationPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

type mutationMessage struct {
	Entity     string    `json:"entity"`
	Op         string    `json:"op"`
	EntityID   string    `json:"entity_id"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PublishMutation enqueues the event on the configured topic.
func (p *PubSubMutationPublisher) PublishMutation(ctx context.Context, event services.MutationEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub mutation publisher: not initialised")
	}

	data, err := p.marshal(mutationMessage{
		Entity:     event.Entity,
		Op:         event.Op,
		EntityID:   event.EntityID,
		ActorID:    event.ActorID,
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal mutation event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "entity", event.Entity)
	setAttr(attrs, "op", event.Op)
	setAttr(attrs, "entityId", event.EntityID)
	setAttr(attrs, "actorId", event.ActorID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish mutation event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

var _ services.MutationPublisher = (*PubSubMutationPublisher)(nil)
