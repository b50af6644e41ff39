package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"shepherd/internal/platform/config"
	audit "shepherd/pkg/platform/audit"
)

// Producer publishes audit events to Kafka. Events are keyed by child ID so a
// child's history lands on one partition in order.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer connects to the configured brokers. Returns nil if no brokers
// are configured (publishing disabled).
func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Producer{client: client, topic: cfg.AuditTopic}, nil
}

// payload is the JSON structure written to the audit topic.
type payload struct {
	Action    string `json:"action"`
	ChildID   string `json:"child_id"`
	ServiceID string `json:"service_id,omitempty"`
	ActorID   string `json:"actor_id"`
	Reason    string `json:"reason,omitempty"`
	Notes     string `json:"notes,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Publish writes one audit event, waiting for broker acknowledgement.
func (p *Producer) Publish(ctx context.Context, event audit.Event) error {
	body, err := json.Marshal(payload{
		Action:    string(event.Action),
		ChildID:   event.ChildID.String(),
		ServiceID: event.ServiceID.String(),
		ActorID:   event.ActorID.String(),
		Reason:    event.Reason,
		Notes:     event.Notes,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.ChildID),
		Value: body,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes pending records and releases the client.
func (p *Producer) Close() {
	p.client.Close()
}
