package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"frameworks/crowsnest/pkg/logging"
)

// messageProducer is the slice of pkg/kafka.Producer this package needs.
type messageProducer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Publisher emits pipeline events to Kafka. A Publisher with a nil producer
// is valid and drops every event, so callers never need to branch on whether
// Kafka is configured.
type Publisher struct {
	producer messageProducer
	source   string
	logger   logging.Logger
}

// NewPublisher wraps a producer. Pass a nil producer to disable publishing.
func NewPublisher(producer messageProducer, logger logging.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		source:   "crowsnest",
		logger:   logger,
	}
}

// PublishItemProcessed emits one processed item event keyed by item ID.
func (p *Publisher) PublishItemProcessed(ctx context.Context, event ItemProcessedEvent) error {
	if p == nil || p.producer == nil {
		return nil
	}
	event.SchemaVersion = SchemaVersion
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal processed item event: %w", err)
	}
	return p.producer.ProduceMessage(ctx, TopicProcessedItems, []byte(event.ItemID), payload, map[string]string{
		"source":     p.source,
		"event_type": "item_processed",
		"platform":   event.Platform,
	})
}

// PublishFindings emits one aggregation round's findings.
func (p *Publisher) PublishFindings(ctx context.Context, event FindingsEvent) error {
	if p == nil || p.producer == nil {
		return nil
	}
	event.SchemaVersion = SchemaVersion
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal findings event: %w", err)
	}
	err = p.producer.ProduceMessage(ctx, TopicFindings, []byte(event.Timestamp.UTC().Format(time.RFC3339)), payload, map[string]string{
		"source":     p.source,
		"event_type": "findings",
	})
	if err != nil {
		return err
	}
	p.logger.WithFields(logging.Fields{
		"opportunities": len(event.Opportunities),
		"risks":         len(event.Risks),
		"topic":         TopicFindings,
	}).Info("Published findings")
	return nil
}
