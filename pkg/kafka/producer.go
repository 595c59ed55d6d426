package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// MemberEvent represents a lifecycle event about a member record
type MemberEvent struct {
	EventType     string          `json:"event_type"` // created, updated, merged, deactivated
	MemberID      string          `json:"member_id"`
	Data          json.RawMessage `json:"data,omitempty"`
	SourceMembers []string        `json:"source_members,omitempty"`
	ChangedFields []string        `json:"changed_fields,omitempty"`
	Actor         string          `json:"actor,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// DetectionEvent represents the outcome of a duplicate detection run
type DetectionEvent struct {
	EventType      string    `json:"event_type"` // duplicates.detected
	RunID          string    `json:"run_id"`
	MembersScanned int       `json:"members_scanned"`
	PairsCompared  int       `json:"pairs_compared"`
	GroupsFound    int       `json:"groups_found"`
	GroupsCreated  int       `json:"groups_created"`
	Truncated      bool      `json:"truncated"`
	Timestamp      time.Time `json:"timestamp"`
}

// PublishMemberEvent publishes a member lifecycle event to Kafka
func (p *Producer) PublishMemberEvent(ctx context.Context, event *MemberEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishMemberEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.MemberID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte("1.0")},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordEventPublished(event.EventType, "failed")
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish member event")
		return err
	}

	metrics.RecordEventPublished(event.EventType, "published")
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"member_id":  event.MemberID,
	}).Debug("Published member event")

	return nil
}

// PublishMemberEvents publishes multiple member events in a batch
func (p *Producer) PublishMemberEvents(ctx context.Context, events []*MemberEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishMemberEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		messages[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(event.MemberID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "schema_version", Value: []byte("1.0")},
			},
		}
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		for _, event := range events {
			metrics.RecordEventPublished(event.EventType, "failed")
		}
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish member events batch")
		return err
	}

	for _, event := range events {
		metrics.RecordEventPublished(event.EventType, "published")
	}
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
	}).Debug("Published member events batch")

	return nil
}

// PublishDetectionEvent publishes a detection run summary to Kafka
func (p *Producer) PublishDetectionEvent(ctx context.Context, event *DetectionEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishDetectionEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.RunID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte("1.0")},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordEventPublished(event.EventType, "failed")
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish detection event")
		return err
	}

	metrics.RecordEventPublished(event.EventType, "published")
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":   event.EventType,
		"run_id":       event.RunID,
		"groups_found": event.GroupsFound,
	}).Debug("Published detection event")

	return nil
}
