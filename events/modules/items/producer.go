package items

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ortelius/versionwatch/model"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher sends item events to a Kafka topic keyed by item key.
type KafkaPublisher struct {
	Writer messageWriter
	now    func() time.Time
}

// NewKafkaPublisher initializes a new Kafka writer for item events.
func NewKafkaPublisher(brokers []string, topic string, transport *kafka.Transport) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	if transport != nil {
		w.Transport = transport
	}
	return &KafkaPublisher{Writer: w, now: time.Now}
}

// Dispatch implements checker.EventDispatcher.
func (p *KafkaPublisher) Dispatch(ctx context.Context, eventType string, payload model.EventPayload) error {
	event := newEvent(eventType, payload, p.now())

	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(payload.ItemKey),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	})
}

// RequestCheck publishes a check request for itemKey.
func (p *KafkaPublisher) RequestCheck(ctx context.Context, itemKey, requestedBy string) error {
	value, err := json.Marshal(CheckRequestedEvent{
		EventType: "item.check.requested",
		EventID:   uuid.New().String(),
		EventTime: p.now().UTC(),
		CheckRequest: model.CheckRequest{
			ItemKey:     itemKey,
			RequestedBy: requestedBy,
		},
	})
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{Key: []byte(itemKey), Value: value})
}

// Close cleans up the Kafka writer
func (p *KafkaPublisher) Close() error {
	return p.Writer.Close()
}

func newEvent(eventType string, payload model.EventPayload, now time.Time) ItemEvent {
	return ItemEvent{
		EventType:     eventType,
		EventID:       uuid.New().String(),
		EventTime:     now.UTC(),
		SchemaVersion: SchemaVersion,
		Item: ItemRef{
			Key:  payload.ItemKey,
			Name: payload.ItemName,
			Type: payload.ItemType,
			Purl: payload.Purl,
		},
		Payload: payload,
	}
}
