package items

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/ortelius/versionwatch/model"
	"go.uber.org/zap"
)

// SubjectPrefix is prepended to the event type to form the JetStream subject.
const SubjectPrefix = "events.item."

type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSPublisher publishes item events to NATS JetStream.
type NATSPublisher struct {
	js     streamPublisher
	stream string
	logger *zap.Logger
	now    func() time.Time
}

// NewNATSPublisher creates a NATSPublisher for the specified stream.
func NewNATSPublisher(js jetstream.JetStream, streamName string, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{
		js:     js,
		stream: streamName,
		logger: logger.Named("nats"),
		now:    time.Now,
	}
}

// Subject returns the subject an event type is published on.
func Subject(eventType string) string {
	return SubjectPrefix + eventType
}

// Dispatch implements checker.EventDispatcher.
func (p *NATSPublisher) Dispatch(ctx context.Context, eventType string, payload model.EventPayload) error {
	event := newEvent(eventType, payload, p.now())

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	ack, err := p.js.Publish(ctx, Subject(eventType), data, jetstream.WithMsgID(event.EventID))
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	p.logger.Debug("Published item event",
		zap.String("event_id", event.EventID),
		zap.String("subject", Subject(eventType)),
		zap.Uint64("seq", ack.Sequence))
	return nil
}

// ConnectJetStream connects to NATS and makes sure the item event stream exists.
func ConnectJetStream(ctx context.Context, natsURL, streamName string, opts ...nats.Option) (jetstream.JetStream, *nats.Conn, error) {
	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err = js.Stream(ctx, streamName); err != nil {
		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     streamName,
			Subjects: []string{SubjectPrefix + ">"},
		})
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("failed to create or get stream %s: %w", streamName, err)
		}
	}

	return js, nc, nil
}
