// Package kafka runs the check-request consumer and builds broker connections.
package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ortelius/versionwatch/config"
	"github.com/ortelius/versionwatch/events/modules/items"
	"github.com/ortelius/versionwatch/internal/logging"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"go.uber.org/zap"
)

const dialAttempts = 3

// Dialer configures SASL/PLAIN over TLS when credentials are set.
func Dialer(cfg config.KafkaConfig) *kafka.Dialer {
	if cfg.APIKey != "" && cfg.APISecret != "" {
		return &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
			SASLMechanism: plain.Mechanism{
				Username: cfg.APIKey,
				Password: cfg.APISecret,
			},
			TLS: &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}
	return &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
}

// Transport is the writer-side equivalent of Dialer. It returns nil for plain connections.
func Transport(cfg config.KafkaConfig) *kafka.Transport {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil
	}
	return &kafka.Transport{
		SASL: plain.Mechanism{
			Username: cfg.APIKey,
			Password: cfg.APISecret,
		},
		TLS: &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// messageReader is the subset of kafka.Reader the consumer loop uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// RunEventProcessor verifies the first broker is reachable and starts consuming check
// requests in the background. It returns once the consumer is running.
func RunEventProcessor(ctx context.Context, cfg config.KafkaConfig, runner items.CheckRunner, logger *zap.Logger) error {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	logger = logger.Named("kafka")
	dialer := Dialer(cfg)

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), dialAttempts-1), ctx)
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		logger.Info("Kafka connection attempt", zap.Int("attempt", attempt), zap.Int("of", dialAttempts))
		conn, err := dialer.DialContext(ctx, "tcp", brokers[0])
		if err != nil {
			return err
		}
		return conn.Close()
	}, bo, func(err error, wait time.Duration) {
		logger.Warn("Kafka not reachable yet", zap.Duration("retry_in", wait), logging.SafeError(err))
	})
	if err != nil {
		return fmt.Errorf("connecting to kafka %s: %w", brokers[0], err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.RequestsTopic,
		MaxBytes: 10e6,
		Dialer:   dialer,
	})

	go consume(ctx, reader, runner, logger)
	return nil
}

func consume(ctx context.Context, reader messageReader, runner items.CheckRunner, logger *zap.Logger) {
	defer reader.Close()
	logger.Info("Kafka event processor started. Listening for check requests...")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Failed to read check request", logging.SafeError(err))
			continue
		}
		if err := items.HandleCheckRequested(ctx, msg.Value, runner, logger); err != nil {
			logger.Warn("Check request failed",
				zap.Int64("offset", msg.Offset),
				logging.SafeError(err))
		}
	}
}
