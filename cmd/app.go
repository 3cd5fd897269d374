package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/ortelius/versionwatch/config"
	"github.com/ortelius/versionwatch/database"
	"github.com/ortelius/versionwatch/events/modules/items"
	"github.com/ortelius/versionwatch/internal/ai"
	"github.com/ortelius/versionwatch/internal/checker"
	"github.com/ortelius/versionwatch/internal/connectors"
	"github.com/ortelius/versionwatch/internal/cve"
	"github.com/ortelius/versionwatch/internal/enrichment"
	"github.com/ortelius/versionwatch/internal/kafka"
	"github.com/ortelius/versionwatch/internal/logging"
	"github.com/ortelius/versionwatch/internal/tasks"
	"go.uber.org/zap"
)

// app holds the wired service graph shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *database.Store
	queue    *tasks.Queue
	checker  *checker.Checker
	enricher *enrichment.Service
	requests *items.KafkaPublisher
	provider enrichment.Provider
	aiConfig enrichment.Config

	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger := logging.NewLogger(level)

	a := &app{cfg: cfg, logger: logger, aiConfig: ai.EnrichmentConfig(cfg.AI)}

	conn, err := database.InitializeDatabase(ctx, cfg.Arango, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	a.store = database.NewStore(conn)

	a.queue = tasks.NewQueue(logger, cfg.Tasks.Workers, cfg.Tasks.QueueSize)

	var js jetstream.JetStream
	if cfg.NATS.URL != "" {
		var nc *nats.Conn
		js, nc, err = items.ConnectJetStream(ctx, cfg.NATS.URL, cfg.NATS.Stream, nats.Name("versionwatch"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, nc.Close)
	}

	sinks := []items.Dispatcher{}
	if cfg.Kafka.Enabled() {
		producer := items.NewKafkaPublisher(cfg.Kafka.BrokerList(), cfg.Kafka.EventsTopic, kafka.Transport(cfg.Kafka))
		a.closers = append(a.closers, func() {
			if err := producer.Close(); err != nil {
				logger.Warn("Closing Kafka producer", logging.SafeError(err))
			}
		})
		sinks = append(sinks, producer)

		a.requests = items.NewKafkaPublisher(cfg.Kafka.BrokerList(), cfg.Kafka.RequestsTopic, kafka.Transport(cfg.Kafka))
		a.closers = append(a.closers, func() {
			if err := a.requests.Close(); err != nil {
				logger.Warn("Closing Kafka request producer", logging.SafeError(err))
			}
		})
	}
	if js != nil {
		sinks = append(sinks, items.NewNATSPublisher(js, cfg.NATS.Stream, logger))
	}

	opts := []checker.Option{
		checker.WithEnricher(cve.NewOSVEnricher(a.store, cfg.Enricher.OSVURL, logger)),
	}
	if events := items.NewMultiPublisher(sinks...); events.Len() > 0 {
		opts = append(opts, checker.WithEvents(events))
	}

	registry := connectors.NewDefaultRegistry(logger, cfg.Sources)
	a.checker = checker.New(a.store, registry, a.queue, logger, opts...)

	var enrichOpts []enrichment.Option
	if js != nil {
		quotas, err := enrichment.NewKVQuotas(ctx, js, cfg.NATS.QuotaBucket)
		if err != nil {
			a.Close()
			return nil, err
		}
		enrichOpts = append(enrichOpts, enrichment.WithQuotaSource(quotas))
	}
	a.enricher = enrichment.NewService(logger, enrichOpts...)

	a.provider, err = ai.NewProvider(cfg.AI, logger)
	switch {
	case errors.Is(err, ai.ErrProviderDisabled):
		logger.Info("AI enrichment disabled: no API key configured")
		a.provider = nil
	case err != nil:
		a.Close()
		return nil, err
	}

	return a, nil
}

// Close drains queued work before closing the publishers it uses, then releases the
// remaining connections in reverse order.
func (a *app) Close() {
	if a.queue != nil {
		a.queue.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}
