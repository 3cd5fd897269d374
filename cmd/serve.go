package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/ortelius/versionwatch/internal/api"
	"github.com/ortelius/versionwatch/internal/kafka"
	"github.com/ortelius/versionwatch/internal/logging"
	"github.com/ortelius/versionwatch/restapi/modules/items"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var withConsumer bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST, GraphQL and metrics endpoints",
	Long: `Starts the HTTP API. When Kafka brokers are configured and --consume is set, the
check-request consumer runs in the same process.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&withConsumer, "consume", true, "Also consume check requests from Kafka when brokers are configured")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if withConsumer && a.cfg.Kafka.Enabled() {
		if err := kafka.RunEventProcessor(ctx, a.cfg.Kafka, a.checker, a.logger); err != nil {
			a.logger.Warn("Kafka consumer not started", logging.SafeError(err))
		}
	}

	fiberApp, err := api.NewFiberApp(&items.Handlers{
		Checker:  a.checker,
		Requests: a.checkRequester(),
		Store:    a.store,
		Enricher: a.enricher,
		Provider: a.provider,
		AIConfig: a.aiConfig,
		Logger:   a.logger.Named("api"),
	}, a.store)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
			a.logger.Warn("HTTP shutdown", logging.SafeError(err))
		}
	}()

	a.logger.Info("Starting server",
		zap.String("port", a.cfg.Server.Port),
		zap.String("graphql", "/api/v1/graphql"))
	return fiberApp.Listen(":" + a.cfg.Server.Port)
}

// checkRequester returns nil when Kafka is not configured.
func (a *app) checkRequester() items.CheckRequester {
	if a.requests == nil {
		return nil
	}
	return a.requests
}
