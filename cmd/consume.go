package cmd

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/ortelius/versionwatch/internal/kafka"
	"github.com/spf13/cobra"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume check requests from Kafka until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.cfg.Kafka.Enabled() {
			return errors.New("KAFKA_BROKERS is not set")
		}
		if err := kafka.RunEventProcessor(ctx, a.cfg.Kafka, a.checker, a.logger); err != nil {
			return err
		}

		<-ctx.Done()
		a.logger.Info("Shutting down consumer")
		return nil
	},
}
