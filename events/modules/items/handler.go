package items

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ortelius/versionwatch/model"
	"go.uber.org/zap"
)

// CheckRunner runs one version check.
type CheckRunner interface {
	Check(ctx context.Context, itemKey string) (*model.CheckResult, error)
}

// HandleCheckRequested processes one check request message.
func HandleCheckRequested(ctx context.Context, msg []byte, runner CheckRunner, logger *zap.Logger) error {
	var event CheckRequestedEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		return fmt.Errorf("failed to unmarshal CheckRequestedEvent: %w", err)
	}

	key := strings.TrimSpace(event.ItemKey)
	if key == "" {
		return fmt.Errorf("invalid event: missing item_key")
	}

	logger.Info("Processing check request",
		zap.String("item_key", key),
		zap.String("requested_by", event.RequestedBy))

	result, err := runner.Check(ctx, key)
	if err != nil {
		return fmt.Errorf("check for %s: %w", key, err)
	}

	logger.Info("Check completed",
		zap.String("item_key", key),
		zap.String("latest_version", result.LatestVersion),
		zap.String("status", string(result.Status)),
		zap.Bool("changed", result.Changed))
	return nil
}
