package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ortelius/versionwatch/internal/logging"
	"github.com/ortelius/versionwatch/model"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	checkAll   bool
	checkLimit int
)

var checkCmd = &cobra.Command{
	Use:   "check [item-key]",
	Short: "Run a version check for one item, or every item with --all",
	Long: `Resolves the latest version for the given item and prints the check result as JSON.
Background enrichment and events are drained before the command exits.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if checkAll && len(args) > 0 {
			return errors.New("an item key cannot be combined with --all")
		}
		if !checkAll && len(args) != 1 {
			return errors.New("requires exactly one item key, or --all")
		}
		return nil
	},
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkAll, "all", false, "Check every item")
	checkCmd.Flags().IntVar(&checkLimit, "limit", 1000, "Maximum number of items checked with --all")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if !checkAll {
		result, err := a.checker.Check(ctx, args[0])
		if err != nil {
			return err
		}
		return enc.Encode(result)
	}

	list, err := a.store.ListItems(ctx, checkLimit)
	if err != nil {
		return err
	}

	results := make([]*model.CheckResult, 0, len(list))
	failed := 0
	for _, item := range list {
		result, err := a.checker.CheckItem(ctx, item)
		if err != nil {
			failed++
			a.logger.Warn("Check failed", zap.String("item", item.Name), logging.SafeError(err))
			continue
		}
		results = append(results, result)
	}

	if err := enc.Encode(results); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(list))
	}
	return nil
}
