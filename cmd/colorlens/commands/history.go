package commands

import (
	"context"

	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/colorlens/colorlens/pkg/history"
	"github.com/colorlens/colorlens/pkg/transfer"
	"github.com/spf13/cobra"
)

var historyFormat string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past colorizations known to the service",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyFormat, "format", FormatTable, "Output format (table, json, yaml)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := checkFormat(historyFormat); err != nil {
		return err
	}
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	entries, err := readHistory(cmd.Context(), newTransferClient(cfg))
	if err != nil {
		return errors.Wrap(err, "history failed")
	}
	return renderHistory(cmd.OutOrStdout(), historyFormat, entries)
}

// readHistory performs one guarded history read and waits for its outcome.
func readHistory(ctx context.Context, fetcher history.Fetcher) ([]transfer.HistoryEntry, error) {
	outcomes := make(chan history.Outcome, 1)
	guard := history.NewGuard(fetcher, func(o history.Outcome) {
		outcomes <- o
	})
	defer guard.Close()

	guard.Activate()
	guard.Trigger(ctx)

	select {
	case o := <-outcomes:
		return o.Entries, o.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
