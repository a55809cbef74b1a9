package commands

import (
	"github.com/colorlens/colorlens/pkg/db"
	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/spf13/cobra"
)

var listFormat string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded attempts from the local ledger",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listFormat, "format", FormatTable, "Output format (table, json, yaml)")
}

func runList(cmd *cobra.Command, args []string) error {
	if err := checkFormat(listFormat); err != nil {
		return err
	}
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	if err := ensureDirectories(cfg.SQLitePath, "", ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	attempts, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}
	return renderAttempts(cmd.OutOrStdout(), listFormat, attempts)
}
