package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/colorlens/colorlens/pkg/db"
	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cleanupAll       bool
	cleanupDownloads bool
	cleanupLedger    bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove downloaded results and ledger records",
	Long: `Clean up local state:
  --downloads   remove downloaded results from work-dir
  --ledger      delete every recorded attempt
  --all         both`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Clean downloads and ledger")
	cleanupCmd.Flags().BoolVar(&cleanupDownloads, "downloads", false, "Clean downloaded results")
	cleanupCmd.Flags().BoolVar(&cleanupLedger, "ledger", false, "Clean ledger records")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if !cleanupAll && !cleanupDownloads && !cleanupLedger {
		return fmt.Errorf("must specify --all, --downloads, or --ledger")
	}

	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if cleanupAll || cleanupDownloads {
		n, err := removeDownloads(cfg.WorkDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %d downloaded results\n", n)
	}

	if cleanupAll || cleanupLedger {
		if err := ensureDirectories(cfg.SQLitePath, "", ""); err != nil {
			return err
		}
		repo, err := db.NewRepository(cfg.SQLitePath)
		if err != nil {
			return errors.Wrap(err, "db init failed")
		}
		defer repo.Close()

		n, err := repo.DeleteAll()
		if err != nil {
			return errors.Wrap(err, "ledger cleanup failed")
		}
		fmt.Fprintf(out, "Removed %d ledger records\n", n)
	}

	return nil
}

// removeDownloads deletes the regular files directly under dir.
func removeDownloads(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to read work dir")
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return removed, errors.Wrap(err, "failed to remove download")
		}
		removed++
	}
	return removed, nil
}
