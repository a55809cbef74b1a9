package commands

import (
	"os"
	"path/filepath"

	"github.com/colorlens/colorlens/internal/config"
	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/colorlens/colorlens/pkg/transfer"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(sqlitePath, fsmDBPath, workDir string) error {
	if sqlitePath != "" {
		if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
			return errors.Wrap(err, "failed to create database directory")
		}
	}

	// Only needed for colorize
	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	if workDir != "" {
		if err := os.MkdirAll(workDir, 0755); err != nil {
			return errors.Wrap(err, "failed to create work directory")
		}
	}

	return nil
}

func newTransferClient(cfg *config.Config) *transfer.Client {
	return transfer.NewClient(cfg.ServiceOrigin, transfer.WithTimeout(cfg.HTTPTimeout))
}
