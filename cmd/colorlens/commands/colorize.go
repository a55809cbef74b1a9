package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/colorlens/colorlens/pkg/db"
	"github.com/colorlens/colorlens/pkg/errors"
	appfsm "github.com/colorlens/colorlens/pkg/fsm"
	"github.com/colorlens/colorlens/pkg/media"
	"github.com/colorlens/colorlens/pkg/orchestrator"
	"github.com/colorlens/colorlens/pkg/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var (
	colorizeRetries  int
	colorizeDownload bool
)

var colorizeCmd = &cobra.Command{
	Use:   "colorize <image>",
	Short: "Upload an image and wait for the colorized result",
	Long: `Uploads a PNG, JPEG or WEBP image (10 MB max) to the colorization service,
reports upload progress, and prints the result locator.
  --retry N     re-run a failed attempt up to N times
  --download    save the result into work-dir`,
	Args: cobra.ExactArgs(1),
	RunE: runColorize,
}

func init() {
	rootCmd.AddCommand(colorizeCmd)
	colorizeCmd.Flags().IntVar(&colorizeRetries, "retry", 0, "Retry a failed attempt up to N times")
	colorizeCmd.Flags().BoolVar(&colorizeDownload, "download", false, "Download the result into work-dir")
}

func runColorize(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if colorizeRetries < 0 {
		return fmt.Errorf("--retry must be non-negative")
	}

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath, cfg.WorkDir); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	orch := orchestrator.New(newTransferClient(cfg), orchestrator.WithPreviews(media.TempPreviewer{}))
	defer orch.Close()

	out := cmd.OutOrStdout()
	unwatch := orch.Watch(progressPrinter(out))
	defer unwatch()

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	downloader := storage.NewClient(cfg.S3Region)
	machine := appfsm.NewMachine(orch, repo, downloader, cfg.WorkDir, cfg.FSMMaxRetries)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	req := &appfsm.ColorizeRequest{
		Path:     args[0],
		Retries:  colorizeRetries,
		Download: colorizeDownload,
	}
	resp := &appfsm.ColorizeResponse{}

	runID := uuid.NewString()
	version, err := start(ctx, runID, fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}
	slog.Info("fsm_started", "run_id", runID, "version", version)

	waitErr := manager.Wait(ctx, version)

	// The orchestrator holds the user-facing outcome; the FSM error only
	// says the workflow stopped.
	s := orch.Snapshot()
	switch s.Phase {
	case orchestrator.PhaseSucceeded:
		fmt.Fprintf(out, "result: %s\n", s.ResultURL())
		if s.Result != nil && len(s.Result.Colors) > 0 {
			for _, c := range s.Result.Colors {
				fmt.Fprintf(out, "  %-12s %s\n", c.Name, c.Hex)
			}
		}
		if waitErr != nil {
			return errors.Wrap(waitErr, "colorized but post-processing failed")
		}
		if colorizeDownload {
			fmt.Fprintf(out, "saved under %s\n", cfg.WorkDir)
		}
		return nil
	case orchestrator.PhaseFailed:
		return fmt.Errorf("%s failure: %s", s.FailureKind(), s.FailureMessage())
	}

	if waitErr != nil {
		return errors.Wrap(waitErr, "FSM execution failed")
	}
	return fmt.Errorf("colorize ended in %s", s.Phase)
}

// progressPrinter renders orchestrator states as progress lines. It runs
// under the orchestrator's lock and only writes.
func progressPrinter(w io.Writer) func(orchestrator.State) {
	lastPct := -1
	var lastPhase orchestrator.Phase
	return func(s orchestrator.State) {
		switch s.Phase {
		case orchestrator.PhaseValidated:
			if lastPhase != s.Phase && s.File != nil {
				fmt.Fprintf(w, "selected %s (%s, %.1f MB)\n", s.File.Name, s.File.MediaType, float64(s.File.Size)/1024/1024)
			}
		case orchestrator.PhaseUploading:
			if lastPhase != s.Phase {
				lastPct = -1
				if s.Attempt > 1 {
					fmt.Fprintf(w, "retrying (attempt %d)\n", s.Attempt)
				}
			}
			if s.Progress != lastPct {
				fmt.Fprintf(w, "uploading %d%%\n", s.Progress)
				lastPct = s.Progress
			}
		case orchestrator.PhaseProcessing:
			if lastPhase != s.Phase {
				fmt.Fprintln(w, "processing…")
			}
		case orchestrator.PhaseFailed:
			fmt.Fprintf(w, "failed: %s\n", s.FailureMessage())
		}
		lastPhase = s.Phase
	}
}
