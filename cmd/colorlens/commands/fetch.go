package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/colorlens/colorlens/pkg/locator"
	"github.com/colorlens/colorlens/pkg/storage"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	fetchAll         bool
	fetchConcurrency int
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [locator...]",
	Short: "Download colorized results into work-dir",
	Long: `Download results by locator (http, https, s3 or service-relative).
  --all              download every result in the service history
  s3://bucket/dir/   downloads every object under the prefix`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().BoolVar(&fetchAll, "all", false, "Download every history entry")
	fetchCmd.Flags().IntVar(&fetchConcurrency, "concurrency", 4, "Parallel downloads")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if fetchAll == (len(args) > 0) {
		return fmt.Errorf("pass locators or --all, not both and not neither")
	}
	if fetchConcurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1")
	}

	needOrigin := fetchAll
	for _, a := range args {
		if !locator.IsAbsolute(a) {
			needOrigin = true
		}
	}
	cfg, err := loadConfig(needOrigin)
	if err != nil {
		return err
	}
	if err := ensureDirectories("", "", cfg.WorkDir); err != nil {
		return err
	}

	downloader := storage.NewClient(cfg.S3Region)

	var locs []string
	if fetchAll {
		entries, err := readHistory(ctx, newTransferClient(cfg))
		if err != nil {
			return errors.Wrap(err, "history failed")
		}
		for _, e := range entries {
			if e.ResultURL != "" {
				locs = append(locs, e.ResultURL)
			}
		}
	} else {
		for _, a := range args {
			loc := locator.Resolve(cfg.ServiceOrigin, a)
			if strings.HasPrefix(strings.ToLower(loc), "s3://") && strings.HasSuffix(loc, "/") {
				expanded, err := downloader.List(ctx, loc)
				if err != nil {
					return errors.Wrap(err, "list prefix failed")
				}
				locs = append(locs, expanded...)
				continue
			}
			locs = append(locs, loc)
		}
	}

	if len(locs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to fetch")
		return nil
	}

	return downloadAll(ctx, cmd, downloader, locs, cfg.WorkDir, fetchConcurrency)
}

func downloadAll(ctx context.Context, cmd *cobra.Command, downloader *storage.Client, locs []string, dir string, concurrency int) error {
	out := cmd.OutOrStdout()
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, loc := range locs {
		g.Go(func() error {
			res, err := downloader.Download(ctx, loc, dir)
			if err != nil {
				return errors.Wrap(err, "fetch "+loc)
			}
			mu.Lock()
			fmt.Fprintf(out, "%s -> %s (%d bytes)\n", loc, res.LocalPath, res.Size)
			mu.Unlock()
			return nil
		})
	}

	return g.Wait()
}
