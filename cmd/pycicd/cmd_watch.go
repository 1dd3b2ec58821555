package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pycicd/internal/logging"
	"pycicd/internal/readme"
	"pycicd/internal/tactile"
	"pycicd/internal/watch"
)

// Watch flags
var (
	watchDebounce time.Duration
	watchStats    time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Regenerate README tests whenever the README changes",
	Long: `Generates the README tests once, then watches the README and regenerates
them after every change. Press Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "Wait this long after the last change")
	watchCmd.Flags().DurationVar(&watchStats, "stats-interval", time.Minute, "Log watcher statistics this often (0 disables)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	if p.paths.Readme == "" {
		return &tactile.ConfigError{Field: "paths.readme", Header: "README not found."}
	}
	out := cmd.OutOrStdout()

	if path, generated, err := readme.AddReadmeTests(p.paths.Readme, p.paths.Tests); err != nil {
		return err
	} else if generated {
		fmt.Fprintf(out, "%s %s\n", okStyle.Render("Generated"), path)
	}

	w, err := watch.NewReadmeWatcher(p.paths.Readme, p.paths.Tests,
		watch.WithDebounce(watchDebounce),
		watch.OnGenerated(func(path string) {
			fmt.Fprintf(out, "%s %s\n", okStyle.Render("Generated"), path)
		}),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return watchUntilDone(ctx, w, watchStats, out)
}

// watchUntilDone runs w until ctx is cancelled, logging stats every interval.
func watchUntilDone(ctx context.Context, w *watch.ReadmeWatcher, interval time.Duration, out io.Writer) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := w.Start(gctx); err != nil {
			w.Stop()
			return err
		}
		fmt.Fprintln(out, headerStyle.Render("Watching for README changes"))
		<-gctx.Done()
		w.Stop()
		return nil
	})

	if interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					s := w.Stats()
					logging.Watch("Watcher stats: events=%d regenerated=%d unchanged=%d errors=%d",
						s.Events, s.Regenerations, s.Unchanged, s.Errors)
				}
			}
		})
	}

	return g.Wait()
}
