package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pycicd/internal/store"
)

// History flags
var (
	historyLimit int
	historyPrune int
	historyShow  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded pipeline runs",
	Long: `Lists recorded runs newest first.

Examples:
  pycicd history --limit 5
  pycicd history --show <run-id>   # steps and commands of one run
  pycicd history --prune 50        # keep the 50 newest runs`,
	Args: cobra.NoArgs,
	RunE: showHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list")
	historyCmd.Flags().IntVar(&historyPrune, "prune", 0, "Delete all but the newest N runs")
	historyCmd.Flags().StringVar(&historyShow, "show", "", "Show one run in detail")
}

func showHistory(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	h, err := store.Open(p.paths.Abs(p.cfg.History.Path))
	if err != nil {
		return err
	}
	defer h.Close()

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	if historyPrune > 0 {
		n, err := h.Prune(ctx, historyPrune)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Pruned %d runs\n", n)
	}

	if historyShow != "" {
		run, err := h.GetRun(ctx, historyShow)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %s not found", historyShow)
		}
		printRunSummary(out, run)
		for _, c := range run.Commands {
			fmt.Fprintf(out, "  %s %3d %8s %s\n", labelStyle.Render(c.Stage), c.ExitCode, c.Duration.Round(time.Millisecond), c.Command)
		}
		if run.Error != "" {
			fmt.Fprintln(out, failStyle.Render(run.Error))
		}
		return nil
	}

	runs, err := h.RecentRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(out, "%s  %s  %-7s %-10s %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.ID, statusText(r.Status), r.Version, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	return nil
}
