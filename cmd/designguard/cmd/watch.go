package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/designguard/pkg/report"
	"github.com/OpenTraceLab/designguard/pkg/watch"
)

var (
	watchOpts     runFlags
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <directory>",
	Short: "Re-validate design files as they are saved",
	Long: `Watch a directory tree and validate each KiCad file after it changes.
Bursts of writes to the same file are collapsed into one run.
Press Ctrl+C to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchOpts.register(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before a change is validated")
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	format, _, err := watchOpts.parse()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return err
	}
	watchOpts.apply(cfg)
	v, err := newValidator(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	handle := func(ctx context.Context, path string) {
		res, err := v.ValidateFile(ctx, path)
		if err != nil {
			slog.Error("Validation failed", "file", path, "error", err)
			return
		}
		if err := report.WriteResult(out, format, res); err != nil {
			slog.Error("Cannot write report", "error", err)
		}
	}

	w, err := watch.New(dir, handle, watch.WithDebounce(watchDebounce), watch.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return w.Run(ctx)
}
