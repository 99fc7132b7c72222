package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/assetpack/internal/config"
	"github.com/roach88/assetpack/internal/ir"
	"github.com/roach88/assetpack/internal/pipeline"
	"github.com/roach88/assetpack/internal/watch"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Debug bool
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild on every source change",
		Long: `Build once, then watch the base source directory and rebuild the chunks
affected by each burst of changes. Build failures are reported and the
watcher keeps running. Run "assetpack finalize" to version the output.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "debug build (source maps, no minification)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	s, err := openSession(opts.RootOptions, cmd, watchOverrides(opts, cmd))
	if err != nil {
		return fail(formatter, err)
	}
	defer s.Close()

	ctx := cmd.Context()
	notifier := watch.LogNotifier{Logger: s.Logger}
	if _, err := pipeline.Once(ctx, s); err != nil {
		if ir.IsConfigError(err) {
			return fail(formatter, err)
		}
		notifier.Notify(err)
	}

	fmt.Fprintf(formatter.GetErrWriter(), "Watching %s (Ctrl-C to stop)\n", relPath(s.Config.Root, s.Config.BaseDir()))
	ctrl := watch.New(s, watch.NewFSNotify(s.Logger), notifier)
	if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fail(formatter, err)
	}

	stats := ctrl.Stats()
	if formatter.Format == "json" {
		return formatter.Success(stats)
	}
	fmt.Fprintf(formatter.Writer, "✓ Stopped after %d rebuild(s), %d failure(s)\n", stats.Builds, stats.Failures)
	return nil
}

// watchOverrides turns on watch mode and applies --debug only when it was
// given, so the configured value stands otherwise.
func watchOverrides(opts *WatchOptions, cmd *cobra.Command) func(*config.Config) {
	return func(c *config.Config) {
		c.Watch = true
		if cmd.Flags().Changed("debug") {
			c.Debug = opts.Debug
		}
	}
}
