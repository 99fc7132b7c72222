package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/assetpack/internal/config"
	"github.com/roach88/assetpack/internal/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// HistoryEntry is one build in JSON output.
type HistoryEntry struct {
	Session    string   `json:"session"`
	Generation int64    `json:"generation"`
	Status     string   `json:"status"`
	Changed    []string `json:"changed"`
	Error      string   `json:"error,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	Written    int      `json:"written"`
	Skipped    int      `json:"skipped"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "history",
		Short:         "List recorded build generations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of builds to show (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := config.Load(opts.Dir)
	if err != nil {
		return fail(formatter, err)
	}
	if cfg.JournalPath() == "" {
		_ = formatter.Error(ErrCodeJournal, "journal disabled in configuration", nil)
		return NewExitError(ExitCommandError, ErrCodeJournal+": journal disabled")
	}

	j, err := journal.Open(cfg.JournalPath())
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitFailure, ErrCodeJournal, err)
	}
	defer j.Close()

	builds, err := j.History(cmd.Context(), opts.Limit)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitFailure, ErrCodeJournal, err)
	}

	entries := make([]HistoryEntry, len(builds))
	for i, b := range builds {
		entries[i] = HistoryEntry{
			Session:    b.Session,
			Generation: b.Generation,
			Status:     string(b.Status),
			Changed:    b.Changed,
			Error:      b.Error,
			DurationMS: b.Duration.Milliseconds(),
			Written:    b.Written,
			Skipped:    b.Skipped,
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(formatter.Writer, "No builds recorded")
		return nil
	}
	for _, b := range builds {
		mark := "✓"
		if b.Status != journal.StatusOK {
			mark = "✗"
		}
		fmt.Fprintf(formatter.Writer, "%s %s #%d %s written=%d unchanged=%d changed=%d\n",
			mark, shortID(b.Session), b.Generation, b.Duration.Round(time.Millisecond),
			b.Written, b.Skipped, len(b.Changed))
		if b.Error != "" {
			fmt.Fprintf(formatter.Writer, "    %s\n", b.Error)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
