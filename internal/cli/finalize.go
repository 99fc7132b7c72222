package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/assetpack/internal/ir"
	"github.com/roach88/assetpack/internal/pipeline"
)

// FinalizeSummary is the JSON payload of a successful finalize.
type FinalizeSummary struct {
	Manifest  string             `json:"manifest"`
	Entries   []ir.ManifestEntry `json:"entries"`
	Copied    int                `json:"copied"`
	Rewritten []string           `json:"rewritten"`
}

// NewFinalizeCommand creates the finalize command.
func NewFinalizeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Version the last build and rewrite references",
		Long: `Copy every artifact of the last successful build to a content-hashed
name, write the manifest and rewrite references in templates.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFinalize(rootOpts, cmd)
		},
	}
	return cmd
}

func runFinalize(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	s, err := openSession(opts, cmd, nil)
	if err != nil {
		return fail(formatter, err)
	}
	defer s.Close()

	res, err := pipeline.Finalize(cmd.Context(), s)
	if err != nil {
		return fail(formatter, err)
	}

	summary := FinalizeSummary{
		Manifest:  relPath(s.Config.Root, s.Config.ManifestPath()),
		Entries:   res.Manifest.Entries,
		Copied:    res.Copied,
		Rewritten: make([]string, len(res.Rewritten)),
	}
	for i, p := range res.Rewritten {
		summary.Rewritten[i] = relPath(s.Config.Root, p)
	}

	if formatter.Format == "json" {
		return formatter.Success(summary)
	}
	fmt.Fprintf(formatter.Writer, "✓ Versioned %d file(s), wrote %s\n", len(summary.Entries), summary.Manifest)
	for _, e := range summary.Entries {
		fmt.Fprintf(formatter.Writer, "  %s → %s\n", e.Original, e.Versioned)
	}
	for _, p := range summary.Rewritten {
		fmt.Fprintf(formatter.Writer, "Rewrote %s\n", p)
	}
	return nil
}
