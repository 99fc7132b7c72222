package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/assetpack/internal/config"
	"github.com/roach88/assetpack/internal/manifest"
	"github.com/roach88/assetpack/internal/pipeline"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Debug      bool // source maps instead of minification
	NoManifest bool // skip versioning and reference rewriting
}

// BuildSummary is the JSON payload of a successful build.
type BuildSummary struct {
	Session    string   `json:"session"`
	Generation int64    `json:"generation"`
	Entries    int      `json:"entries"`
	Artifacts  []string `json:"artifacts"`
	Written    int      `json:"written"`
	Skipped    int      `json:"skipped"`
	Manifest   int      `json:"manifest_entries"`
	DurationMS int64    `json:"duration_ms"`
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Bundle the project once",
		Long: `Resolve every entry, bundle the entry, shared and vendor chunks, extract
helpers and styles, then version the output and rewrite template references.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "debug build (source maps, no minification)")
	cmd.Flags().BoolVar(&opts.NoManifest, "no-manifest", false, "skip the content-hash manifest step")

	return cmd
}

func runBuild(opts *BuildOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	s, err := openSession(opts.RootOptions, cmd, func(c *config.Config) {
		if cmd.Flags().Changed("debug") {
			c.Debug = opts.Debug
		}
	})
	if err != nil {
		return fail(formatter, err)
	}
	defer s.Close()

	formatter.VerboseLog("Session %s, project %s", s.ID, s.Config.Root)

	res, err := pipeline.Once(cmd.Context(), s)
	if err != nil {
		return fail(formatter, err)
	}

	var mres *manifest.Result
	if !opts.NoManifest {
		mres, err = pipeline.Finalize(cmd.Context(), s)
		if err != nil {
			return fail(formatter, err)
		}
	}

	summary := BuildSummary{
		Session:    s.ID,
		Generation: res.Generation,
		Entries:    len(res.Entries),
		Artifacts:  make([]string, len(res.Artifacts)),
		Written:    len(res.Written),
		Skipped:    res.Skipped,
		DurationMS: res.Duration.Milliseconds(),
	}
	out := s.Config.OutputDir()
	for i, a := range res.Artifacts {
		summary.Artifacts[i] = relPath(out, a.Path)
	}
	if mres != nil {
		summary.Manifest = len(mres.Manifest.Entries)
	}

	if formatter.Format == "json" {
		return formatter.Success(summary)
	}
	fmt.Fprintf(formatter.Writer, "✓ Built %d entr%s in %s (%d written, %d unchanged)\n",
		summary.Entries, plural(summary.Entries, "y", "ies"), res.Duration.Round(time.Millisecond),
		summary.Written, summary.Skipped)
	for _, a := range summary.Artifacts {
		fmt.Fprintf(formatter.Writer, "  %s\n", a)
	}
	if mres != nil {
		fmt.Fprintf(formatter.Writer, "Wrote manifest with %d entr%s to %s\n",
			summary.Manifest, plural(summary.Manifest, "y", "ies"), relPath(s.Config.Root, s.Config.ManifestPath()))
	}
	return nil
}

func relPath(base, p string) string {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
