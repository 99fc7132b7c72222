package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetpack/internal/config"
	"github.com/roach88/assetpack/internal/testutil"
)

func project(t *testing.T, extra map[string]string) string {
	t.Helper()
	root := t.TempDir()
	files := testutil.ScenarioTree()
	files["assetpack.yaml"] = "js:\n  vendor:\n    modules: [lodash]\n"
	for k, v := range extra {
		files[k] = v
	}
	testutil.WriteTree(t, root, files)
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestBuildCommand_JSON(t *testing.T) {
	root := project(t, map[string]string{
		"templates/page.html": `<script src="/js/home/index.js"></script>`,
	})

	out, err := execute(t, "--dir", root, "--format", "json", "build")
	require.NoError(t, err)

	var summary BuildSummary
	decodeData(t, out, &summary)
	assert.Equal(t, int64(1), summary.Generation)
	assert.Equal(t, 2, summary.Entries)
	assert.Contains(t, summary.Artifacts, "js/home/index.js")
	assert.Contains(t, summary.Artifacts, "js/vendor.js")
	assert.Equal(t, len(summary.Artifacts), summary.Written)
	assert.Positive(t, summary.Manifest)
	assert.FileExists(t, filepath.Join(root, "dist", "manifest.json"))
}

func TestBuildCommand_Text(t *testing.T) {
	root := project(t, nil)

	out, err := execute(t, "-C", root, "build", "--no-manifest")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Built 2 entries")
	assert.Contains(t, out, "js/common.js")
	assert.NotContains(t, out, "Wrote manifest")
	assert.NoFileExists(t, filepath.Join(root, "dist", "manifest.json"))
}

func TestBuildCommand_RebuildWritesNothing(t *testing.T) {
	root := project(t, nil)

	_, err := execute(t, "-C", root, "build", "--no-manifest")
	require.NoError(t, err)

	out, err := execute(t, "-C", root, "--format", "json", "build", "--no-manifest")
	require.NoError(t, err)
	var summary BuildSummary
	decodeData(t, out, &summary)
	assert.Zero(t, summary.Written)
	assert.Equal(t, len(summary.Artifacts), summary.Skipped)
}

func TestBuildCommand_BundleErrorExitsOne(t *testing.T) {
	root := project(t, map[string]string{
		"src/home/index.js": "require('./missing');\n",
	})

	out, err := execute(t, "-C", root, "build")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E030]")
	assert.Contains(t, out, "./missing")
}

func TestBuildCommand_ConfigErrorExitsTwo(t *testing.T) {
	root := project(t, map[string]string{"assetpack.yaml": "concurrency: 0\n"})

	out, err := execute(t, "-C", root, "build")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E010]")
}

func TestFinalizeCommand_AfterBuild(t *testing.T) {
	root := project(t, nil)

	_, err := execute(t, "-C", root, "build", "--no-manifest")
	require.NoError(t, err)

	out, err := execute(t, "-C", root, "--format", "json", "finalize")
	require.NoError(t, err)

	var summary FinalizeSummary
	decodeData(t, out, &summary)
	assert.Equal(t, "dist/manifest.json", summary.Manifest)
	require.NotEmpty(t, summary.Entries)
	for _, e := range summary.Entries {
		assert.FileExists(t, filepath.Join(root, "dist", filepath.FromSlash(e.Versioned)))
	}
}

func TestFinalizeCommand_WithoutBuild(t *testing.T) {
	root := project(t, nil)

	out, err := execute(t, "-C", root, "finalize")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "run a build first")
}

func TestHistoryCommand(t *testing.T) {
	root := project(t, nil)

	out, err := execute(t, "-C", root, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No builds recorded")

	_, err = execute(t, "-C", root, "build", "--no-manifest")
	require.NoError(t, err)
	_, err = execute(t, "-C", root, "build", "--no-manifest")
	require.NoError(t, err)

	out, err = execute(t, "-C", root, "--format", "json", "history", "-n", "1")
	require.NoError(t, err)
	var entries []HistoryEntry
	decodeData(t, out, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "ok", entries[0].Status)
	assert.Equal(t, int64(1), entries[0].Generation)
	assert.Zero(t, entries[0].Written)

	out, err = execute(t, "-C", root, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "#1")
}

func TestWatchCommand_StopsOnCancel(t *testing.T) {
	root := project(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"-C", root, "watch"})
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "Stopped after 0 rebuild(s)")
}

func TestWatchOverrides_KeepConfiguredDebug(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		configured bool
		want       bool
	}{
		{"configured debug kept", nil, true, true},
		{"configured release kept", nil, false, false},
		{"flag enables debug", []string{"--debug"}, false, true},
		{"flag disables debug", []string{"--debug=false"}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewWatchCommand(&RootOptions{})
			require.NoError(t, cmd.ParseFlags(tt.args))
			debug, err := cmd.Flags().GetBool("debug")
			require.NoError(t, err)

			cfg, err := config.Default(t.TempDir())
			require.NoError(t, err)
			cfg.Debug = tt.configured
			watchOverrides(&WatchOptions{RootOptions: &RootOptions{}, Debug: debug}, cmd)(cfg)

			assert.True(t, cfg.Watch)
			assert.Equal(t, tt.want, cfg.Debug)
		})
	}
}
