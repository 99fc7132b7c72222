package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetpack/internal/config"
	"github.com/roach88/assetpack/internal/ir"
	"github.com/roach88/assetpack/internal/journal"
	"github.com/roach88/assetpack/internal/session"
	"github.com/roach88/assetpack/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scenario(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	testutil.WriteTree(t, root, testutil.ScenarioTree())
	return root
}

func newSession(t *testing.T, root string, mutate func(*config.Config), opts ...session.Option) *session.Session {
	t.Helper()
	cfg, err := config.Default(root)
	require.NoError(t, err)
	cfg.JS.Vendor.Modules = []string{"lodash"}
	cfg.Debug = true
	if mutate != nil {
		mutate(cfg)
	}
	opts = append([]session.Option{session.WithLogger(quietLogger())}, opts...)
	s, err := session.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dist(root string, parts ...string) string {
	return filepath.Join(append([]string{root, "dist"}, parts...)...)
}

func TestOnce_Scenario(t *testing.T) {
	root := scenario(t)
	s := newSession(t, root, nil)

	res, err := Once(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Generation)
	require.Len(t, res.Entries, 2)

	home := testutil.ReadFile(t, dist(root, "js", "home", "index.js"))
	assert.Contains(t, home, `__modules__["src/home/index.js"]`)
	assert.Contains(t, home, `__require__("src/home/index.js");`)
	assert.NotContains(t, home, `__modules__["src/util/format.js"]`)
	assert.NotContains(t, home, `lodash.js`)

	about := testutil.ReadFile(t, dist(root, "js", "about", "index.js"))
	assert.Contains(t, about, `__modules__["src/about/index.js"]`)
	assert.NotContains(t, about, `__modules__["src/home/index.js"]`)

	shared := testutil.ReadFile(t, dist(root, "js", "common.js"))
	assert.Contains(t, shared, `__modules__["src/util/format.js"]`)
	assert.Contains(t, shared, "window.__require__")
	assert.NotContains(t, shared, "capitalize = function")

	vendor := testutil.ReadFile(t, dist(root, "js", "vendor.js"))
	assert.Contains(t, vendor, `__modules__["node_modules/lodash/lodash.js"]`)
	assert.Contains(t, vendor, `__modules__["lodash"]`)

	helpers := testutil.ReadFile(t, dist(root, "js", "helpers.js"))
	assert.Equal(t, 1, strings.Count(helpers, `__helpers__["_classCallCheck"] = function`))
	for name, chunk := range map[string]string{"home": home, "about": about} {
		assert.Contains(t, chunk, `var _classCallCheck = __helpers__["_classCallCheck"];`, name)
		assert.NotContains(t, chunk, "Cannot call a class", name)
		assert.NotContains(t, chunk, "//@assetpack:helper", name)
	}
	assert.FileExists(t, dist(root, "css", "bundle.css"))
	assert.FileExists(t, dist(root, "js", "home", "index.js.map"))
	assert.Contains(t, home, "//# sourceMappingURL=index.js.map")
}

func TestOnce_ChunksPartitionReachableModules(t *testing.T) {
	root := scenario(t)
	s := newSession(t, root, nil)

	res, err := Once(context.Background(), s)
	require.NoError(t, err)

	owner := make(map[string]ir.ChunkKind)
	for _, c := range res.Chunks {
		if c.Kind == ir.ChunkVendor {
			continue
		}
		for _, m := range c.Modules {
			_, dup := owner[m]
			assert.False(t, dup, "module %s in two chunks", m)
			owner[m] = c.Kind
		}
	}
	assert.Equal(t, map[string]ir.ChunkKind{
		filepath.Join(root, "src", "home", "index.js"):  ir.ChunkEntry,
		filepath.Join(root, "src", "about", "index.js"): ir.ChunkEntry,
		filepath.Join(root, "src", "util", "format.js"): ir.ChunkShared,
	}, owner)
}

func TestOnce_RebuildIsByteIdentical(t *testing.T) {
	root := scenario(t)
	s := newSession(t, root, nil)
	_, err := Once(context.Background(), s)
	require.NoError(t, err)
	first := testutil.ReadTree(t, dist(root))

	// Same session: nothing is rewritten.
	res, err := Once(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, res.Written)
	assert.Equal(t, first, testutil.ReadTree(t, dist(root)))

	// Fresh session over a clean output directory.
	require.NoError(t, os.RemoveAll(dist(root)))
	fresh := newSession(t, root, nil, session.WithoutJournal())
	_, err = Once(context.Background(), fresh)
	require.NoError(t, err)
	assert.Equal(t, first, testutil.ReadTree(t, dist(root)))
}

func TestBuild_EditTouchesOnlyOwningChunk(t *testing.T) {
	root := scenario(t)
	s := newSession(t, root, func(c *config.Config) { c.Debug = false })
	ctx := context.Background()

	_, err := Once(ctx, s)
	require.NoError(t, err)
	require.Equal(t, int64(3), s.Graph.Transforms())
	before := testutil.ModTimes(t, dist(root))
	shared := testutil.ReadFile(t, dist(root, "js", "common.js"))

	homeSrc := filepath.Join(root, "src", "home", "index.js")
	testutil.WriteFile(t, homeSrc, strings.Replace(testutil.ScenarioTree()["src/home/index.js"], "'home'", "'start'", 1))

	res, err := Build(ctx, s, s.Clock.Next(), []string{homeSrc})
	require.NoError(t, err)
	assert.Equal(t, []string{homeSrc}, res.Invalidated)
	assert.Equal(t, []string{dist(root, "js", "home", "index.js")}, res.Written)
	assert.Equal(t, int64(4), s.Graph.Transforms(), "only the edited module is transformed again")
	assert.Contains(t, testutil.ReadFile(t, dist(root, "js", "home", "index.js")), "start")
	assert.Equal(t, shared, testutil.ReadFile(t, dist(root, "js", "common.js")))

	after := testutil.ModTimes(t, dist(root))
	for path, mtime := range before {
		if path == filepath.ToSlash(filepath.Join("js", "home", "index.js")) {
			continue
		}
		assert.Equal(t, mtime, after[path], "%s was rewritten", path)
	}
}

func TestBuild_DroppedStyleAndHelperMatchFreshBuild(t *testing.T) {
	root := scenario(t)
	homeSrc := filepath.Join(root, "src", "home", "index.js")
	testutil.WriteTree(t, root, map[string]string{
		"src/home/index.js":  testutil.ScenarioTree()["src/home/index.js"] + "require('./home.css');\n",
		"src/home/home.css":  ".home { color: red; }\n",
		"src/about/index.js": "var format = require('../util/format');\ndocument.title = format('about');\n",
	})
	s := newSession(t, root, nil)
	ctx := context.Background()

	_, err := Once(ctx, s)
	require.NoError(t, err)
	require.Contains(t, testutil.ReadFile(t, dist(root, "css", "bundle.css")), ".home")
	require.Contains(t, testutil.ReadFile(t, dist(root, "js", "helpers.js")), "_classCallCheck")

	testutil.WriteFile(t, homeSrc, "document.title = 'x';\n")
	_, err = Build(ctx, s, s.Clock.Next(), []string{homeSrc})
	require.NoError(t, err)

	css := testutil.ReadFile(t, dist(root, "css", "bundle.css"))
	helpers := testutil.ReadFile(t, dist(root, "js", "helpers.js"))
	assert.NotContains(t, css, ".home")
	assert.NotContains(t, helpers, "_classCallCheck")

	incremental := testutil.ReadTree(t, dist(root))
	fresh := newSession(t, root, nil)
	res, err := Once(ctx, fresh)
	require.NoError(t, err)
	assert.Empty(t, res.Written, "a fresh build writes the same bytes")
	assert.Equal(t, incremental, testutil.ReadTree(t, dist(root)))
}

func TestOnce_RecreatesRemovedOutputRoot(t *testing.T) {
	root := scenario(t)
	s := newSession(t, root, nil)
	ctx := context.Background()

	_, err := Once(ctx, s)
	require.NoError(t, err)
	first := testutil.ReadTree(t, dist(root))

	require.NoError(t, os.RemoveAll(dist(root)))

	res, err := Once(ctx, s)
	require.NoError(t, err)
	assert.Len(t, res.Written, len(res.Artifacts))
	assert.Equal(t, first, testutil.ReadTree(t, dist(root)))
}

func TestOnce_EmptyVendorWritesEmptyFile(t *testing.T) {
	for _, debug := range []bool{true, false} {
		root := scenario(t)
		s := newSession(t, root, func(c *config.Config) {
			c.JS.Vendor.Modules = nil
			c.Debug = debug
		})
		res, err := Once(context.Background(), s)
		require.NoError(t, err)

		info, err := os.Stat(dist(root, "js", "vendor.js"))
		require.NoError(t, err)
		assert.Zero(t, info.Size(), "debug=%v", debug)
		assert.NoFileExists(t, dist(root, "js", "vendor.js.map"))

		// lodash is bundled from the shared chunk instead.
		var shared ir.Chunk
		for _, c := range res.Chunks {
			if c.Kind == ir.ChunkShared {
				shared = c
			}
		}
		assert.Contains(t, shared.Modules, filepath.Join(root, "node_modules", "lodash", "lodash.js"))
	}
}

func TestBuild_SupersededWritesNothing(t *testing.T) {
	root := scenario(t)
	s := newSession(t, root, nil)
	stale := s.Clock.Next()
	s.Clock.Next()

	_, err := Build(context.Background(), s, stale, nil)
	require.ErrorIs(t, err, ir.ErrSuperseded)
	assert.NoFileExists(t, dist(root, "js", "home", "index.js"))

	builds, err := s.Journal.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, builds)
}

func TestBuild_TransformErrorIsJournaled(t *testing.T) {
	root := scenario(t)
	testutil.WriteFile(t, filepath.Join(root, "src", "home", "index.js"), "var x = (1;\n")
	s := newSession(t, root, nil)

	_, err := Once(context.Background(), s)
	require.Error(t, err)
	assert.True(t, ir.IsTransformError(err))

	builds, err := s.Journal.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, journal.StatusFailed, builds[0].Status)
	assert.Contains(t, builds[0].Error, "TRANSFORM")
}

func TestBuild_MissingVendorAndModuleJoinErrors(t *testing.T) {
	root := scenario(t)
	testutil.WriteFile(t, filepath.Join(root, "src", "home", "index.js"), "require('./missing');\n")
	s := newSession(t, root, func(c *config.Config) { c.JS.Vendor.Modules = []string{"lodash", "left-pad"} })

	_, err := Once(context.Background(), s)
	require.Error(t, err)
	assert.True(t, ir.IsBundleError(err))
	assert.Contains(t, err.Error(), `"./missing"`)
	assert.Contains(t, err.Error(), `"left-pad"`)
}

func TestOnce_JournalRecordsArtifacts(t *testing.T) {
	root := scenario(t)
	s := newSession(t, root, nil)
	res, err := Once(context.Background(), s)
	require.NoError(t, err)

	latest, err := s.Journal.LatestSuccessful(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, s.ID, latest.Session)
	assert.Equal(t, res.Artifacts, latest.Artifacts)
}

func TestFinalize(t *testing.T) {
	root := scenario(t)
	testutil.WriteFile(t, filepath.Join(root, "templates", "index.html"),
		`<script src="/js/vendor.js"></script><script src="/js/common.js"></script><script src="/js/home/index.js"></script>`)
	s := newSession(t, root, func(c *config.Config) { c.Templates = []string{"templates/*.html"} })
	ctx := context.Background()

	_, err := Once(ctx, s)
	require.NoError(t, err)
	res, err := Finalize(ctx, s)
	require.NoError(t, err)

	versioned, ok := res.Manifest.Lookup("js/home/index.js")
	require.True(t, ok)
	assert.FileExists(t, dist(root, filepath.FromSlash(versioned)))
	assert.FileExists(t, dist(root, "manifest.json"))

	page := testutil.ReadFile(t, filepath.Join(root, "templates", "index.html"))
	assert.Contains(t, page, "/"+versioned)
	assert.NotContains(t, page, "/js/home/index.js\"")

	entries, err := s.Journal.LatestManifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Manifest.Entries, entries)
}

func TestFinalize_UsesJournalFromEarlierSession(t *testing.T) {
	root := scenario(t)
	first := newSession(t, root, nil)
	_, err := Once(context.Background(), first)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newSession(t, root, nil)
	res, err := Finalize(context.Background(), second)
	require.NoError(t, err)
	_, ok := res.Manifest.Lookup("js/common.js")
	assert.True(t, ok)
}

func TestFinalize_WithoutBuild(t *testing.T) {
	root := scenario(t)
	s := newSession(t, root, nil, session.WithoutJournal())
	_, err := Finalize(context.Background(), s)
	require.Error(t, err)
	assert.True(t, ir.IsConfigError(err))
}
