package journal

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetpack/internal/ir"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), ".assetpack", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	for i := 0; i < 3; i++ {
		j, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, j.Close())
	}
}

func TestOpen_Pragmas(t *testing.T) {
	j := openTest(t)
	assert.NoError(t, j.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, j.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, j.verifyPragma("user_version", "1"))
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer")
}

func TestRecordBuild_History(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()

	require.NoError(t, j.RecordBuild(ctx, Build{
		Session:    "s1",
		Generation: 1,
		Status:     StatusOK,
		Duration:   120 * time.Millisecond,
		Written:    3,
		Artifacts: []ir.Artifact{
			{Path: "/out/js/home/index.js", Kind: ir.ChunkEntry, Digest: "aa", Bytes: 10},
			{Path: "/out/js/common.js", Kind: ir.ChunkShared, Digest: "bb", Bytes: 20},
		},
	}))
	require.NoError(t, j.RecordBuild(ctx, Build{
		Session:    "s1",
		Generation: 2,
		Status:     StatusFailed,
		Changed:    []string{"/src/home/index.js"},
		Error:      "TRANSFORM: unexpected )",
	}))

	builds, err := j.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, int64(1), builds[0].Generation)
	assert.Equal(t, StatusOK, builds[0].Status)
	assert.Equal(t, 120*time.Millisecond, builds[0].Duration)
	assert.Equal(t, 3, builds[0].Written)
	assert.Empty(t, builds[0].Changed)
	assert.Equal(t, StatusFailed, builds[1].Status)
	assert.Equal(t, []string{"/src/home/index.js"}, builds[1].Changed)
	assert.Equal(t, "TRANSFORM: unexpected )", builds[1].Error)

	recent, err := j.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(2), recent[0].Generation)
}

func TestRecordBuild_DuplicateGenerationIgnored(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	b := Build{Session: "s1", Generation: 1, Status: StatusOK}
	require.NoError(t, j.RecordBuild(ctx, b))
	require.NoError(t, j.RecordBuild(ctx, b))

	builds, err := j.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, builds, 1)
}

func TestLatestSuccessful(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()

	latest, err := j.LatestSuccessful(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, j.RecordBuild(ctx, Build{
		Session: "s1", Generation: 1, Status: StatusOK,
		Artifacts: []ir.Artifact{
			{Path: "/out/js/z.js", Kind: ir.ChunkEntry, Digest: "zz", Bytes: 1},
			{Path: "/out/js/a.js", Kind: ir.ChunkEntry, Digest: "aa", Bytes: 2},
		},
	}))
	require.NoError(t, j.RecordBuild(ctx, Build{Session: "s1", Generation: 2, Status: StatusFailed}))

	latest, err = j.LatestSuccessful(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(1), latest.Generation)
	require.Len(t, latest.Artifacts, 2)
	assert.Equal(t, "/out/js/a.js", latest.Artifacts[0].Path)
	assert.Equal(t, ir.ChunkEntry, latest.Artifacts[0].Kind)
	assert.Equal(t, int64(2), latest.Artifacts[0].Bytes)
}

func TestRecordManifest(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()

	entries, err := j.LatestManifest(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, j.RecordManifest(ctx, "s1", 1, []ir.ManifestEntry{
		{Original: "js/old.js", Hash: "1111111111", Versioned: "js/old.1111111111.js"},
	}))
	require.NoError(t, j.RecordManifest(ctx, "s1", 3, []ir.ManifestEntry{
		{Original: "js/b.js", Hash: "2222222222", Versioned: "js/b.2222222222.js"},
		{Original: "js/a.js", Hash: "3333333333", Versioned: "js/a.3333333333.js"},
	}))

	entries, err = j.LatestManifest(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "js/a.js", entries[0].Original)
	assert.Equal(t, "js/b.2222222222.js", entries[1].Versioned)
}

func TestRecordManifest_RejectsNonInjective(t *testing.T) {
	j := openTest(t)
	err := j.RecordManifest(context.Background(), "s1", 1, []ir.ManifestEntry{
		{Original: "a.js", Hash: "1", Versioned: "same.js"},
		{Original: "b.js", Hash: "1", Versioned: "same.js"},
	})
	require.Error(t, err)

	entries, err := j.LatestManifest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries, "failed transaction leaves no partial manifest")
}

func TestIsBusy(t *testing.T) {
	assert.False(t, IsBusy(nil))
	assert.True(t, IsBusy(errors.New("database is locked")))
	assert.True(t, IsBusy(errors.New("SQLITE_BUSY: retry")))
	assert.False(t, IsBusy(errors.New("no such table")))
}
