package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteTree writes files (slash-separated relative path to content) under root.
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		WriteFile(t, filepath.Join(root, filepath.FromSlash(rel)), content)
	}
}

// WriteFile writes one file, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// ReadFile returns the content of path as a string.
func ReadFile(t testing.TB, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// ReadTree returns every regular file under dir keyed by slash-separated
// relative path.
func ReadTree(t testing.TB, dir string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

// ModTimes returns the modification time of every regular file under dir.
func ModTimes(t testing.TB, dir string) map[string]int64 {
	t.Helper()
	out := make(map[string]int64)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		out[filepath.ToSlash(rel)] = info.ModTime().UnixNano()
		return nil
	})
	require.NoError(t, err)
	return out
}

// ScenarioTree is the canonical two-page project: home and about share
// util/format.js, both call the _classCallCheck runtime helper and both
// require the vendor module lodash.
func ScenarioTree() map[string]string {
	return map[string]string{
		"src/home/index.js": "var format = require('../util/format');\n" +
			"var _ = require('lodash');\n" +
			"function Page() { _classCallCheck(this, Page); }\n" +
			"new Page();\n" +
			"document.title = format(_.capitalize('home'));\n",
		"src/about/index.js": "var format = require('../util/format');\n" +
			"var _ = require('lodash');\n" +
			"function Page() { _classCallCheck(this, Page); }\n" +
			"new Page();\n" +
			"document.title = format(_.capitalize('about'));\n",
		"src/util/format.js":               "module.exports = function(s) { return '[' + s + ']'; };\n",
		"node_modules/lodash/package.json": `{"name": "lodash", "main": "lodash.js"}` + "\n",
		"node_modules/lodash/lodash.js":    "exports.capitalize = function(s) { return s.charAt(0).toUpperCase() + s.slice(1); };\n",
	}
}
