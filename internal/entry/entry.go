// Package entry discovers entry modules and derives their output paths.
package entry

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/assetpack/internal/ir"
)

// Resolver finds entry modules below the static bases of a glob list.
type Resolver struct {
	// BaseDir is the absolute base source directory globs are relative to.
	BaseDir string

	// OutputDir is the absolute directory entry chunks are re-rooted under.
	OutputDir string

	// Entry is the entry filename, e.g. "index.js".
	Entry string

	// Globs are slash-separated patterns relative to BaseDir.
	Globs []string
}

// StaticBase returns the longest prefix of glob that contains no glob
// metacharacters, cut at a path separator.
func StaticBase(glob string) string {
	base, _ := doublestar.SplitPattern(path.Clean(glob))
	return base
}

// Resolve returns the entries in glob order, then path order.
//
// Each glob contributes every file named Entry anywhere below its static
// base. A file matched by several globs belongs to the first. Output paths
// are the source path relative to the owning base, re-rooted under
// OutputDir, so they depend only on (source, base, output root).
func (r *Resolver) Resolve() ([]ir.Entry, error) {
	if r.Entry == "" {
		return nil, ir.NewConfigError("js.entry: must not be empty")
	}
	if len(r.Globs) == 0 {
		return nil, ir.NewConfigError("js.src: no entry globs configured")
	}

	seen := make(map[string]bool)
	outputs := make(map[string]string)
	var entries []ir.Entry
	for _, g := range r.Globs {
		if g == "" || !doublestar.ValidatePattern(g) {
			return nil, ir.NewConfigError("js.src: malformed glob %q", g)
		}
		base := filepath.Join(r.BaseDir, filepath.FromSlash(StaticBase(g)))
		found, err := r.find(base)
		if err != nil {
			return nil, ir.NewConfigError("js.src: globbing %q: %v", g, err)
		}
		for _, src := range found {
			if seen[src] {
				continue
			}
			seen[src] = true
			rel, err := filepath.Rel(base, src)
			if err != nil {
				return nil, ir.NewConfigError("js.src: %v", err)
			}
			out := filepath.Join(r.OutputDir, rel)
			if prev, dup := outputs[out]; dup {
				return nil, ir.NewConfigError("entries %s and %s both map to output %s", prev, src, out)
			}
			outputs[out] = src
			entries = append(entries, ir.Entry{Source: src, Base: base, Output: out})
		}
	}
	if len(entries) == 0 {
		return nil, ir.NewConfigError("no entry files named %q found under %s for %s",
			r.Entry, r.BaseDir, strings.Join(r.Globs, ", "))
	}
	return entries, nil
}

// find returns absolute paths of every entry file below base, sorted.
func (r *Resolver) find(base string) ([]string, error) {
	info, err := os.Stat(base)
	if err != nil || !info.IsDir() {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(base), "**/"+r.Entry, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.Contains("/"+m, "/node_modules/") {
			continue
		}
		out = append(out, filepath.Join(base, filepath.FromSlash(m)))
	}
	sort.Strings(out)
	return out, nil
}

// Sources returns the entry source paths in order.
func Sources(entries []ir.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Source
	}
	return out
}

// OutputDirs returns the distinct output directories of entries, sorted.
func OutputDirs(entries []ir.Entry) []string {
	set := make(map[string]bool)
	for _, e := range entries {
		set[filepath.Dir(e.Output)] = true
	}
	dirs := make([]string, 0, len(set))
	for d := range set {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}
