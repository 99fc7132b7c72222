// Package manifest versions build artifacts by content and rewrites
// references to them.
//
// Finalize hashes every artifact, copies it to dir/name.<hash>.ext, writes the
// original -> versioned map as canonical JSON and rewrites template files in
// place. Versioned copies of scripts and stylesheets carry rewritten content;
// the unversioned artifacts are left as built so incremental rebuilds keep
// comparing against the pipeline's own output.
package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/assetpack/internal/ir"
	"github.com/roach88/assetpack/internal/output"
)

// Category groups manifest entries by what the rewrite step does with them.
type Category string

const (
	CategoryScript   Category = "js"
	CategoryStyle    Category = "css"
	CategoryTemplate Category = "tmpl"
	CategoryImage    Category = "img"
	CategoryOther    Category = "other"
)

// Rewritten reports whether files of category c have references rewritten.
func (c Category) Rewritten() bool {
	return c == CategoryScript || c == CategoryStyle || c == CategoryTemplate
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".webp": true, ".ico": true, ".avif": true,
}

var versionedName = regexp.MustCompile(`\.[0-9a-f]{10}(\.[^./]+)?$`)

// IsVersioned reports whether name already carries a version token.
func IsVersioned(name string) bool {
	return versionedName.MatchString(path.Base(filepath.ToSlash(name)))
}

// VersionedPath inserts token before the extension of p.
func VersionedPath(p, token string) string {
	ext := path.Ext(p)
	return strings.TrimSuffix(p, ext) + "." + token + ext
}

// Manifest is the original -> versioned mapping of one finalize run.
type Manifest struct {
	Entries []ir.ManifestEntry
}

// Map returns the mapping keyed by original path.
func (m *Manifest) Map() map[string]string {
	out := make(map[string]string, len(m.Entries))
	for _, e := range m.Entries {
		out[e.Original] = e.Versioned
	}
	return out
}

// Lookup returns the versioned path for original.
func (m *Manifest) Lookup(original string) (string, bool) {
	i := sort.Search(len(m.Entries), func(i int) bool { return m.Entries[i].Original >= original })
	if i < len(m.Entries) && m.Entries[i].Original == original {
		return m.Entries[i].Versioned, true
	}
	return "", false
}

// Validate checks that originals are unique and that no two originals share
// a versioned path.
func (m *Manifest) Validate() error {
	originals := make(map[string]bool, len(m.Entries))
	versioned := make(map[string]string, len(m.Entries))
	for _, e := range m.Entries {
		if originals[e.Original] {
			return fmt.Errorf("manifest: duplicate original %q", e.Original)
		}
		originals[e.Original] = true
		if prev, ok := versioned[e.Versioned]; ok {
			return fmt.Errorf("manifest: %q and %q both map to %q", prev, e.Original, e.Versioned)
		}
		versioned[e.Versioned] = e.Original
	}
	return nil
}

// Encode renders the manifest as canonical JSON followed by a newline.
func (m *Manifest) Encode() ([]byte, error) {
	obj := make(map[string]any, len(m.Entries))
	for _, e := range m.Entries {
		obj[e.Original] = e.Versioned
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Options configures a Recorder. Directories are absolute.
type Options struct {
	// Root resolves Templates.
	Root string

	OutputDir    string
	ManifestPath string
	ScriptDir    string
	StyleDir     string

	// Templates are globs relative to Root rewritten in place.
	Templates []string

	// Assets are globs relative to OutputDir that are versioned but not
	// rewritten.
	Assets []string

	Concurrency int
}

// Recorder runs the finalize step.
type Recorder struct {
	opts   Options
	writer *output.Writer
	logger *slog.Logger

	// tokens caches version tokens of files not rewritten, keyed by path,
	// size and modification time.
	tokens *lru.Cache[string, string]
}

// New creates a Recorder writing through w.
func New(opts Options, w *output.Writer, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	for _, g := range append(append([]string(nil), opts.Templates...), opts.Assets...) {
		if !doublestar.ValidatePattern(g) {
			return nil, ir.NewConfigError("invalid glob %q", g)
		}
	}
	cache, err := lru.New[string, string](1024)
	if err != nil {
		return nil, err
	}
	return &Recorder{opts: opts, writer: w, logger: logger, tokens: cache}, nil
}

// Result reports what Finalize did.
type Result struct {
	Manifest  *Manifest
	Rewritten []string
	Copied    int
}

type item struct {
	path     string
	original string
	category Category
	content  []byte
	token    string
}

// Finalize versions artifacts plus the configured asset globs, writes the
// manifest and rewrites references.
func (r *Recorder) Finalize(ctx context.Context, artifacts []ir.Artifact) (*Result, error) {
	paths, err := r.collect(artifacts)
	if err != nil {
		return nil, err
	}

	items := make([]*item, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			it, err := r.hash(p)
			if err != nil {
				return err
			}
			items[i] = it
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := &Manifest{Entries: make([]ir.ManifestEntry, len(items))}
	for i, it := range items {
		m.Entries[i] = ir.ManifestEntry{
			Original:  it.original,
			Hash:      it.token,
			Versioned: VersionedPath(it.original, it.token),
		}
	}
	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].Original < m.Entries[j].Original })
	if err := m.Validate(); err != nil {
		return nil, ir.NewIOError("record manifest", r.opts.ManifestPath, err)
	}

	rw := NewRewriter(m.Map())
	res := &Result{Manifest: m}

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dst := VersionedPath(it.path, it.token)
		var data []byte
		if it.category.Rewritten() {
			data, _ = rw.Rewrite(it.content)
		} else if it.content != nil {
			data = it.content
		} else {
			if _, err := os.Stat(dst); err == nil {
				continue
			}
			data, err = os.ReadFile(it.path)
			if err != nil {
				return nil, ir.NewIOError("read asset", it.path, err)
			}
		}
		changed, err := r.writer.Write(dst, data)
		if err != nil {
			return nil, err
		}
		if changed {
			res.Copied++
		}
	}

	data, err := m.Encode()
	if err != nil {
		return nil, ir.NewIOError("encode manifest", r.opts.ManifestPath, err)
	}
	if _, err := r.writer.Write(r.opts.ManifestPath, data); err != nil {
		return nil, err
	}

	templates, err := r.templates()
	if err != nil {
		return nil, err
	}
	for _, p := range templates {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, ir.NewIOError("read template", p, err)
		}
		out, n := rw.Rewrite(content)
		if n == 0 {
			continue
		}
		changed, err := r.writer.Write(p, out)
		if err != nil {
			return nil, err
		}
		if changed {
			res.Rewritten = append(res.Rewritten, p)
		}
	}

	r.logger.Info("manifest: finalized",
		"entries", len(m.Entries),
		"copied", res.Copied,
		"rewritten", len(res.Rewritten),
		"path", r.opts.ManifestPath)
	return res, nil
}

// collect returns the absolute paths to version: artifacts first, then
// asset glob matches, without duplicates, versioned names or the manifest.
func (r *Recorder) collect(artifacts []ir.Artifact) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		p = filepath.Clean(p)
		if seen[p] || p == filepath.Clean(r.opts.ManifestPath) || IsVersioned(p) {
			return
		}
		seen[p] = true
		paths = append(paths, p)
	}
	for _, a := range artifacts {
		add(a.Path)
	}
	fsys := os.DirFS(r.opts.OutputDir)
	for _, pattern := range r.opts.Assets {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, ir.NewIOError("glob assets", pattern, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			add(filepath.Join(r.opts.OutputDir, filepath.FromSlash(m)))
		}
	}
	return paths, nil
}

func (r *Recorder) templates() ([]string, error) {
	fsys := os.DirFS(r.opts.Root)
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range r.opts.Templates {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, ir.NewIOError("glob templates", pattern, err)
		}
		for _, m := range matches {
			p := filepath.Join(r.opts.Root, filepath.FromSlash(m))
			if seen[p] || IsVersioned(p) {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// category classifies an output path.
func (r *Recorder) category(p string) Category {
	switch {
	case within(r.opts.ScriptDir, p):
		return CategoryScript
	case within(r.opts.StyleDir, p):
		return CategoryStyle
	case imageExts[strings.ToLower(filepath.Ext(p))]:
		return CategoryImage
	}
	return CategoryOther
}

func (r *Recorder) hash(p string) (*item, error) {
	rel, err := filepath.Rel(r.opts.OutputDir, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, ir.NewIOError("record manifest", p, fmt.Errorf("not under output root %s", r.opts.OutputDir))
	}
	it := &item{path: p, original: ir.NormalizePath(rel), category: r.category(p)}

	info, err := os.Stat(p)
	if err != nil {
		return nil, ir.NewIOError("stat artifact", p, err)
	}
	key := fmt.Sprintf("%s\x00%d\x00%d", p, info.Size(), info.ModTime().UnixNano())
	if !it.category.Rewritten() {
		if token, ok := r.tokens.Get(key); ok {
			it.token = token
			return it, nil
		}
	}

	content, err := os.ReadFile(p)
	if err != nil {
		return nil, ir.NewIOError("read artifact", p, err)
	}
	it.token = ir.VersionToken(content)
	if it.category.Rewritten() {
		it.content = content
	} else {
		r.tokens.Add(key, it.token)
	}
	return it, nil
}

func within(dir, p string) bool {
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
