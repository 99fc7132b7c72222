// Package vendorbundle bundles the configured third-party modules into one chunk.
//
// Every named module is registered under its request name, so the
// externalized requires left in entry and shared chunks find it at runtime.
// The bundler owns its graph builder and cache, which lets it run
// concurrently with the main graph without sharing state.
package vendorbundle

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/roach88/assetpack/internal/chunk"
	"github.com/roach88/assetpack/internal/graph"
	"github.com/roach88/assetpack/internal/ir"
	"github.com/roach88/assetpack/internal/resolve"
	"github.com/roach88/assetpack/internal/transform"
)

// Bundler builds the vendor chunk.
type Bundler struct {
	root     string
	names    []string
	output   string
	resolver *resolve.Resolver
	builder  *graph.Builder
	logger   *slog.Logger
}

// Result is a built vendor chunk.
type Result struct {
	Chunk   ir.Chunk
	Content []byte

	// Modules are the bundled modules sorted by id.
	Modules []*ir.SourceModule
}

// New creates a Bundler for names, writing to output. Module ids are
// relative to root and bare names resolve through r.
func New(root string, names []string, output string, t transform.Transformer, r *resolve.Resolver, logger *slog.Logger, opts ...graph.Option) *Bundler {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	opts = append([]graph.Option{graph.WithLogger(logger)}, opts...)
	return &Bundler{
		root:     root,
		names:    sorted,
		output:   output,
		resolver: r,
		builder:  graph.NewBuilder(root, t, r, opts...),
		logger:   logger,
	}
}

// Names returns the vendor module names in sorted order.
func (b *Bundler) Names() []string { return b.names }

// Output returns the vendor chunk path.
func (b *Bundler) Output() string { return b.output }

// Bundle builds the vendor chunk. With no names configured the content is
// empty and the chunk has no modules.
func (b *Bundler) Bundle(ctx context.Context) (*Result, error) {
	res := &Result{Chunk: ir.Chunk{Kind: ir.ChunkVendor, Output: b.output, Modules: []string{}}}
	if len(b.names) == 0 {
		res.Content = []byte{}
		return res, nil
	}

	var errs []error
	roots := make([]string, 0, len(b.names))
	rootOf := make(map[string]string, len(b.names))
	for _, name := range b.names {
		p, err := b.resolver.Resolve(b.root, name)
		if err != nil {
			errs = append(errs, ir.NewBundleError(b.output, name, err))
			continue
		}
		roots = append(roots, p)
		rootOf[name] = p
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	g, err := b.builder.Build(ctx, roots)
	if err != nil {
		return nil, err
	}

	mods := make([]chunk.Module, 0, len(g.Modules)+len(b.names))
	for _, m := range g.Sorted() {
		res.Chunk.Modules = append(res.Chunk.Modules, m.Path)
		res.Modules = append(res.Modules, m)
		mods = append(mods, chunk.Module{ID: m.ID, Content: m.Content, Deps: g.DepMap(m.Path)})
	}
	for _, name := range b.names {
		id := g.Modules[rootOf[name]].ID
		if id == name {
			continue
		}
		mods = append(mods, chunk.Module{
			ID:      name,
			Content: []byte("module.exports = require(" + ir.Quote(name) + ");\n"),
			Deps:    map[string]string{name: id},
		})
	}
	res.Content = chunk.Render(ir.ChunkVendor, mods, "")
	b.logger.Debug("vendor: bundled", "names", len(b.names), "modules", len(g.Modules))
	return res, nil
}
