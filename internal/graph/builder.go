package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/assetpack/internal/ir"
	"github.com/roach88/assetpack/internal/resolve"
	"github.com/roach88/assetpack/internal/transform"
)

// Builder traverses module graphs over a session-scoped module cache.
//
// Each path is read and transformed at most once until it is invalidated.
// Concurrent requesters of a path share the first requester's result.
// Transform failures are cached as well, so a broken module is not
// re-transformed until its file changes.
//
// Thread-safety: Build and Invalidate may be called concurrently, although
// the pipeline never runs two Builds on one Builder at a time.
type Builder struct {
	root        string
	transformer transform.Transformer
	resolver    *resolve.Resolver
	external    map[string]bool
	sem         *semaphore.Weighted
	logger      *slog.Logger
	readFile    func(string) ([]byte, error)

	mu    sync.Mutex
	cache map[string]*cell
	last  *Graph

	transforms atomic.Int64
}

// cell holds one cached module. done is closed once mod/err are set.
type cell struct {
	done chan struct{}
	mod  *ir.SourceModule
	err  error
}

// Option configures a Builder.
type Option func(*Builder)

// WithExternal marks bare requests that are recorded as external edges and
// never traversed.
func WithExternal(names ...string) Option {
	return func(b *Builder) {
		for _, n := range names {
			b.external[n] = true
		}
	}
}

// WithConcurrency bounds the number of concurrent transforms.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithReadFile replaces os.ReadFile.
func WithReadFile(fn func(string) ([]byte, error)) Option {
	return func(b *Builder) {
		b.readFile = fn
	}
}

// NewBuilder creates a Builder. Module ids are relative to root.
func NewBuilder(root string, t transform.Transformer, r *resolve.Resolver, opts ...Option) *Builder {
	b := &Builder{
		root:        root,
		transformer: t,
		resolver:    r,
		external:    make(map[string]bool),
		sem:         semaphore.NewWeighted(8),
		logger:      slog.Default(),
		readFile:    os.ReadFile,
		cache:       make(map[string]*cell),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the graph reachable from roots.
//
// Every failure is collected: the returned error joins all TransformErrors,
// BundleErrors and IOErrors in path order. The partial graph is returned
// alongside the error.
func (b *Builder) Build(ctx context.Context, roots []string) (*Graph, error) {
	g := newGraph(roots)

	var (
		mu      sync.Mutex
		visited = make(map[string]bool)
		errs    []error
		eg      errgroup.Group
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	var visit func(path string)
	visit = func(path string) {
		mu.Lock()
		if visited[path] {
			mu.Unlock()
			return
		}
		visited[path] = true
		mu.Unlock()

		eg.Go(func() error {
			mod, err := b.module(ctx, path)
			if err != nil {
				fail(err)
				return nil
			}
			deps := make([]ir.Dependency, 0, len(mod.Requests))
			var next []string
			for _, req := range mod.Requests {
				if b.external[req] {
					deps = append(deps, ir.Dependency{Request: req, External: true})
					continue
				}
				p, err := b.resolver.Resolve(filepath.Dir(path), req)
				if err != nil {
					fail(ir.NewBundleError(path, req, err))
					continue
				}
				deps = append(deps, ir.Dependency{Request: req, Path: p})
				next = append(next, p)
			}
			mu.Lock()
			g.Modules[path] = mod
			g.Deps[path] = deps
			mu.Unlock()
			for _, p := range next {
				visit(p)
			}
			return nil
		})
	}
	for _, root := range roots {
		visit(root)
	}
	_ = eg.Wait()

	b.mu.Lock()
	b.last = g
	b.mu.Unlock()

	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
		return g, errors.Join(errs...)
	}
	b.logger.Debug("graph: built", "roots", len(roots), "modules", len(g.Modules))
	return g, nil
}

// module returns the cached module for path, computing it on first request.
func (b *Builder) module(ctx context.Context, path string) (*ir.SourceModule, error) {
	b.mu.Lock()
	c, ok := b.cache[path]
	if !ok {
		c = &cell{done: make(chan struct{})}
		b.cache[path] = c
		b.mu.Unlock()

		c.mod, c.err = b.load(ctx, path)
		if c.err != nil && ctx.Err() != nil {
			// Cancellation is not a property of the file.
			b.mu.Lock()
			if b.cache[path] == c {
				delete(b.cache, path)
			}
			b.mu.Unlock()
		}
		close(c.done)
		return c.mod, c.err
	}
	b.mu.Unlock()

	select {
	case <-c.done:
		return c.mod, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Builder) load(ctx context.Context, path string) (*ir.SourceModule, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.sem.Release(1)

	raw, err := b.readFile(path)
	if err != nil {
		return nil, ir.NewIOError("read module", path, err)
	}
	res, err := b.transformer.Transform(ctx, path, raw)
	b.transforms.Add(1)
	if err != nil {
		var be *ir.BuildError
		if errors.As(err, &be) {
			return nil, err
		}
		return nil, ir.NewTransformError(path, fmt.Sprintf("transform failed: %v", err), "", err)
	}
	kind := res.Kind
	if kind == "" {
		kind = ir.KindScript
	}
	mod := &ir.SourceModule{
		Path:     path,
		ID:       ir.ModuleID(b.root, path),
		Kind:     kind,
		Raw:      raw,
		Content:  res.Content,
		Requests: res.Dependencies,
		Helpers:  res.Helpers,
		Style:    res.Style,
	}
	b.logger.Debug("graph: transformed", "module", mod.ID, "kind", mod.Kind)
	return mod, nil
}

// Invalidate drops the given paths and every module that transitively
// requires them, according to the last built graph. It returns the dropped
// paths in sorted order.
func (b *Builder) Invalidate(paths []string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var rev map[string][]string
	if b.last != nil {
		rev = b.last.Dependents()
	}
	dropped := make(map[string]bool)
	stack := append([]string(nil), paths...)
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if dropped[p] {
			continue
		}
		dropped[p] = true
		stack = append(stack, rev[p]...)
	}

	out := make([]string, 0, len(dropped))
	for p := range dropped {
		if _, ok := b.cache[p]; ok {
			delete(b.cache, p)
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Transforms returns how many transforms this Builder has run.
func (b *Builder) Transforms() int64 {
	return b.transforms.Load()
}

// Cached reports whether path has a cached result.
func (b *Builder) Cached(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.cache[path]
	return ok
}
