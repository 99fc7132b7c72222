// Package session holds the state of one build session.
//
// A Session owns every cache that lives longer than a single build: the
// module graph cache, the vendor bundle cache, the output writer's record of
// written bytes and the generation clock. Extraction state is per build. There are no package-level singletons; two sessions
// over two projects share nothing.
package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/assetpack/internal/config"
	"github.com/roach88/assetpack/internal/entry"
	"github.com/roach88/assetpack/internal/extract"
	"github.com/roach88/assetpack/internal/graph"
	"github.com/roach88/assetpack/internal/ir"
	"github.com/roach88/assetpack/internal/journal"
	"github.com/roach88/assetpack/internal/manifest"
	"github.com/roach88/assetpack/internal/output"
	"github.com/roach88/assetpack/internal/resolve"
	"github.com/roach88/assetpack/internal/transform"
	"github.com/roach88/assetpack/internal/vendorbundle"
)

// Session is the lifetime object of one build or watch run.
type Session struct {
	ID     string
	Config *config.Config
	Clock  Clock
	Logger *slog.Logger

	Entries  *entry.Resolver
	Graph    *graph.Builder
	Vendor   *vendorbundle.Bundler
	Writer   *output.Writer
	Plugins  []extract.Plugin
	Recorder *manifest.Recorder

	// Journal is nil when the journal is disabled.
	Journal *journal.Journal

	mu        sync.Mutex
	artifacts []ir.Artifact
	applied   int64
	ownsJ     bool
}

type options struct {
	clock       Clock
	logger      *slog.Logger
	transformer transform.Transformer
	vendor      transform.Transformer
	writer      *output.Writer
	journal     *journal.Journal
	noJournal   bool
	plugins     []extract.Plugin
}

// Option configures a Session.
type Option func(*options)

// WithClock replaces the generation clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTransformer replaces the main graph's transform chain.
func WithTransformer(t transform.Transformer) Option {
	return func(o *options) { o.transformer = t }
}

// WithVendorTransformer replaces the vendor graph's transform chain.
func WithVendorTransformer(t transform.Transformer) Option {
	return func(o *options) { o.vendor = t }
}

// WithWriter replaces the output writer.
func WithWriter(w *output.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithJournal uses j instead of opening the configured journal. The caller
// keeps ownership of j.
func WithJournal(j *journal.Journal) Option {
	return func(o *options) { o.journal = j }
}

// WithoutJournal disables the journal regardless of configuration.
func WithoutJournal() Option {
	return func(o *options) { o.noJournal = true }
}

// WithPlugins replaces the standard extraction plugins.
func WithPlugins(plugins ...extract.Plugin) Option {
	return func(o *options) { o.plugins = plugins }
}

// New validates cfg and assembles a Session.
func New(cfg *config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	logger := o.logger.With("session", id.String())

	topts := transform.Options{Root: cfg.Root, Production: !cfg.Debug, Define: cfg.Define}
	if o.transformer == nil {
		o.transformer = transform.Default(topts)
	}
	if o.vendor == nil {
		o.vendor = transform.Vendor(topts)
	}
	if o.writer == nil {
		o.writer = output.New(output.WithLogger(logger))
	}
	if o.plugins == nil {
		o.plugins = extract.Standard(extract.Options{
			HelperPath: cfg.HelperPath(),
			StylePath:  cfg.StylePath(),
			Debug:      cfg.Debug,
		})
	}

	s := &Session{
		ID:      id.String(),
		Config:  cfg,
		Logger:  logger,
		Writer:  o.writer,
		Plugins: o.plugins,
	}

	if !o.noJournal {
		switch {
		case o.journal != nil:
			s.Journal = o.journal
		case cfg.JournalPath() != "":
			j, err := journal.Open(cfg.JournalPath())
			if err != nil {
				return nil, ir.NewIOError("open journal", cfg.JournalPath(), err)
			}
			s.Journal = j
			s.ownsJ = true
		}
	}

	s.Clock = o.clock
	if s.Clock == nil {
		s.Clock = NewClock()
	}

	s.Entries = &entry.Resolver{
		BaseDir:   cfg.BaseDir(),
		OutputDir: cfg.ScriptDir(),
		Entry:     cfg.JS.Entry,
		Globs:     cfg.JS.Src,
	}
	resolver := resolve.New(cfg.SearchDirs()...)
	s.Graph = graph.NewBuilder(cfg.Root, o.transformer, resolver,
		graph.WithExternal(cfg.JS.Vendor.Modules...),
		graph.WithConcurrency(cfg.Concurrency),
		graph.WithLogger(logger),
	)
	s.Vendor = vendorbundle.New(cfg.Root, cfg.JS.Vendor.Modules, cfg.VendorPath(), o.vendor,
		resolve.New(cfg.SearchDirs()...), logger,
		graph.WithConcurrency(cfg.Concurrency),
	)

	s.Recorder, err = manifest.New(manifest.Options{
		Root:         cfg.Root,
		OutputDir:    cfg.OutputDir(),
		ManifestPath: cfg.ManifestPath(),
		ScriptDir:    cfg.ScriptDir(),
		StyleDir:     cfg.StyleDir(),
		Templates:    cfg.Templates,
		Assets:       cfg.Assets,
		Concurrency:  cfg.Concurrency,
	}, s.Writer, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the journal if the session opened it.
func (s *Session) Close() error {
	if s.ownsJ {
		return s.Journal.Close()
	}
	return nil
}

// Stale reports whether generation gen has been superseded.
func (s *Session) Stale(gen int64) bool {
	return gen != s.Clock.Current()
}

// Apply records the artifacts of generation gen as the session's current
// output. It reports false, and changes nothing, when gen is older than
// the last applied generation.
func (s *Session) Apply(gen int64, artifacts []ir.Artifact) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen < s.applied {
		return false
	}
	s.applied = gen
	s.artifacts = append([]ir.Artifact(nil), artifacts...)
	return true
}

// Applied returns the last applied generation and its artifacts.
func (s *Session) Applied() (int64, []ir.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied, append([]ir.Artifact(nil), s.artifacts...)
}
