// Package extract implements the extraction plugins that run over the staged
// chunk set of a build before it is written.
//
// Plugins are composed into an ordered list when a session is created and
// run in that order. Each plugin must be idempotent: running it twice over
// the same Input leaves the Input as one run did.
package extract

import (
	"context"
	"sort"

	"github.com/roach88/assetpack/internal/ir"
)

// Plugin transforms the staged artifact set.
type Plugin interface {
	Name() string
	Extract(ctx context.Context, in *Input) error
}

// Artifact is a staged output file.
type Artifact struct {
	Path    string
	Kind    ir.ChunkKind
	Content []byte
}

// Input is the staged output of one build.
type Input struct {
	// Artifacts are the staged files. Plugins may rewrite Content and add
	// artifacts.
	Artifacts []*Artifact

	// Modules is the live module set: every module of the main and vendor
	// graphs.
	Modules []*ir.SourceModule

	// Helpers accumulates helper definitions recovered from chunks so that
	// a second run over the same Input sees them after the blocks are gone.
	// A new build starts from an empty map.
	Helpers map[string]string

	// Styles accumulates style fragments recovered from chunks by module id.
	Styles map[string]string
}

// Find returns the artifact at path, or nil.
func (in *Input) Find(path string) *Artifact {
	for _, a := range in.Artifacts {
		if a.Path == path {
			return a
		}
	}
	return nil
}

// Put replaces the artifact at a.Path or appends a.
func (in *Input) Put(a *Artifact) {
	for i, cur := range in.Artifacts {
		if cur.Path == a.Path {
			in.Artifacts[i] = a
			return
		}
	}
	in.Artifacts = append(in.Artifacts, a)
}

// Scripts returns the script chunk artifacts: entry, shared and vendor.
func (in *Input) Scripts() []*Artifact {
	var out []*Artifact
	for _, a := range in.Artifacts {
		switch a.Kind {
		case ir.ChunkEntry, ir.ChunkShared, ir.ChunkVendor:
			out = append(out, a)
		}
	}
	return out
}

// Run applies plugins in order.
func Run(ctx context.Context, plugins []Plugin, in *Input) error {
	for _, p := range plugins {
		if err := p.Extract(ctx, in); err != nil {
			return err
		}
	}
	sort.Slice(in.Artifacts, func(i, j int) bool { return in.Artifacts[i].Path < in.Artifacts[j].Path })
	return nil
}

// Options selects and configures the standard plugins.
type Options struct {
	HelperPath string
	StylePath  string
	Debug      bool
}

// Standard returns the standard plugin list: helpers and styles always,
// then source maps in debug builds or minification in release builds.
func Standard(opts Options) []Plugin {
	plugins := []Plugin{
		NewHelpers(opts.HelperPath),
		NewStyles(opts.StylePath),
	}
	if opts.Debug {
		plugins = append(plugins, NewSourceMaps())
	} else {
		plugins = append(plugins, NewMinify())
	}
	return plugins
}
