// Package pipeline runs builds over a session.
//
// One build resolves entries, builds the main graph and the vendor bundle
// concurrently, renders chunks, runs the extraction plugins over the staged
// artifacts and writes them, skipping files whose bytes did not change.
// Finalize versions the applied output and rewrites references.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/assetpack/internal/chunk"
	"github.com/roach88/assetpack/internal/entry"
	"github.com/roach88/assetpack/internal/extract"
	"github.com/roach88/assetpack/internal/graph"
	"github.com/roach88/assetpack/internal/ir"
	"github.com/roach88/assetpack/internal/journal"
	"github.com/roach88/assetpack/internal/manifest"
	"github.com/roach88/assetpack/internal/session"
	"github.com/roach88/assetpack/internal/vendorbundle"
)

// Result describes one applied build.
type Result struct {
	Generation int64
	Entries    []ir.Entry
	Chunks     []ir.Chunk

	// Artifacts are every file of the build, sorted by path.
	Artifacts []ir.Artifact

	// Written lists the artifacts whose bytes changed, sorted.
	Written []string
	Skipped int

	// Invalidated lists the modules dropped from the cache before building.
	Invalidated []string

	Duration time.Duration
}

// Once issues a new generation and builds it.
func Once(ctx context.Context, s *session.Session) (*Result, error) {
	return Build(ctx, s, s.Clock.Next(), nil)
}

// Build builds generation gen after invalidating changed paths and their
// dependents. It returns ir.ErrSuperseded, without writing anything, when a
// newer generation is issued before the write phase.
//
// Applied and failed builds are recorded in the session journal; superseded
// ones are not.
func Build(ctx context.Context, s *session.Session, gen int64, changed []string) (*Result, error) {
	start := time.Now()
	res := &Result{Generation: gen}
	if len(changed) > 0 {
		res.Invalidated = s.Graph.Invalidate(changed)
	}

	err := build(ctx, s, res)
	res.Duration = time.Since(start)

	switch {
	case errors.Is(err, ir.ErrSuperseded):
		s.Logger.Info("pipeline: build superseded", "generation", gen)
		return nil, err
	case err != nil:
		record(ctx, s, res, changed, err)
		s.Logger.Error("pipeline: build failed", "generation", gen, "duration", res.Duration, "error", err)
		return nil, err
	}

	if !s.Apply(gen, res.Artifacts) {
		return nil, ir.ErrSuperseded
	}
	record(ctx, s, res, changed, nil)
	s.Logger.Info("pipeline: build complete",
		"generation", gen,
		"entries", len(res.Entries),
		"written", len(res.Written),
		"skipped", res.Skipped,
		"duration", res.Duration)
	return res, nil
}

func build(ctx context.Context, s *session.Session, res *Result) error {
	cfg := s.Config
	entries, err := s.Entries.Resolve()
	if err != nil {
		return err
	}
	res.Entries = entries

	dirs := append(entry.OutputDirs(entries), cfg.ScriptDir(), cfg.StyleDir())
	if err := s.Writer.EnsureDirs(dirs); err != nil {
		return err
	}

	var (
		g         *graph.Graph
		rendered  [][]byte
		vendor    *vendorbundle.Result
		mainErr   error
		vendorErr error
		eg        errgroup.Group
	)
	eg.Go(func() error {
		g, mainErr = s.Graph.Build(ctx, entry.Sources(entries))
		if mainErr != nil {
			return nil
		}
		res.Chunks = chunk.Assign(g, entries, cfg.SharedPath())
		rendered = make([][]byte, len(res.Chunks))
		for i, c := range res.Chunks {
			rendered[i] = chunk.RenderChunk(g, c)
		}
		return nil
	})
	eg.Go(func() error {
		vendor, vendorErr = s.Vendor.Bundle(ctx)
		return nil
	})
	_ = eg.Wait()
	if err := errors.Join(mainErr, vendorErr); err != nil {
		return err
	}
	res.Chunks = append(res.Chunks, vendor.Chunk)
	rendered = append(rendered, vendor.Content)

	if s.Stale(res.Generation) {
		return ir.ErrSuperseded
	}

	in := &extract.Input{
		Modules: append(g.Sorted(), vendor.Modules...),
		Helpers: make(map[string]string),
		Styles:  make(map[string]string),
	}
	for i, c := range res.Chunks {
		in.Artifacts = append(in.Artifacts, &extract.Artifact{Path: c.Output, Kind: c.Kind, Content: rendered[i]})
	}
	if err := extract.Run(ctx, s.Plugins, in); err != nil {
		return err
	}

	if s.Stale(res.Generation) {
		return ir.ErrSuperseded
	}
	return write(s, res, in.Artifacts)
}

func write(s *session.Session, res *Result, staged []*extract.Artifact) error {
	artifacts := make([]ir.Artifact, len(staged))
	changed := make([]bool, len(staged))

	var eg errgroup.Group
	eg.SetLimit(s.Config.Concurrency)
	for i, a := range staged {
		i, a := i, a
		eg.Go(func() error {
			wrote, err := s.Writer.Write(a.Path, a.Content)
			if err != nil {
				return err
			}
			changed[i] = wrote
			artifacts[i] = ir.Artifact{
				Path:   a.Path,
				Kind:   a.Kind,
				Digest: ir.Digest(a.Content),
				Bytes:  int64(len(a.Content)),
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for i, a := range artifacts {
		if changed[i] {
			res.Written = append(res.Written, a.Path)
		} else {
			res.Skipped++
		}
	}
	sort.Strings(res.Written)
	ir.SortArtifacts(artifacts)
	res.Artifacts = artifacts
	return nil
}

func record(ctx context.Context, s *session.Session, res *Result, changed []string, buildErr error) {
	if s.Journal == nil {
		return
	}
	b := journal.Build{
		Session:    s.ID,
		Generation: res.Generation,
		Status:     journal.StatusOK,
		Changed:    append([]string(nil), changed...),
		Duration:   res.Duration,
		Written:    len(res.Written),
		Skipped:    res.Skipped,
		Artifacts:  res.Artifacts,
	}
	sort.Strings(b.Changed)
	if buildErr != nil {
		b.Status = journal.StatusFailed
		b.Error = buildErr.Error()
		b.Artifacts = nil
	}
	if err := s.Journal.RecordBuild(ctx, b); err != nil {
		s.Logger.Warn("pipeline: journal write failed", "generation", res.Generation, "error", err)
	}
}

// Finalize versions the session's applied output. When the session has not
// built yet, the latest successful build in the journal is used.
func Finalize(ctx context.Context, s *session.Session) (*manifest.Result, error) {
	gen, artifacts := s.Applied()
	if gen == 0 && s.Journal != nil {
		latest, err := s.Journal.LatestSuccessful(ctx)
		if err != nil {
			return nil, ir.NewIOError("read journal", s.Config.JournalPath(), err)
		}
		if latest != nil {
			gen, artifacts = latest.Generation, latest.Artifacts
		}
	}
	if len(artifacts) == 0 {
		return nil, ir.NewConfigError("finalize: no build output recorded; run a build first")
	}

	res, err := s.Recorder.Finalize(ctx, artifacts)
	if err != nil {
		return nil, err
	}
	if s.Journal != nil {
		if err := s.Journal.RecordManifest(ctx, s.ID, gen, res.Manifest.Entries); err != nil {
			s.Logger.Warn("pipeline: journal write failed", "generation", gen, "error", err)
		}
	}
	return res, nil
}
