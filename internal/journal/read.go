package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/assetpack/internal/ir"
)

// History returns up to limit most recent builds, oldest first. A limit of
// zero or less returns every build. Artifacts are not loaded.
func (j *Journal) History(ctx context.Context, limit int) ([]Build, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session_id, generation, status, changed, error, duration_ms, written, skipped
		FROM (
			SELECT * FROM builds ORDER BY id DESC LIMIT ?
		)
		ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	builds := []Build{}
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate builds: %w", err)
	}
	return builds, nil
}

// LatestSuccessful returns the most recent successful build with its
// artifacts, or nil when there is none.
func (j *Journal) LatestSuccessful(ctx context.Context) (*Build, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, session_id, generation, status, changed, error, duration_ms, written, skipped
		FROM builds
		WHERE status = ?
		ORDER BY id DESC
		LIMIT 1
	`, string(StatusOK))
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.Artifacts, err = j.artifacts(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (j *Journal) artifacts(ctx context.Context, buildID int64) ([]ir.Artifact, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT path, kind, digest, bytes
		FROM artifacts
		WHERE build_id = ?
		ORDER BY path COLLATE BINARY ASC
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []ir.Artifact{}
	for rows.Next() {
		var a ir.Artifact
		var kind string
		if err := rows.Scan(&a.Path, &kind, &a.Digest, &a.Bytes); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.Kind = ir.ChunkKind(kind)
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return artifacts, nil
}

// LatestManifest returns the entries of the most recent finalize run, sorted
// by original path.
func (j *Journal) LatestManifest(ctx context.Context) ([]ir.ManifestEntry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT original, hash, versioned
		FROM manifest_entries
		WHERE manifest_id = (SELECT MAX(id) FROM manifests)
		ORDER BY original COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query manifest: %w", err)
	}
	defer rows.Close()

	entries := []ir.ManifestEntry{}
	for rows.Next() {
		var e ir.ManifestEntry
		if err := rows.Scan(&e.Original, &e.Hash, &e.Versioned); err != nil {
			return nil, fmt.Errorf("scan manifest entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manifest: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(s scanner) (Build, error) {
	var (
		b          Build
		status     string
		changed    string
		durationMS int64
	)
	err := s.Scan(&b.ID, &b.Session, &b.Generation, &status, &changed, &b.Error, &durationMS, &b.Written, &b.Skipped)
	if errors.Is(err, sql.ErrNoRows) {
		return b, err
	}
	if err != nil {
		return b, fmt.Errorf("scan build: %w", err)
	}
	b.Status = Status(status)
	b.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal([]byte(changed), &b.Changed); err != nil {
		return b, fmt.Errorf("decode changed paths of build %d: %w", b.ID, err)
	}
	return b, nil
}
