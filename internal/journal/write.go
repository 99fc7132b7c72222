package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/assetpack/internal/ir"
)

// Status is the outcome of a recorded build.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Build is one journal row with its artifacts.
type Build struct {
	ID         int64
	Session    string
	Generation int64
	Status     Status
	Changed    []string
	Error      string
	Duration   time.Duration
	Written    int
	Skipped    int
	Artifacts  []ir.Artifact
}

// RecordBuild appends b. Recording the same session generation twice is
// ignored.
func (j *Journal) RecordBuild(ctx context.Context, b Build) error {
	changed := b.Changed
	if changed == nil {
		changed = []string{}
	}
	changedJSON, err := ir.MarshalCanonical(changed)
	if err != nil {
		return fmt.Errorf("record build: %w", err)
	}

	err = j.withRetry(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO builds
			(session_id, generation, status, changed, error, duration_ms, written, skipped)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, generation) DO NOTHING
		`,
			b.Session,
			b.Generation,
			string(b.Status),
			string(changedJSON),
			b.Error,
			b.Duration.Milliseconds(),
			b.Written,
			b.Skipped,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil || n == 0 {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, a := range b.Artifacts {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO artifacts (build_id, path, kind, digest, bytes)
				VALUES (?, ?, ?, ?, ?)
			`, id, a.Path, string(a.Kind), a.Digest, a.Bytes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record build: %w", err)
	}
	return nil
}

// RecordManifest appends the entries of one finalize run.
func (j *Journal) RecordManifest(ctx context.Context, session string, generation int64, entries []ir.ManifestEntry) error {
	err := j.withRetry(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO manifests (session_id, generation) VALUES (?, ?)
		`, session, generation)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO manifest_entries (manifest_id, original, hash, versioned)
				VALUES (?, ?, ?, ?)
			`, id, e.Original, e.Hash, e.Versioned); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record manifest: %w", err)
	}
	return nil
}
