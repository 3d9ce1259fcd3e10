package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ntoes/internal/models"
)

// maxOutput bounds the diagnostic text stored per run.
const maxOutput = 64 << 10

// Recorder is the subset of the journal used by the engine.
type Recorder interface {
	RecordSync(run models.SyncRun) (int64, error)
	RecordScan(run models.ScanRun) (int64, error)
}

var _ Recorder = (*DB)(nil)

// RecordSync stores one sync attempt.
func (db *DB) RecordSync(run models.SyncRun) (int64, error) {
	out := run.Output
	if len(out) > maxOutput {
		out = out[len(out)-maxOutput:]
	}
	res, err := db.conn.Exec(`
		INSERT INTO sync_runs
			(started_at, finished_at, committed_local, committed_merge, conflicts, pushed, ok, failed_op, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.CommittedLocal, run.CommittedMerge, run.Conflicts, run.Pushed, run.OK,
		run.FailedOp, out)
	if err != nil {
		return 0, fmt.Errorf("journal: record sync: %w", err)
	}
	return res.LastInsertId()
}

// RecordScan stores one rescan summary.
func (db *DB) RecordScan(run models.ScanRun) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO scan_runs (at, files, rescanned, removed, skipped, items)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.At.UTC(), run.Files, run.Rescanned, run.Removed, run.Skipped, run.Items)
	if err != nil {
		return 0, fmt.Errorf("journal: record scan: %w", err)
	}
	return res.LastInsertId()
}

// SyncHistory returns the most recent sync runs, newest first.
func (db *DB) SyncHistory(limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, started_at, finished_at, committed_local, committed_merge,
		       conflicts, pushed, ok, failed_op, output
		FROM sync_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: sync history: %w", err)
	}
	defer rows.Close()

	var out []models.SyncRun
	for rows.Next() {
		var r models.SyncRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.CommittedLocal, &r.CommittedMerge,
			&r.Conflicts, &r.Pushed, &r.OK, &r.FailedOp, &r.Output); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastScan returns the most recent scan run, or nil when none was recorded.
func (db *DB) LastScan() (*models.ScanRun, error) {
	var r models.ScanRun
	err := db.conn.QueryRow(`
		SELECT id, at, files, rescanned, removed, skipped, items
		FROM scan_runs ORDER BY id DESC LIMIT 1
	`).Scan(&r.ID, &r.At, &r.Files, &r.Rescanned, &r.Removed, &r.Skipped, &r.Items)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: last scan: %w", err)
	}
	return &r, nil
}

// Prune deletes runs older than the cutoff and returns how many rows went.
func (db *DB) Prune(before time.Time) (int64, error) {
	var total int64
	for _, q := range []string{
		`DELETE FROM sync_runs WHERE started_at < ?`,
		`DELETE FROM scan_runs WHERE at < ?`,
	} {
		res, err := db.conn.Exec(q, before.UTC())
		if err != nil {
			return total, fmt.Errorf("journal: prune: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
