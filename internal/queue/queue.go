// Package queue implements the build queue/daemon of spec.md §4.8: a
// durable FIFO of processing tasks claimed by monotonically increasing
// build_id, guarded by a single-writer lock (writerlock.go) and fed both
// by direct Enqueue calls and by draining the pending-refresh log
// (pendingrefresh.go). Grounded on the SQL claim protocol spec.md writes
// out literally ("SELECT build_id FROM queue WHERE status='pending'
// ORDER BY build_id ASC LIMIT 1") and on the schema/migration style of
// the pack's SQLite-backed stores (mvp-joe-canopy, Aureuma-si's
// ReleaseParty backend), using the pure-Go modernc.org/sqlite driver so
// no cgo toolchain is required.
package queue

import (
	"database/sql"
	"encoding/hex"
	"time"

	_ "modernc.org/sqlite"

	"github.com/paradoxindex/ckindex/internal/debug"
	"github.com/paradoxindex/ckindex/internal/errors"
	"github.com/paradoxindex/ckindex/internal/types"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS tasks (
  build_id       INTEGER PRIMARY KEY AUTOINCREMENT,
  file_id        INTEGER NOT NULL,
  envelope       INTEGER NOT NULL,
  status         TEXT NOT NULL DEFAULT 'pending',
  fp_mtime       INTEGER NOT NULL,
  fp_size        INTEGER NOT NULL,
  fp_hash        TEXT NOT NULL,
  error_class    TEXT,
  retry_count    INTEGER NOT NULL DEFAULT 0,
  claimed_at     INTEGER,
  updated_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status_build ON tasks(status, build_id);
CREATE INDEX IF NOT EXISTS idx_tasks_file ON tasks(file_id);
`

// maxRetries bounds the timeout/worker_crash retry loop (spec.md §4.8
// failure semantics: "retried up to a bounded count").
const maxRetries = 1

// Task is one queued processing task. Only FileID is bound; relpath and
// cvid are derived from the file record by the caller, never duplicated
// here (spec.md §4.8 schema principles).
type Task struct {
	BuildID     types.BuildID
	FileID      types.FileID
	Envelope    types.Envelope
	Status      types.TaskStatus
	Fingerprint types.Fingerprint
	ErrorClass  string
	RetryCount  int
}

// Queue is the durable FIFO. All writes go through a single *sql.DB
// handle; the caller is responsible for holding the WriterLock for the
// store directory before constructing one.
type Queue struct {
	db *sql.DB
}

// Open opens (creating if absent) the queue database at path and applies
// its schema. WAL mode is enabled so readers never block the writer,
// mirroring the pack's SQLite stores.
func Open(path string) (*Queue, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)")
	if err != nil {
		return nil, errors.NewIOError("queue.open", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.NewIOError("queue.open", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, errors.NewIOError("queue.migrate", err)
	}
	return &Queue{db: db}, nil
}

// Close closes the underlying database handle.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue appends a new pending task and returns its build_id. Enqueue
// order equals claim order, since build_id is an autoincrement primary
// key (spec.md §5 "enqueue order == claim order").
func (q *Queue) Enqueue(fileID types.FileID, envelope types.Envelope, fp types.Fingerprint) (types.BuildID, error) {
	now := time.Now().Unix()
	res, err := q.db.Exec(
		`INSERT INTO tasks (file_id, envelope, status, fp_mtime, fp_size, fp_hash, updated_at)
		 VALUES (?, ?, 'pending', ?, ?, ?, ?)`,
		int64(fileID), int64(envelope), fp.ModTimeUnixNano, fp.Size, fp.Hash.String(), now,
	)
	if err != nil {
		return 0, errors.NewIOError("queue.enqueue", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.NewIOError("queue.enqueue", err)
	}
	debug.LogQueue("enqueued build_id=%d file_id=%d envelope=%v", id, fileID, envelope)
	return types.BuildID(id), nil
}

// Claim atomically claims the oldest pending task and marks it
// in_progress, implementing the SELECT-then-conditional-UPDATE protocol
// of spec.md §4.8. Returns (nil, nil) when the queue is empty.
func (q *Queue) Claim() (*Task, error) {
	tx, err := q.db.Begin()
	if err != nil {
		return nil, errors.NewIOError("queue.claim", err)
	}
	defer tx.Rollback()

	var t Task
	var buildID int64
	var fileID int64
	var envelope int64
	var fpMTime, fpSize int64
	var fpHash, status string
	var errorClass sql.NullString
	var retryCount int

	row := tx.QueryRow(`SELECT build_id, file_id, envelope, status, fp_mtime, fp_size, fp_hash, error_class, retry_count
	                     FROM tasks WHERE status = 'pending' ORDER BY build_id ASC LIMIT 1`)
	if err := row.Scan(&buildID, &fileID, &envelope, &status, &fpMTime, &fpSize, &fpHash, &errorClass, &retryCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.NewIOError("queue.claim", err)
	}

	now := time.Now().Unix()
	result, err := tx.Exec(`UPDATE tasks SET status = 'in_progress', claimed_at = ?, updated_at = ? WHERE build_id = ? AND status = 'pending'`, now, now, buildID)
	if err != nil {
		return nil, errors.NewIOError("queue.claim", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.NewIOError("queue.claim", err)
	}
	if affected == 0 {
		// Lost the race to another claimer; caller should retry.
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.NewIOError("queue.claim", err)
	}

	t = Task{
		BuildID:    types.BuildID(buildID),
		FileID:     types.FileID(fileID),
		Envelope:   types.Envelope(envelope),
		Status:     types.StatusInProgress,
		RetryCount: retryCount,
		Fingerprint: types.Fingerprint{
			ModTimeUnixNano: fpMTime,
			Size:            fpSize,
		},
	}
	if errorClass.Valid {
		t.ErrorClass = errorClass.String
	}
	if decoded, err := hex.DecodeString(fpHash); err == nil && len(decoded) == len(t.Fingerprint.Hash) {
		copy(t.Fingerprint.Hash[:], decoded)
	}
	debug.LogQueue("claimed build_id=%d file_id=%d retry_count=%d", t.BuildID, t.FileID, t.RetryCount)
	return &t, nil
}

// Complete marks a claimed task completed.
func (q *Queue) Complete(buildID types.BuildID) error {
	return q.setStatus(buildID, types.StatusCompleted, "")
}

// Skip marks a claimed task skipped (fingerprint unchanged since last
// successful run, so no derived work is needed).
func (q *Queue) Skip(buildID types.BuildID) error {
	return q.setStatus(buildID, types.StatusSkipped, "")
}

// Fail records a task failure and applies the retry policy of spec.md
// §4.8: timeout and worker_crash are retried up to maxRetries; anything
// else (parse_error, and timeout/worker_crash once exhausted) is
// terminal.
func (q *Queue) Fail(buildID types.BuildID, kind errors.Kind) error {
	tx, err := q.db.Begin()
	if err != nil {
		return errors.NewIOError("queue.fail", err)
	}
	defer tx.Rollback()

	var retryCount int
	if err := tx.QueryRow(`SELECT retry_count FROM tasks WHERE build_id = ?`, int64(buildID)).Scan(&retryCount); err != nil {
		return errors.NewIOError("queue.fail", err)
	}

	now := time.Now().Unix()
	retrying := kind.Retryable() && retryCount < maxRetries
	if retrying {
		_, err = tx.Exec(`UPDATE tasks SET status = 'pending', error_class = ?, retry_count = retry_count + 1, claimed_at = NULL, updated_at = ? WHERE build_id = ?`,
			string(kind), now, int64(buildID))
	} else {
		_, err = tx.Exec(`UPDATE tasks SET status = 'failed', error_class = ?, updated_at = ? WHERE build_id = ?`,
			string(kind), now, int64(buildID))
	}
	if err != nil {
		return errors.NewIOError("queue.fail", err)
	}
	if retrying {
		debug.LogQueue("build_id=%d failed (%s), requeued (retry %d/%d)", buildID, kind, retryCount+1, maxRetries)
	} else {
		debug.LogQueue("build_id=%d failed (%s), terminal", buildID, kind)
	}
	return tx.Commit()
}

func (q *Queue) setStatus(buildID types.BuildID, status types.TaskStatus, errorClass string) error {
	_, err := q.db.Exec(`UPDATE tasks SET status = ?, error_class = NULLIF(?, ''), updated_at = ? WHERE build_id = ?`,
		string(status), errorClass, time.Now().Unix(), int64(buildID))
	if err != nil {
		return errors.NewIOError("queue.set_status", err)
	}
	return nil
}

// ReclaimStale resets in_progress tasks claimed at least staleness ago
// (at one-second resolution, so a staleness of 0 reclaims every
// in_progress task) to pending, so a restarted daemon picks up work a crashed
// one left behind (spec.md §5 "any remaining tasks remain in_progress
// and are reclaimed after restart by observing a heartbeat/lease
// timestamp").
func (q *Queue) ReclaimStale(staleness time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleness).Unix()
	result, err := q.db.Exec(`UPDATE tasks SET status = 'pending', claimed_at = NULL, updated_at = ? WHERE status = 'in_progress' AND claimed_at <= ?`,
		time.Now().Unix(), cutoff)
	if err != nil {
		return 0, errors.NewIOError("queue.reclaim_stale", err)
	}
	return result.RowsAffected()
}

// CountByStatus returns task counts grouped by status, for the daemon's
// status subcommand.
func (q *Queue) CountByStatus() (map[types.TaskStatus]int, error) {
	rows, err := q.db.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, errors.NewIOError("queue.count_by_status", err)
	}
	defer rows.Close()

	counts := make(map[types.TaskStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.NewIOError("queue.count_by_status", err)
		}
		counts[types.TaskStatus(status)] = count
	}
	return counts, rows.Err()
}
