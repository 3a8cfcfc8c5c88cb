package queue

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/paradoxindex/ckindex/internal/errors"
)

// RefreshOp is one of the two operations a pending-refresh record names.
type RefreshOp string

const (
	RefreshWrite  RefreshOp = "WRITE"
	RefreshDelete RefreshOp = "DELETE"
)

// PendingRefresh is one decoded line of the pending-refresh log: a
// caller outside the daemon telling it that a mod's file changed on
// disk, grounded on original_source/builder/pending_refresh.py.
type PendingRefresh struct {
	Op      RefreshOp
	Mod     string
	Relpath string
}

// PendingRefreshLog is the append-only, multi-writer log described in
// spec.md §4.8 and §6: any caller may append under OS file locking;
// read-and-truncate is reserved to the daemon holding the writer lock.
type PendingRefreshLog struct {
	path string
}

// NewPendingRefreshLog returns a log handle at the given path. The file
// and its parent directory are created lazily on first append.
func NewPendingRefreshLog(path string) *PendingRefreshLog {
	return &PendingRefreshLog{path: path}
}

// Append adds one record to the log, guarded by an exclusive OS lock for
// the duration of the write so concurrent appenders never interleave.
func (l *PendingRefreshLog) Append(op RefreshOp, mod, relpath string) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return errors.NewIOError("pending_refresh.append", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.NewIOError("pending_refresh.append", err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return errors.NewIOError("pending_refresh.append", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	line := fmt.Sprintf("%s|%s|%s\n", op, mod, relpath)
	if _, err := f.WriteString(line); err != nil {
		return errors.NewIOError("pending_refresh.append", err)
	}
	return nil
}

// ReadAndClear atomically reads every pending record and truncates the
// log, so the daemon never double-processes a record. Duplicate
// WRITE/DELETE records for the same (mod, relpath) collapse to the last
// one, per spec.md's supplemented pending-refresh compaction.
func (l *PendingRefreshLog) ReadAndClear() ([]PendingRefresh, error) {
	f, err := os.OpenFile(l.path, os.O_RDWR, 0644)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewIOError("pending_refresh.read_and_clear", err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return nil, errors.NewIOError("pending_refresh.read_and_clear", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewIOError("pending_refresh.read_and_clear", err)
	}

	if err := f.Truncate(0); err != nil {
		return nil, errors.NewIOError("pending_refresh.read_and_clear", err)
	}

	return compact(parseLines(lines)), nil
}

func parseLines(lines []string) []PendingRefresh {
	records := make([]PendingRefresh, 0, len(lines))
	for _, line := range lines {
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			continue
		}
		records = append(records, PendingRefresh{Op: RefreshOp(parts[0]), Mod: parts[1], Relpath: parts[2]})
	}
	return records
}

// compact keeps only the last record for each (mod, relpath) pair,
// preserving the order of first appearance so downstream enqueueing
// stays close to arrival order.
func compact(records []PendingRefresh) []PendingRefresh {
	type key struct{ mod, relpath string }
	last := make(map[key]PendingRefresh, len(records))
	order := make([]key, 0, len(records))
	for _, r := range records {
		k := key{r.Mod, r.Relpath}
		if _, seen := last[k]; !seen {
			order = append(order, k)
		}
		last[k] = r
	}
	out := make([]PendingRefresh, 0, len(order))
	for _, k := range order {
		out = append(out, last[k])
	}
	return out
}

// HasPending reports whether the log currently has unread content,
// without consuming it.
func (l *PendingRefreshLog) HasPending() bool {
	st, err := os.Stat(l.path)
	if err != nil {
		return false
	}
	return st.Size() > 0
}
