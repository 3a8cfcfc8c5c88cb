package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/paradoxindex/ckindex/internal/errors"
)

// lockInfo is the JSON payload written into the lock file, read back by a
// second daemon attempt to report who holds it.
type lockInfo struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
	StorePath  string    `json:"store_path"`
}

// WriterLock is the OS-level exclusive lock guaranteeing at most one
// daemon writes to a store at a time (spec.md §4.8, §5 "shared resource
// policy"). The lock file lives at {storePath}.writer.lock, adjacent to
// the store, mirroring original_source/qbuilder/writer_lock.py's use of
// fcntl.flock (a per-open-file-description lock, not a per-process
// fcntl/F_SETLK lock — two handles in the same process still conflict).
type WriterLock struct {
	storePath string
	lockPath  string
	file      *os.File
	acquired  bool
}

// NewWriterLock builds a WriterLock for the given store path. Nothing is
// opened or locked until Acquire is called.
func NewWriterLock(storePath string) *WriterLock {
	return &WriterLock{storePath: storePath, lockPath: storePath + ".writer.lock"}
}

// Acquire attempts to take the lock without blocking. It returns a
// *errors.WriterLockError describing the current holder when another
// process already owns it.
func (l *WriterLock) Acquire() error {
	if l.acquired {
		return nil
	}

	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return errors.NewIOError("writer_lock.acquire", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if info, readErr := readLockInfo(l.lockPath); readErr == nil {
			return &errors.WriterLockError{HolderPID: info.PID, AcquiredAt: info.AcquiredAt, StorePath: l.storePath}
		}
		return &errors.WriterLockError{StorePath: l.storePath}
	}

	info := lockInfo{PID: os.Getpid(), AcquiredAt: time.Now(), StorePath: l.storePath}
	payload, err := json.Marshal(info)
	if err != nil {
		f.Close()
		return errors.NewEncodingError("writer_lock.acquire", err)
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return errors.NewIOError("writer_lock.acquire", err)
	}
	if _, err := f.WriteAt(payload, 0); err != nil {
		f.Close()
		return errors.NewIOError("writer_lock.acquire", err)
	}
	f.Sync()

	l.file = f
	l.acquired = true
	return nil
}

// Release drops the lock. Safe to call on an unacquired lock.
func (l *WriterLock) Release() {
	if !l.acquired || l.file == nil {
		return
	}
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	l.file = nil
	l.acquired = false
}

// IsAcquired reports whether this instance currently holds the lock.
func (l *WriterLock) IsAcquired() bool {
	return l.acquired
}

func readLockInfo(lockPath string) (lockInfo, error) {
	var info lockInfo
	raw, err := os.ReadFile(lockPath)
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return info, err
	}
	return info, nil
}

// HolderInfo describes the current lock holder for a health/status check,
// independent of whether the caller itself holds the lock.
type HolderInfo struct {
	LockExists  bool
	HolderPID   int
	HolderAlive bool
	AcquiredAt  time.Time
	CanAcquire  bool
}

// CheckWriterLock inspects the lock file without acquiring it, surfacing
// holder pid, acquired-at, and a liveness probe so a stale lock from a
// crashed daemon is distinguishable from a live one (spec.md §4.8).
func CheckWriterLock(storePath string) HolderInfo {
	lockPath := storePath + ".writer.lock"
	info, err := readLockInfo(lockPath)
	if err != nil {
		return HolderInfo{CanAcquire: true}
	}

	alive := processAlive(info.PID)
	return HolderInfo{
		LockExists:  true,
		HolderPID:   info.PID,
		HolderAlive: alive,
		AcquiredAt:  info.AcquiredAt,
		CanAcquire:  !alive,
	}
}

// processAlive sends signal 0 to probe liveness without affecting the
// target process, the same heuristic as writer_lock.py's is_holder_alive.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// ExitWriterExists is the dedicated exit code a second daemon returns
// when it cannot acquire the writer lock, mirroring the original
// Python's EXIT_WRITER_EXISTS = 78 (EX_CONFIG from sysexits.h).
const ExitWriterExists = 78

// String renders a holder summary for the CLI's status subcommand.
func (h HolderInfo) String() string {
	if !h.LockExists {
		return "no holder"
	}
	return fmt.Sprintf("pid %d (alive=%t) since %s", h.HolderPID, h.HolderAlive, h.AcquiredAt.Format(time.RFC3339))
}
