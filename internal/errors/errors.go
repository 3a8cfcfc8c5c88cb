// Package errors implements the error taxonomy of spec.md §7: one
// distinct Kind per failure mode. Task failures of every kind share the
// TaskError struct, which records its Kind; ParseError, WriterLockError
// and ConfigError are separate structs carrying their own context.
// Grounded on the teacher's internal/errors package (struct error
// families with Error()/Unwrap()).
package errors

import (
	"fmt"
	"time"

	"github.com/paradoxindex/ckindex/internal/types"
)

// Kind names one of the eight taxonomy entries from spec.md §7.
type Kind string

const (
	KindIO             Kind = "io"
	KindEncoding       Kind = "encoding"
	KindParse          Kind = "parse_error"
	KindTimeout        Kind = "timeout"
	KindWorkerCrash    Kind = "worker_crash"
	KindWriterLock     Kind = "writer_lock"
	KindSchemaMismatch Kind = "schema_mismatch"
	KindBug            Kind = "bug"
)

// Retryable reports whether the propagation policy (§7) allows a single
// local retry for this kind.
func (k Kind) Retryable() bool {
	return k == KindTimeout || k == KindWorkerCrash
}

// TaskError wraps any of the eight kinds with the task context the build
// queue needs to record (`failed` status + structured reason).
type TaskError struct {
	Kind       Kind
	FileID     types.FileID
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

func newTaskError(kind Kind, op string, err error) *TaskError {
	return &TaskError{Kind: kind, Operation: op, Underlying: err, Timestamp: time.Now()}
}

// WithFile attaches file context and returns the same error for chaining.
func (e *TaskError) WithFile(fileID types.FileID, path string) *TaskError {
	e.FileID = fileID
	e.Path = path
	return e
}

func (e *TaskError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s failed for %s: %v", e.Kind, e.Operation, e.Path, e.Underlying)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Kind, e.Operation, e.Underlying)
}

func (e *TaskError) Unwrap() error { return e.Underlying }

// Retryable reports whether the queue should re-attempt this task once.
func (e *TaskError) Retryable() bool { return e.Kind.Retryable() }

func NewIOError(op string, err error) *TaskError         { return newTaskError(KindIO, op, err) }
func NewEncodingError(op string, err error) *TaskError   { return newTaskError(KindEncoding, op, err) }
func NewTimeoutError(op string, err error) *TaskError    { return newTaskError(KindTimeout, op, err) }
func NewWorkerCrashError(op string, err error) *TaskError { return newTaskError(KindWorkerCrash, op, err) }
func NewSchemaMismatchError(op string, err error) *TaskError {
	return newTaskError(KindSchemaMismatch, op, err)
}
func NewBugError(op string, err error) *TaskError { return newTaskError(KindBug, op, err) }

// ParseError attaches file position context to a parse failure that a
// caller (the worker pool, the cache) needs to surface as a task outcome.
// The parser itself never returns one: it reports problems as
// types.Diagnostic entries on a partial AST.
type ParseError struct {
	FileID     types.FileID
	Path       string
	Line, Col  int
	Underlying error
	Timestamp  time.Time
}

func NewParseError(fileID types.FileID, path string, line, col int, err error) *ParseError {
	return &ParseError{FileID: fileID, Path: path, Line: line, Col: col, Underlying: err, Timestamp: time.Now()}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %s:%d:%d: %v", e.Path, e.Line, e.Col, e.Underlying)
}

func (e *ParseError) Unwrap() error { return e.Underlying }

// WriterLockError is returned when a second daemon attempts to start
// against a store already held by a live writer (spec.md Scenario E).
type WriterLockError struct {
	HolderPID  int
	AcquiredAt time.Time
	StorePath  string
}

func (e *WriterLockError) Error() string {
	return fmt.Sprintf("writer_lock: another daemon (pid %d) has held %s since %s",
		e.HolderPID, e.StorePath, e.AcquiredAt.Format(time.RFC3339))
}

// ConfigError reports a bad configuration field.
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
}

func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Underlying: err}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %q): %v", e.Field, e.Value, e.Underlying)
}

func (e *ConfigError) Unwrap() error { return e.Underlying }

// MultiError aggregates independent errors, e.g. from a batch scan.
type MultiError struct {
	Errors []error
}

func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
	}
}

func (e *MultiError) Unwrap() []error { return e.Errors }
