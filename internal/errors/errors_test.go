package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paradoxindex/ckindex/internal/types"
)

func TestTaskErrorUnwrapsAndFormats(t *testing.T) {
	underlying := errors.New("disk full")
	err := NewIOError("put", underlying).WithFile(types.FileID(123), "/mods/foo/bar.txt")

	assert.Equal(t, KindIO, err.Kind)
	assert.True(t, errors.Is(err, underlying))
	assert.Equal(t, "io: put failed for /mods/foo/bar.txt: disk full", err.Error())
}

func TestTaskErrorWithoutPath(t *testing.T) {
	err := NewBugError("resolve", errors.New("unreachable"))
	assert.Equal(t, "bug: resolve failed: unreachable", err.Error())
}

func TestKindRetryable(t *testing.T) {
	assert.True(t, KindTimeout.Retryable())
	assert.True(t, KindWorkerCrash.Retryable())
	assert.False(t, KindParse.Retryable())
	assert.False(t, KindBug.Retryable())
}

func TestTaskErrorRetryableDelegatesToKind(t *testing.T) {
	assert.True(t, NewTimeoutError("parse", errors.New("deadline")).Retryable())
	assert.False(t, NewEncodingError("marshal", errors.New("bad utf8")).Retryable())
}

func TestParseErrorFormatsPosition(t *testing.T) {
	underlying := errors.New("unexpected token")
	err := NewParseError(types.FileID(7), "common/traits/00_traits.txt", 10, 5, underlying)

	assert.True(t, errors.Is(err, underlying))
	assert.Equal(t, "parse error at common/traits/00_traits.txt:10:5: unexpected token", err.Error())
}

func TestWriterLockErrorMessage(t *testing.T) {
	err := &WriterLockError{HolderPID: 4242, StorePath: "/home/user/.ckindex"}
	assert.Contains(t, err.Error(), "4242")
	assert.Contains(t, err.Error(), "/home/user/.ckindex")
}

func TestConfigErrorUnwraps(t *testing.T) {
	underlying := errors.New("not a number")
	err := NewConfigError("worker_pool.num_workers", "abc", underlying)

	assert.True(t, errors.Is(err, underlying))
	assert.Equal(t, `config error for field worker_pool.num_workers (value "abc"): not a number`, err.Error())
}

func TestMultiErrorFiltersNilAndFormats(t *testing.T) {
	err1 := errors.New("error 1")
	err2 := errors.New("error 2")

	multi := NewMultiError([]error{err1, nil, err2, nil})
	assert.Len(t, multi.Errors, 2)
	assert.Equal(t, "2 errors: [error 1 error 2]", multi.Error())

	assert.Equal(t, "error 1", NewMultiError([]error{err1}).Error())
	assert.Equal(t, "no errors", NewMultiError(nil).Error())
}
