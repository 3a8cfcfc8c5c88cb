package queue

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendThenReadAndClear(t *testing.T) {
	log := NewPendingRefreshLog(filepath.Join(t.TempDir(), "pending_refresh.log"))

	require.NoError(t, log.Append(RefreshWrite, "my_mod", "common/traits/00_traits.txt"))
	require.NoError(t, log.Append(RefreshDelete, "my_mod", "common/events/stale.txt"))

	assert.True(t, log.HasPending())

	records, err := log.ReadAndClear()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, PendingRefresh{Op: RefreshWrite, Mod: "my_mod", Relpath: "common/traits/00_traits.txt"}, records[0])
	assert.Equal(t, PendingRefresh{Op: RefreshDelete, Mod: "my_mod", Relpath: "common/events/stale.txt"}, records[1])

	assert.False(t, log.HasPending())
}

func TestReadAndClearOnMissingLogReturnsEmpty(t *testing.T) {
	log := NewPendingRefreshLog(filepath.Join(t.TempDir(), "missing.log"))
	records, err := log.ReadAndClear()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDuplicateRecordsCollapseToLast(t *testing.T) {
	log := NewPendingRefreshLog(filepath.Join(t.TempDir(), "pending_refresh.log"))

	require.NoError(t, log.Append(RefreshWrite, "my_mod", "common/traits/00_traits.txt"))
	require.NoError(t, log.Append(RefreshWrite, "my_mod", "common/traits/00_traits.txt"))
	require.NoError(t, log.Append(RefreshDelete, "my_mod", "common/traits/00_traits.txt"))

	records, err := log.ReadAndClear()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, RefreshDelete, records[0].Op)
}

func TestHasPendingFalseOnMissingFile(t *testing.T) {
	log := NewPendingRefreshLog(filepath.Join(t.TempDir(), "missing.log"))
	assert.False(t, log.HasPending())
}
