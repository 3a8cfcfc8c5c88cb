package queue

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paradoxindex/ckindex/internal/errors"
	"github.com/paradoxindex/ckindex/internal/types"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	dir := t.TempDir()
	q, err := Open(filepath.Join(dir, "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestEnqueueThenClaimFIFO(t *testing.T) {
	q := openTestQueue(t)

	id1, err := q.Enqueue(types.FileID(1), types.Envelope(types.StageIngest), types.Fingerprint{Size: 10})
	require.NoError(t, err)
	id2, err := q.Enqueue(types.FileID(2), types.Envelope(types.StageIngest), types.Fingerprint{Size: 20})
	require.NoError(t, err)
	assert.Less(t, id1, id2)

	first, err := q.Claim()
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, id1, first.BuildID)
	assert.Equal(t, types.StatusInProgress, first.Status)

	second, err := q.Claim()
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, id2, second.BuildID)
}

func TestClaimOnEmptyQueueReturnsNil(t *testing.T) {
	q := openTestQueue(t)
	task, err := q.Claim()
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestClaimSkipsAlreadyInProgressTasks(t *testing.T) {
	q := openTestQueue(t)
	id, err := q.Enqueue(types.FileID(1), types.Envelope(types.StageIngest), types.Fingerprint{})
	require.NoError(t, err)

	task, err := q.Claim()
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, id, task.BuildID)

	again, err := q.Claim()
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestCompleteMarksTaskCompleted(t *testing.T) {
	q := openTestQueue(t)
	id, err := q.Enqueue(types.FileID(1), types.Envelope(types.StageIngest), types.Fingerprint{})
	require.NoError(t, err)
	_, err = q.Claim()
	require.NoError(t, err)

	require.NoError(t, q.Complete(id))

	counts, err := q.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[types.StatusCompleted])
}

func TestFailWithRetryableKindRequeues(t *testing.T) {
	q := openTestQueue(t)
	id, err := q.Enqueue(types.FileID(1), types.Envelope(types.StageIngest), types.Fingerprint{})
	require.NoError(t, err)
	_, err = q.Claim()
	require.NoError(t, err)

	require.NoError(t, q.Fail(id, errors.KindTimeout))

	counts, err := q.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[types.StatusPending])
	assert.Equal(t, 0, counts[types.StatusFailed])
}

func TestFailWithNonRetryableKindMarksFailed(t *testing.T) {
	q := openTestQueue(t)
	id, err := q.Enqueue(types.FileID(1), types.Envelope(types.StageIngest), types.Fingerprint{})
	require.NoError(t, err)
	_, err = q.Claim()
	require.NoError(t, err)

	require.NoError(t, q.Fail(id, errors.KindParse))

	counts, err := q.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[types.StatusFailed])
}

func TestFailExhaustsRetriesThenTerminal(t *testing.T) {
	q := openTestQueue(t)
	id, err := q.Enqueue(types.FileID(1), types.Envelope(types.StageIngest), types.Fingerprint{})
	require.NoError(t, err)

	for i := 0; i < maxRetries; i++ {
		_, err := q.Claim()
		require.NoError(t, err)
		require.NoError(t, q.Fail(id, errors.KindWorkerCrash))
	}
	_, err = q.Claim()
	require.NoError(t, err)
	require.NoError(t, q.Fail(id, errors.KindWorkerCrash))

	counts, err := q.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[types.StatusFailed])
}

func TestReclaimStaleResetsOldInProgressTasks(t *testing.T) {
	q := openTestQueue(t)
	id, err := q.Enqueue(types.FileID(1), types.Envelope(types.StageIngest), types.Fingerprint{})
	require.NoError(t, err)
	_, err = q.Claim()
	require.NoError(t, err)

	n, err := q.ReclaimStale(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	task, err := q.Claim()
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, id, task.BuildID)
}

func TestSkipMarksTaskSkipped(t *testing.T) {
	q := openTestQueue(t)
	id, err := q.Enqueue(types.FileID(1), types.Envelope(types.StageIngest), types.Fingerprint{})
	require.NoError(t, err)
	_, err = q.Claim()
	require.NoError(t, err)
	require.NoError(t, q.Skip(id))

	counts, err := q.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[types.StatusSkipped])
}
