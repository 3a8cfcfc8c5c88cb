package workerpool

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWorkerLines(t *testing.T, requests []string, maxParses int) []Response {
	t.Helper()
	in := strings.NewReader(strings.Join(requests, "\n") + "\n")
	var out bytes.Buffer

	RunWorker(in, &out, maxParses)

	var responses []Response
	dec := json.NewDecoder(&out)
	for dec.More() {
		var r Response
		require.NoError(t, dec.Decode(&r))
		responses = append(responses, r)
	}
	return responses
}

func TestRunWorkerSignalsReadyThenParses(t *testing.T) {
	req, err := json.Marshal(Request{ID: "1", Content: "trait = yes", TimeoutMS: 1000})
	require.NoError(t, err)

	responses := runWorkerLines(t, []string{string(req)}, 0)

	require.Len(t, responses, 2)
	assert.True(t, responses[0].Ready)
	assert.Equal(t, "1", responses[1].ID)
	assert.True(t, responses[1].OK)
	assert.NotEmpty(t, responses[1].ASTJson)
}

func TestRunWorkerReportsParseOkFalseWithoutFailingTask(t *testing.T) {
	req, err := json.Marshal(Request{ID: "1", Content: "trait = { unterminated", TimeoutMS: 1000})
	require.NoError(t, err)

	responses := runWorkerLines(t, []string{string(req)}, 0)

	require.Len(t, responses, 2)
	assert.True(t, responses[1].OK)
}

func TestRunWorkerMissingPathReturnsIOFailure(t *testing.T) {
	req, err := json.Marshal(Request{ID: "1", Path: "/does/not/exist.txt", TimeoutMS: 1000})
	require.NoError(t, err)

	responses := runWorkerLines(t, []string{string(req)}, 0)

	require.Len(t, responses, 2)
	assert.False(t, responses[1].OK)
	assert.Equal(t, "io", responses[1].ErrorType)
}

func TestRunWorkerRecyclesAfterBoundedParses(t *testing.T) {
	req, err := json.Marshal(Request{ID: "1", Content: "a = yes", TimeoutMS: 1000})
	require.NoError(t, err)
	req2, err := json.Marshal(Request{ID: "2", Content: "b = yes", TimeoutMS: 1000})
	require.NoError(t, err)

	responses := runWorkerLines(t, []string{string(req), string(req2)}, 1)

	// ready, response-1, recycle (worker exits before request 2 arrives
	// in its scan loop since recycle returns immediately after request 1).
	require.Len(t, responses, 3)
	assert.True(t, responses[2].Recycle)
}

func TestRunWorkerShutdownCommandStopsLoop(t *testing.T) {
	shutdown, err := json.Marshal(ShutdownCommand{Command: "shutdown"})
	require.NoError(t, err)

	responses := runWorkerLines(t, []string{string(shutdown)}, 0)

	require.Len(t, responses, 1)
	assert.True(t, responses[0].Ready)
}
