package store

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures the single-writer goroutine started by New always
// exits when Close is called.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("sync.runtime_Semacquire"),
	)
}
