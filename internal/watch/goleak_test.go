package watch

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures every Watcher's run goroutine exits once Stop is called
// or its context is cancelled.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}
