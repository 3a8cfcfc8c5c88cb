package workerpool

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures every readLoop goroutine started by a Pool exits once
// its worker process is killed or the pool is closed.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("sync.runtime_Semacquire"),
		goleak.IgnoreTopFunction("os/exec.(*Cmd).Start.func2"),
	)
}
