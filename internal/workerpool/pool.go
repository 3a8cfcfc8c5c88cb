package workerpool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paradoxindex/ckindex/internal/debug"
	"github.com/paradoxindex/ckindex/internal/errors"
)

// ParseResult is the outcome of one dispatched parse request.
type ParseResult struct {
	ASTJson   string
	NodeCount int
	Err       error
}

// workerHandle owns one subprocess: its stdin pipe, a reader goroutine
// draining stdout, and the in-flight requests waiting for a correlated
// response.
type workerHandle struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	mu      sync.Mutex
	pending map[string]chan Response
	dead    atomic.Bool
	index   int
	pool    *Pool
}

// Pool is the supervisor of spec.md §4.7: it owns N worker subprocesses,
// dispatches parse requests round-robin, replaces any worker whose process
// exits (including one that recycled itself), and kills+respawns on
// timeout. The configured MaxParsesBeforeRecycle is stored but not sent to
// workers: a worker recycles only when its RunWorker call is given a
// positive bound, and the parse-worker entry point in cmd/ckindex passes 0.
type Pool struct {
	spawn                  func() (*exec.Cmd, error)
	numWorkers              int
	defaultTimeout          time.Duration
	maxTimeout              time.Duration
	maxParsesBeforeRecycle  int

	mu      sync.Mutex
	workers []*workerHandle
	next    int
	nextID  atomic.Uint64
	closed  atomic.Bool
}

// SpawnFunc builds the *exec.Cmd for one worker subprocess; callers
// typically set it to re-exec the current binary with a hidden
// "parse-worker" subcommand.
type SpawnFunc func() (*exec.Cmd, error)

// Config bundles the pool's tunables (mirrors internal/config.WorkerPool).
type Config struct {
	NumWorkers             int
	MaxParsesBeforeRecycle int
	DefaultTimeoutMS       int
	MaxTimeoutMS           int
}

// New creates a Pool and spawns its initial workers.
func New(cfg Config, spawn SpawnFunc) (*Pool, error) {
	p := &Pool{
		spawn:                  spawn,
		numWorkers:             cfg.NumWorkers,
		defaultTimeout:         time.Duration(cfg.DefaultTimeoutMS) * time.Millisecond,
		maxTimeout:             time.Duration(cfg.MaxTimeoutMS) * time.Millisecond,
		maxParsesBeforeRecycle: cfg.MaxParsesBeforeRecycle,
	}
	for i := 0; i < p.numWorkers; i++ {
		w, err := p.spawnWorker(i)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.workers = append(p.workers, w)
	}
	return p, nil
}

func (p *Pool) spawnWorker(index int) (*workerHandle, error) {
	cmd, err := p.spawn()
	if err != nil {
		return nil, err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	w := &workerHandle{cmd: cmd, stdin: stdin, pending: make(map[string]chan Response), index: index, pool: p}
	go w.readLoop(stdout)
	return w, nil
}

// readLoop drains one worker's stdout until it exits, whether by crash,
// voluntary recycle, or a supervisor-initiated shutdown/kill. Every exit
// except a deliberate pool shutdown is replaced in place so the pool
// always has numWorkers live processes; recycling bounds a worker's
// memory drift, it doesn't shrink the pool.
func (w *workerHandle) readLoop(stdout io.ReadCloser) {
	defer func() {
		w.markDead()
		if !w.pool.closed.Load() {
			w.pool.respawnAt(w.index)
		}
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}
		if resp.Ready {
			continue
		}
		if resp.Recycle {
			return
		}
		w.deliver(resp)
	}
}

// respawnAt replaces a dead worker at the given slot with a fresh one.
func (p *Pool) respawnAt(index int) {
	fresh, err := p.spawnWorker(index)
	if err != nil {
		debug.LogParse("failed to respawn worker %d: %v", index, err)
		return
	}
	p.mu.Lock()
	if index >= 0 && index < len(p.workers) {
		p.workers[index] = fresh
	}
	p.mu.Unlock()
	debug.LogParse("respawned worker %d", index)
}

func (w *workerHandle) deliver(resp Response) {
	w.mu.Lock()
	ch, ok := w.pending[resp.ID]
	if ok {
		delete(w.pending, resp.ID)
	}
	w.mu.Unlock()
	if ok {
		ch <- resp
	}
}

func (w *workerHandle) markDead() {
	w.dead.Store(true)
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, ch := range w.pending {
		ch <- Response{ID: id, OK: false, ErrorType: "worker_crash", Error: "worker process exited"}
		delete(w.pending, id)
	}
}

func (w *workerHandle) kill() {
	w.dead.Store(true)
	if w.cmd.Process != nil {
		w.cmd.Process.Kill()
	}
	w.cmd.Wait()
}

// Close shuts down every worker, asking for a clean shutdown first and
// killing any that don't exit promptly.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	workers := append([]*workerHandle{}, p.workers...)
	p.mu.Unlock()

	for _, w := range workers {
		enc := json.NewEncoder(w.stdin)
		enc.Encode(ShutdownCommand{Command: "shutdown"})
		w.stdin.Close()
	}

	// Wait for every worker to exit voluntarily, bounded by a shared
	// deadline; an errgroup collapses the per-worker wait goroutines into
	// one joinable unit without hand-rolled done-channel bookkeeping.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g, _ := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			waited := make(chan struct{})
			go func() {
				w.cmd.Wait()
				close(waited)
			}()
			select {
			case <-waited:
			case <-ctx.Done():
			}
			return nil
		})
	}
	g.Wait()

	for _, w := range workers {
		w.kill()
	}
}

// Parse dispatches one parse request round-robin across the pool. A
// timeout of 0 uses the pool's DefaultTimeoutMS, capped at MaxTimeoutMS.
// On deadline miss the worker is killed and respawned, and the request
// completes with a timeout error (spec.md §4.7).
func (p *Pool) Parse(ctx context.Context, content, filename string, timeout time.Duration) ParseResult {
	if p.closed.Load() {
		return ParseResult{Err: errors.NewBugError("parse", fmt.Errorf("pool is closed"))}
	}
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}
	if p.maxTimeout > 0 && timeout > p.maxTimeout {
		timeout = p.maxTimeout
	}

	_, w := p.pickWorker()
	if w == nil {
		return ParseResult{Err: errors.NewWorkerCrashError("parse", fmt.Errorf("no live workers"))}
	}

	id := fmt.Sprintf("%d", p.nextID.Add(1))
	respCh := make(chan Response, 1)
	w.mu.Lock()
	w.pending[id] = respCh
	w.mu.Unlock()

	req := Request{ID: id, Content: content, Filename: filename, TimeoutMS: int(timeout.Milliseconds())}
	enc := json.NewEncoder(w.stdin)
	if err := enc.Encode(req); err != nil {
		return ParseResult{Err: errors.NewIOError("parse", err)}
	}

	select {
	case resp := <-respCh:
		if !resp.OK {
			debug.LogParse("worker %d: %s: %s: %s", w.index, filename, resp.ErrorType, resp.Error)
			return ParseResult{Err: errors.NewParseError(0, filename, 0, 0, fmt.Errorf("%s: %s", resp.ErrorType, resp.Error))}
		}
		return ParseResult{ASTJson: resp.ASTJson, NodeCount: resp.NodeCount}
	case <-time.After(timeout):
		debug.LogParse("worker %d: %s exceeded %s, killing and respawning", w.index, filename, timeout)
		p.killAndRespawn(w, id)
		return ParseResult{Err: errors.NewTimeoutError("parse", fmt.Errorf("parse of %s exceeded %s", filename, timeout))}
	case <-ctx.Done():
		return ParseResult{Err: errors.NewTimeoutError("parse", ctx.Err())}
	}
}

func (p *Pool) pickWorker() (int, *workerHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.workers)
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		w := p.workers[idx]
		if !w.dead.Load() {
			p.next = (idx + 1) % n
			return idx, w
		}
	}
	return -1, nil
}

// killAndRespawn kills a worker that missed its deadline; readLoop's
// exit defer respawns it in place.
func (p *Pool) killAndRespawn(w *workerHandle, timedOutID string) {
	w.mu.Lock()
	delete(w.pending, timedOutID)
	w.mu.Unlock()
	w.kill()
}
