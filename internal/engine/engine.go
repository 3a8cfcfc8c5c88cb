// Package engine wires the components of spec.md §9's Design Notes into
// one top-level handle: "global mutable state is avoided; components
// receive explicit configuration structs and handles passed to entry
// points." Engine owns a Store, Registry, routing Table, extraction
// Registry, Cache, Queue, and worker Pool, and drives ingest and the
// build queue's claim/process/complete loop across them. Grounded on
// the teacher's top-level Indexer struct in cmd/lci/main.go, which wires
// its own FileContentStore/Scanner/WorkerPool together the same way.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/paradoxindex/ckindex/internal/cache"
	"github.com/paradoxindex/ckindex/internal/config"
	cerrors "github.com/paradoxindex/ckindex/internal/errors"
	"github.com/paradoxindex/ckindex/internal/loc"
	"github.com/paradoxindex/ckindex/internal/queue"
	"github.com/paradoxindex/ckindex/internal/registry"
	"github.com/paradoxindex/ckindex/internal/routing"
	"github.com/paradoxindex/ckindex/internal/scanner"
	"github.com/paradoxindex/ckindex/internal/script"
	"github.com/paradoxindex/ckindex/internal/store"
	"github.com/paradoxindex/ckindex/internal/types"
	"github.com/paradoxindex/ckindex/internal/watch"
	"github.com/paradoxindex/ckindex/internal/workerpool"
)

// Engine is the process-wide handle a daemon or one-shot CLI command
// builds once and threads through every operation.
type Engine struct {
	Cfg      *config.Config
	Store    *store.Store
	Registry *registry.Registry
	Routing  *routing.Table
	Symbols  *script.Registry
	Cache    *cache.Cache
	Queue    *queue.Queue
	Pool     *workerpool.Pool

	writerLock     *queue.WriterLock
	cvids          []types.CVID
	watcher        *watch.Watcher
	pendingRefresh *queue.PendingRefreshLog
}

// New builds an Engine from cfg. spawn is the worker pool's SpawnFunc;
// callers typically re-exec the current binary into the hidden
// "parse-worker" subcommand (spec.md §4.7).
func New(cfg *config.Config, spawn workerpool.SpawnFunc, routingTable *routing.Table) (*Engine, error) {
	q, err := queue.Open(cfg.Queue.StorePath + "/queue.db")
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}

	pool, err := workerpool.New(workerpool.Config{
		NumWorkers:             cfg.WorkerPool.NumWorkers,
		MaxParsesBeforeRecycle: cfg.WorkerPool.MaxParsesBeforeRecycle,
		DefaultTimeoutMS:       cfg.WorkerPool.DefaultTimeoutMS,
		MaxTimeoutMS:           cfg.WorkerPool.MaxTimeoutMS,
	}, spawn)
	if err != nil {
		q.Close()
		return nil, fmt.Errorf("start worker pool: %w", err)
	}

	if routingTable == nil {
		routingTable = routing.Default()
	}

	return &Engine{
		Cfg:        cfg,
		Store:      store.New(cfg.Store.MaxParseableSize),
		Registry:   registry.New(),
		Routing:    routingTable,
		Symbols:    script.DefaultRegistry(),
		Cache:      cache.New(1),
		Queue:      q,
		Pool:       pool,
		writerLock: queue.NewWriterLock(cfg.Queue.StorePath),
	}, nil
}

// AcquireWriterLock claims exclusive ownership of the store (spec.md
// §4.8 single-writer rule). Callers that fail to acquire should exit
// with queue.ExitWriterExists.
func (e *Engine) AcquireWriterLock() error {
	return e.writerLock.Acquire()
}

// Close releases every owned resource.
func (e *Engine) Close() {
	if e.watcher != nil {
		e.watcher.Stop()
	}
	e.writerLock.Release()
	e.Pool.Close()
	e.Queue.Close()
	e.Store.Close()
}

// WatchRoots returns one watch.Root per currently tracked mod content
// version, pointing at the directory it was ingested from. Vanilla is
// never watched: the watcher is a mod-development convenience, and
// vanilla content only changes on a game patch, which always goes
// through a fresh IngestVanilla instead.
func (e *Engine) WatchRoots() []watch.Root {
	var roots []watch.Root
	for _, cvid := range e.cvids {
		cv, ok := e.Registry.Version(cvid)
		if !ok || cv.Kind != types.KindMod || cv.SourcePathHint == "" {
			continue
		}
		roots = append(roots, watch.Root{Mod: strconv.FormatUint(uint64(cvid), 10), Path: cv.SourcePathHint})
	}
	return roots
}

// StartWatch launches the fsnotify-backed pending-refresh producer over
// every currently tracked mod directory. Callers gate this on
// Cfg.Watch.Enabled && Cfg.FeatureFlags.EnableWatchMode; StartWatch itself
// is a no-op if there is nothing to watch yet. The watcher runs until ctx
// is cancelled or Close stops it.
func (e *Engine) StartWatch(ctx context.Context) error {
	roots := e.WatchRoots()
	if len(roots) == 0 {
		return nil
	}

	log := queue.NewPendingRefreshLog(e.Cfg.Queue.StorePath + "/pending_refresh.log")
	w, err := watch.New(roots, log, time.Duration(e.Cfg.Watch.DebounceMS)*time.Millisecond)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	w.Start(ctx)
	e.watcher = w
	e.pendingRefresh = log
	return nil
}

// DrainPendingRefresh reads and clears the pending-refresh log (appended to
// by StartWatch's watcher, or by any external caller sharing the same
// Queue.StorePath) and turns every surviving record into queue work: a
// WRITE record enqueues a build task for the file it names, a DELETE record
// marks the FileRecord deleted without enqueueing further parsing.
func (e *Engine) DrainPendingRefresh() error {
	if e.pendingRefresh == nil {
		return nil
	}
	records, err := e.pendingRefresh.ReadAndClear()
	if err != nil {
		return fmt.Errorf("drain pending refresh: %w", err)
	}

	for _, rec := range records {
		cvid, ok := parseCVID(rec.Mod)
		if !ok {
			continue
		}
		fileRec, err := e.Registry.File(cvid, rec.Relpath)
		if err != nil {
			continue
		}

		switch rec.Op {
		case queue.RefreshDelete:
			fileRec.Deleted = true
		case queue.RefreshWrite:
			fileRec.Deleted = false
			_, envelope := e.Routing.Route(rec.Relpath)
			if _, err := e.Queue.Enqueue(fileRec.FileID, envelope, fileRec.Fingerprint); err != nil {
				return fmt.Errorf("enqueue %s: %w", rec.Relpath, err)
			}
		}
	}
	return nil
}

func parseCVID(s string) (types.CVID, bool) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return types.CVID(v), true
}

// IngestVanilla scans root, registers it as the vanilla content version,
// and enqueues a build task for every file of that version, whatever its
// envelope; ProcessOne completes INGEST-only tasks without parsing.
func (e *Engine) IngestVanilla(versionString, root string, now int64) (*registry.ContentVersion, error) {
	entries, err := e.scanAndStore(root)
	if err != nil {
		return nil, err
	}
	cv, _ := e.Registry.IngestVanilla(versionString, entries, root, now)
	e.trackCVID(cv.CVID)
	if err := e.enqueueFiles(cv.CVID, entries); err != nil {
		return nil, err
	}
	return cv, nil
}

// IngestMod scans root, registers it as a mod content version, and
// enqueues build tasks the same way IngestVanilla does.
func (e *Engine) IngestMod(workshopID, displayName, root string, now int64) (*registry.ContentVersion, error) {
	entries, err := e.scanAndStore(root)
	if err != nil {
		return nil, err
	}
	cv, _ := e.Registry.IngestMod(workshopID, displayName, entries, root, now)
	e.trackCVID(cv.CVID)
	if err := e.enqueueFiles(cv.CVID, entries); err != nil {
		return nil, err
	}
	return cv, nil
}

func (e *Engine) trackCVID(cvid types.CVID) {
	for _, existing := range e.cvids {
		if existing == cvid {
			return
		}
	}
	e.cvids = append(e.cvids, cvid)
}

func (e *Engine) scanAndStore(root string) ([]scanner.Entry, error) {
	s := scanner.New(root, e.Cfg.Include, e.Cfg.Exclude, e.Cfg.Scanner.FollowSymlinks)
	var entries []scanner.Entry
	err := s.Scan(func(entry scanner.Entry) error {
		e.Store.Put(entry.Bytes)
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return entries, nil
}

func (e *Engine) enqueueFiles(cvid types.CVID, entries []scanner.Entry) error {
	for _, rec := range e.Registry.Files(cvid) {
		_, envelope := e.Routing.Route(rec.Relpath)
		if _, err := e.Queue.Enqueue(rec.FileID, envelope, rec.Fingerprint); err != nil {
			return fmt.Errorf("enqueue %s: %w", rec.Relpath, err)
		}
		e.Cache.IndexFileForCVID(cvid, rec.FileID)
	}
	return nil
}

// ProcessOne claims and processes a single queued task. It returns
// (false, nil) when the queue is empty.
func (e *Engine) ProcessOne(ctx context.Context) (bool, error) {
	task, err := e.Queue.Claim()
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	rec := e.findFileRecord(task.FileID)
	if rec == nil {
		return true, e.Queue.Fail(task.BuildID, cerrors.KindBug)
	}

	text, ok, err := e.Store.GetText(rec.ContentHash)
	if err != nil {
		return true, e.failTask(task.BuildID, cerrors.NewIOError("process", err))
	}

	if task.Envelope.Has(types.StageLocalization) {
		content, bErr := e.Store.GetBytes(rec.ContentHash)
		if bErr != nil {
			return true, e.failTask(task.BuildID, cerrors.NewIOError("process", bErr))
		}
		result := loc.Parse(content, rec.ContentHash)
		e.Cache.PutLocalization(rec.ContentHash, result.Entries)
		return true, e.Queue.Complete(task.BuildID)
	}

	if !task.Envelope.Has(types.StageParse) || !ok {
		return true, e.Queue.Complete(task.BuildID)
	}

	res := e.Pool.Parse(ctx, text, rec.Relpath, 0)
	if res.Err != nil {
		return true, e.failTask(task.BuildID, res.Err)
	}

	var ast types.AST
	if err := json.Unmarshal([]byte(res.ASTJson), &ast); err != nil {
		return true, e.failTask(task.BuildID, cerrors.NewEncodingError("process", err))
	}

	if task.Envelope.Has(types.StageSymbols) || task.Envelope.Has(types.StageRefs) {
		symbols, refs := script.Extract(&ast, rec.Relpath, rec.FileID, e.Symbols)
		if task.Envelope.Has(types.StageSymbols) {
			e.Cache.PutSymbols(rec.FileID, symbols)
		}
		if task.Envelope.Has(types.StageRefs) {
			e.Cache.PutReferences(rec.FileID, refs)
		}
	}

	return true, e.Queue.Complete(task.BuildID)
}

func (e *Engine) failTask(buildID types.BuildID, err error) error {
	return e.Queue.Fail(buildID, kindOf(err))
}

func kindOf(err error) cerrors.Kind {
	switch v := err.(type) {
	case *cerrors.TaskError:
		return v.Kind
	case *cerrors.ParseError:
		return cerrors.KindParse
	default:
		return cerrors.KindBug
	}
}

func (e *Engine) findFileRecord(fileID types.FileID) *registry.FileRecord {
	// FileRecords are keyed by (cvid, relpath) internally; scanning every
	// known CV's file list is acceptable here since this runs once per
	// queued task, not per query (spec.md's query surface has its own,
	// cache-backed indices for hot paths).
	for _, cvid := range e.cvids {
		for _, rec := range e.Registry.Files(cvid) {
			if rec.FileID == fileID {
				return rec
			}
		}
	}
	return nil
}

// DrainQueue repeatedly calls ProcessOne until the queue is empty or ctx
// is cancelled, sleeping briefly between empty polls (spec.md §4.8
// daemon loop).
func (e *Engine) DrainQueue(ctx context.Context, idleSleep time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := e.DrainPendingRefresh(); err != nil {
			return err
		}
		processed, err := e.ProcessOne(ctx)
		if err != nil {
			return err
		}
		if !processed {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idleSleep):
			}
		}
	}
}
