// Package engine implements Strata's façade: the single entry point that
// opens a data directory, runs crash recovery, hands out per-run
// transaction handles and primitive stores, and owns the background
// workers that keep the substrate healthy (checkpoint, WAL compaction,
// TTL sweep).
//
// Grounded on docdb/internal/docdb/core.go's LogicalDB (open/close,
// background workers, stats fields) fused with
// docdb/internal/pool/{pool,scheduler}.go's bounded worker pool, wired to
// github.com/panjf2000/ants/v2 exactly as scheduler.go's Start() does
// (ants.NewPool with WithExpiryDuration/WithPreAlloc/WithPanicHandler),
// and the weak-ref single-instance-per-data-directory registry of
// spec.md §5, generalized from docdb/internal/catalog's single-catalog-
// per-process shape to a package-level sync.Map keyed by data directory.
package engine

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stratadb/strata/internal/bundle"
	"github.com/stratadb/strata/internal/config"
	"github.com/stratadb/strata/internal/errors"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/logger"
	"github.com/stratadb/strata/internal/manifest"
	"github.com/stratadb/strata/internal/metrics"
	"github.com/stratadb/strata/internal/primitives/eventlog"
	"github.com/stratadb/strata/internal/primitives/jsondoc"
	"github.com/stratadb/strata/internal/primitives/kv"
	"github.com/stratadb/strata/internal/primitives/run"
	"github.com/stratadb/strata/internal/primitives/statecell"
	"github.com/stratadb/strata/internal/primitives/vector"
	"github.com/stratadb/strata/internal/recovery"
	"github.com/stratadb/strata/internal/retention"
	"github.com/stratadb/strata/internal/snapshot"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/txn"
	"github.com/stratadb/strata/internal/wal"
)

// Engine is one open data directory: the substrate, its transaction
// manager, the six primitive façades, and the background workers that
// keep retention/checkpointing/compaction running.
type Engine struct {
	dataDir      string
	walDir       string
	snapshotDir  string
	manifestPath string
	cfg          *config.Config
	logger       *logger.Logger

	store     *store.VersionedStore
	walw      *wal.Writer
	mgr       *txn.Manager
	mani      *manifest.Manifest
	snapshots *snapshot.Store
	compactor *retention.WALCompactor

	KV      *kv.Store
	JSON    *jsondoc.Store
	Events  *eventlog.Store
	State   *statecell.Store
	Vectors *vector.Store
	Runs    *run.Store

	open atomic.Bool

	workers *ants.Pool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	ephemeral bool
}

// registry holds one live *Engine per data directory, weakly — an Engine
// left unreferenced by the caller and the GC is eligible for collection
// once its cleanup fires, per spec.md §5's "the engine maintains a
// weak-ref registry so that only one live instance exists per data
// directory."
var registry sync.Map // dataDir string -> *Engine

// extraParticipants holds participants registered via Register for a
// directory that is later (re)opened, since a live Engine's recovery has
// already run by the time an external caller can reach it — see
// Register's doc comment.
var extraParticipants sync.Map // dataDir string -> []registeredParticipant

type registeredParticipant struct {
	tag key.TypeTag
	fn  recovery.Participant
}

// Open returns the single live Engine for dataDir, opening (and, if
// necessary, recovering) it on first call. A second Open of the same
// directory while the first instance is still alive returns that same
// instance rather than racing two writers over one WAL.
func Open(dataDir string, cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, errors.InvalidInput("invalid data directory: " + err.Error())
	}
	if existing, ok := registry.Load(abs); ok {
		return existing.(*Engine), nil
	}

	e, err := openFresh(abs, cfg, false)
	if err != nil {
		return nil, err
	}
	registry.Store(abs, e)
	runtime.AddCleanup(e, func(path string) { registry.CompareAndDelete(path, e) }, abs)
	return e, nil
}

// Cache opens an ephemeral Engine — ideal for tests and scratch use — with
// InMemory durability (the WAL is never fsynced), backed by a fresh
// temporary directory, per spec.md §6's "cache() (ephemeral)". It is never registered in the
// weak-ref directory registry since it owns no directory worth
// deduplicating on.
func Cache() (*Engine, error) {
	cfg := config.Default()
	cfg.WAL.Durability = config.InMemory
	dir, err := os.MkdirTemp("", "strata-cache-*")
	if err != nil {
		return nil, errors.Internal("cache: create temp dir", err)
	}
	cfg.DataDir = dir
	cfg.WAL.Dir = filepath.Join(dir, "wal")
	e, err := openFresh(dir, cfg, true)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return e, nil
}

func openFresh(dataDir string, cfg *config.Config, ephemeral bool) (*Engine, error) {
	log := logger.Default().Component("engine")

	walDir := cfg.WAL.Dir
	if walDir == "" {
		walDir = filepath.Join(dataDir, "wal")
	}
	snapDir := filepath.Join(dataDir, "snapshots")
	manifestPath := filepath.Join(dataDir, "MANIFEST")

	if err := os.MkdirAll(walDir, 0o755); err != nil {
		return nil, errors.Internal("engine: mkdir wal", err)
	}
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		return nil, errors.Internal("engine: mkdir snapshots", err)
	}

	s := store.NewWithCacheSize(cfg.Store.NumShards, cfg.Store.ScanCacheSize)

	mani := manifest.New(manifestPath, log)
	if err := mani.Load(); err != nil {
		return nil, errors.Internal("engine: load manifest", err)
	}

	snapStore := snapshot.NewStore(snapDir, log)
	if snap, err := snapStore.Load(); err == nil && snap != nil {
		if err := snapshot.Restore(s, snap); err != nil {
			return nil, errors.Corruption("engine: restore snapshot", err)
		}
	}

	// Vector's recovery participant never touches the manager (see
	// vector.Store.SetManager's doc comment), so it can be registered and
	// run before one exists — the WAL must stay unopened for writing
	// until replay has finished reading it (docdb/internal/docdb/core.go's
	// Open comment: "Replay WAL while active segment is not open for
	// writing").
	coord := recovery.New(walDir, snapDir, manifestPath, log)
	vectors := vector.New(nil)
	coord.RegisterParticipant(key.TagVector, vectors.RecoveryParticipant())
	if extra, ok := extraParticipants.Load(dataDir); ok {
		for _, p := range extra.([]registeredParticipant) {
			coord.RegisterParticipant(p.tag, p.fn)
		}
	}

	start := time.Now()
	if _, err := coord.Recover(s); err != nil {
		return nil, err
	}
	metrics.RecoveryDuration.Observe(time.Since(start).Seconds())

	walCfg := cfg.WAL
	walCfg.Dir = walDir
	w, err := wal.NewWriter(walCfg, log)
	if err != nil {
		return nil, err
	}

	mgr := txn.NewManager(s, w, log)
	vectors.SetManager(mgr)

	e := &Engine{
		dataDir:      dataDir,
		walDir:       walDir,
		snapshotDir:  snapDir,
		manifestPath: manifestPath,
		cfg:          cfg,
		logger:       log,
		store:        s,
		walw:         w,
		mgr:          mgr,
		mani:         mani,
		snapshots:    snapStore,
		compactor:    retention.NewWALCompactor(walDir, log),
		KV:           kv.New(mgr),
		JSON:         jsondoc.New(mgr),
		Events:       eventlog.New(mgr),
		State:        statecell.New(mgr),
		Vectors:      vectors,
		Runs:         run.New(mgr),
		ephemeral:    ephemeral,
	}
	e.open.Store(true)

	if err := e.startWorkers(); err != nil {
		return nil, err
	}
	return e, nil
}

// IsOpen reports whether Shutdown has not yet been called.
func (e *Engine) IsOpen() bool { return e.open.Load() }

// Begin starts a transaction bound to run, refusing to issue a snapshot
// once the engine has been shut down — the fix for the original's
// confirmed issue #856 ("begin_transaction not gated by shutdown flag"):
// only the closure-based Transaction() checked the flag, while the raw
// Begin()/end_transaction() pair silently let new work start after
// shutdown.
func (e *Engine) Begin(run key.RunId) (*txn.Context, error) {
	if !e.IsOpen() {
		return nil, errors.Shutdown()
	}
	return e.mgr.Begin(), nil
}

// Commit commits ctx, returning the version it committed at.
func (e *Engine) Commit(ctx *txn.Context) (uint64, error) {
	if !e.IsOpen() {
		return 0, errors.Shutdown()
	}
	if err := e.mgr.Commit(ctx); err != nil {
		return 0, err
	}
	return ctx.CommitVersion(), nil
}

// Abort discards ctx without committing.
func (e *Engine) Abort(ctx *txn.Context) { e.mgr.Abort(ctx) }

// Transaction runs f against a fresh Context bound to run, committing on
// success and retrying the whole closure on a conflict — spec.md §6's
// "transaction(run, f) -> Result (closure with auto-retry)". f must be
// safe to invoke more than once, the same contract as
// statecell.Store.Transition's closure.
func (e *Engine) Transaction(run key.RunId, f func(ctx *txn.Context) error) (uint64, error) {
	if !e.IsOpen() {
		return 0, errors.Shutdown()
	}
	var version uint64
	retryErr := errors.DefaultRetryController().Do(func(attempt int) error {
		ctx, err := e.Begin(run)
		if err != nil {
			return err
		}
		if err := f(ctx); err != nil {
			e.Abort(ctx)
			return err
		}
		v, err := e.Commit(ctx)
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if retryErr != nil {
		return 0, retryErr
	}
	return version, nil
}

// Register adds a recovery participant for tag. Since a live Engine's
// recovery already ran by the time a caller can reach it, fn is held for
// the next time this data directory is opened from scratch (after a
// Shutdown), rather than invoked immediately — spec.md §6's
// "register(tag, recover_fn)".
func (e *Engine) Register(tag key.TypeTag, fn recovery.Participant) {
	entry := registeredParticipant{tag: tag, fn: fn}
	existing, loaded := extraParticipants.LoadOrStore(e.dataDir, []registeredParticipant{entry})
	if list, ok := existing.([]registeredParticipant); loaded && ok {
		extraParticipants.Store(e.dataDir, append(list, entry))
	}
}

// DryRun reports what recovering this data directory right now would
// produce, without touching the live store — SPEC_FULL.md §6's replay
// invariants P1-P6 diagnostic surface.
func (e *Engine) DryRun() (*recovery.ReplayReport, error) {
	return recovery.DryRun(e.walDir, e.snapshotDir, e.manifestPath)
}

// ExportRunBundle writes run's full state and WAL history to w as a
// tar+zstd archive (spec.md §6's optional RunBundle format), for offline
// transfer of a single run between data directories.
func (e *Engine) ExportRunBundle(run key.RunId, w io.Writer) error {
	if !e.IsOpen() {
		return errors.Shutdown()
	}
	return bundle.Export(e.mgr, e.Runs, e.walDir, run, w)
}

// ImportRunBundle reads a bundle previously produced by ExportRunBundle
// from r and recreates its run under dest, which must not already exist.
func (e *Engine) ImportRunBundle(dest key.RunId, r io.Reader) (*bundle.Manifest, error) {
	if !e.IsOpen() {
		return nil, errors.Shutdown()
	}
	return bundle.Import(e.mgr, e.Runs, dest, r)
}

// Flush forces every buffered write durable and installs a fresh
// checkpoint immediately, rather than waiting for the next scheduled
// background checkpoint — spec.md §6's "flush()".
func (e *Engine) Flush() error {
	if err := e.walw.Sync(); err != nil {
		return errors.Durability("flush: wal sync", err)
	}
	return e.checkpoint()
}

// Shutdown flushes durable state, stops the background worker pool, and
// marks the engine closed so every subsequent Begin/Commit/Transaction
// call is rejected with errors.Shutdown().
func (e *Engine) Shutdown() error {
	if !e.open.CompareAndSwap(true, false) {
		return nil // already shut down
	}

	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	if e.workers != nil {
		e.workers.Release()
	}

	flushErr := e.walw.Sync()
	closeErr := e.walw.Close()
	if e.ephemeral {
		os.RemoveAll(e.dataDir)
	}
	registry.CompareAndDelete(e.dataDir, e)

	if flushErr != nil {
		return errors.Durability("shutdown: final wal sync", flushErr)
	}
	if closeErr != nil {
		return errors.Durability("shutdown: wal close", closeErr)
	}
	return nil
}
