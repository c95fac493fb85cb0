package engine

import (
	"context"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stratadb/strata/internal/retention"
	"github.com/stratadb/strata/internal/snapshot"
	"github.com/stratadb/strata/internal/wal"
)

// startWorkers spins up the bounded ants pool and the background ticker
// that periodically checkpoints, compacts the WAL, and sweeps retention —
// wired exactly as docdb/internal/pool/scheduler.go's Start() wires its
// ants.Pool, generalized from that teacher's single "compaction" task to
// Strata's three periodic maintenance tasks sharing one pool.
func (e *Engine) startWorkers() error {
	workerCount := e.cfg.Engine.WorkerCount
	if workerCount <= 0 {
		workerCount = 2
	}
	pool, err := ants.NewPool(
		workerCount,
		ants.WithExpiryDuration(10*time.Second),
		ants.WithPreAlloc(true),
		ants.WithPanicHandler(func(v any) {
			e.logger.Warn("background worker panic", map[string]any{"panic": v})
		}),
	)
	if err != nil {
		return err
	}
	e.workers = pool

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	interval := e.cfg.Engine.CheckpointInterval
	if interval <= 0 {
		interval = time.Minute
	}

	e.wg.Add(1)
	go e.maintenanceLoop(ctx, interval)
	return nil
}

// maintenanceLoop fires checkpoint+compact+sweep on a fixed interval. Each
// pass runs on the ants pool and the loop waits for it to finish (or for
// ctx to be cancelled) before taking the next tick, so passes never
// overlap; ticks that fire during a slow pass are dropped by the ticker.
func (e *Engine) maintenanceLoop(ctx context.Context, interval time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			done := make(chan struct{})
			err := e.workers.Submit(func() {
				defer close(done)
				if err := e.maintain(); err != nil {
					e.logger.Error("maintenance pass failed", err)
				}
			})
			if err != nil {
				e.logger.Error("submit maintenance pass", err)
				continue
			}
			select {
			case <-done:
			case <-ctx.Done():
				return
			}
		}
	}
}

// maintain runs one full checkpoint + WAL compaction + retention sweep
// pass. Compaction only ever removes segments the checkpoint just made
// redundant, so ordering them checkpoint-then-compact-then-sweep keeps
// every step safe to run while the WAL writer is live appending to a
// later segment (internal/retention.WALCompactor.Compact's doc comment).
func (e *Engine) maintain() error {
	if err := e.checkpoint(); err != nil {
		return err
	}
	return e.sweep()
}

// checkpoint installs a fresh snapshot of the current store and trims
// whatever WAL segments it makes redundant — spec.md §4.6's periodic
// checkpoint, grounded on docdb/internal/docdb/core.go's background
// checkpoint goroutine.
func (e *Engine) checkpoint() error {
	now := time.Now()
	version := e.store.CurrentVersion()
	segSeq, _ := e.walw.Segment()

	sections := snapshot.BuildSections(e.store, now)
	header := snapshot.Header{
		Timestamp:    now,
		WALSeq:       segSeq,
		WALOffset:    0,
		StoreVersion: version,
	}
	if _, err := e.snapshots.Write(header, sections); err != nil {
		return err
	}

	rotator := wal.NewRotator(e.walDir, e.logger)
	liveSeqs, _, err := rotator.ListSegments()
	if err != nil {
		return err
	}

	trimmed, err := e.compactor.Compact(segSeq)
	if err != nil {
		return err
	}
	stillLive := make([]int, 0, len(liveSeqs))
	for _, seq := range liveSeqs {
		if seq >= segSeq {
			stillLive = append(stillLive, seq)
		}
	}
	_ = trimmed

	watermark := retention.WatermarkFromManifest(e.mani)
	if version > watermark {
		watermark = version
	}
	return retention.UpdateManifestAfterCompaction(e.mani, version, stillLive, watermark)
}

// sweep applies the configured retention policy to the live store —
// spec.md §4.7's three prune dimensions (max age, max versions per key,
// watermark-covered).
func (e *Engine) sweep() error {
	sw := retention.NewSweeper(e.store, e.logger)
	policy := retention.Policy{
		MaxAge:            e.cfg.Retention.MaxAge,
		MaxVersionsPerKey: e.cfg.Retention.MaxVersionsPerKey,
		WatermarkVersion:  retention.WatermarkFromManifest(e.mani),
	}
	sw.Sweep(policy, time.Now())
	return nil
}
