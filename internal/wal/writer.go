package wal

import (
	"os"
	"sync"
	"time"

	"github.com/stratadb/strata/internal/config"
	"github.com/stratadb/strata/internal/logger"
	"github.com/stratadb/strata/internal/metrics"
)

// Writer appends records to the active segment, rotating to a new one once
// the size threshold is crossed, and fsyncing per config.DurabilityMode.
//
// Grounded on docdb/internal/wal/writer.go (append-only file, size
// tracking, optional fsync) fused with docdb/internal/wal/group_commit.go's
// mode-dispatched flush strategy, generalized from the teacher's
// FsyncMode (Always/Group/Interval/None) to Strata's DurabilityMode
// (Strict/Batched/Async/InMemory) — the same four strategies, renamed to
// match spec.md §4.4's vocabulary.
//
// Thread safety: all exported methods hold mu; a single Writer instance is
// meant to be owned by the transaction manager's commit pipeline, not
// shared across independent writers.
type Writer struct {
	mu     sync.Mutex
	dir    string
	file   *os.File
	seq    int
	size   uint64
	maxSeg uint64

	mode          config.DurabilityMode
	batchSize     int
	flushInterval time.Duration

	pending    int
	flushTimer *time.Timer
	stopCh     chan struct{}
	wg         sync.WaitGroup

	rotator *Rotator
	logger  *logger.Logger
}

func NewWriter(cfg config.WALConfig, log *logger.Logger) (*Writer, error) {
	if log == nil {
		log = logger.Nop()
	}
	w := &Writer{
		dir:           cfg.Dir,
		maxSeg:        cfg.MaxSegmentSizeMB * 1024 * 1024,
		mode:          cfg.Durability,
		batchSize:     cfg.MaxBatchSize,
		flushInterval: cfg.FlushInterval,
		rotator:       NewRotator(cfg.Dir, log),
		logger:        log.Component("wal.writer"),
		stopCh:        make(chan struct{}),
	}
	if w.batchSize <= 0 {
		w.batchSize = 1
	}
	if w.flushInterval <= 0 {
		w.flushInterval = 5 * time.Millisecond
	}

	seqs, paths, err := w.rotator.ListSegments()
	if err != nil {
		return nil, err
	}
	if len(seqs) == 0 {
		seq, _, f, err := w.rotator.CreateNext()
		if err != nil {
			return nil, err
		}
		w.seq, w.file = seq, f
	} else {
		last := len(seqs) - 1
		f, size, err := openSegmentForAppend(paths[last])
		if err != nil {
			return nil, err
		}
		w.seq, w.file, w.size = seqs[last], f, uint64(size)
	}

	if w.mode == config.Batched || w.mode == config.Async {
		w.flushTimer = time.NewTimer(w.flushInterval)
		w.wg.Add(1)
		go w.flushLoop()
	}

	return w, nil
}

// Append writes r to the active segment, returning once it is durable
// according to the writer's DurabilityMode:
//   - Strict:   fsynced before Append returns.
//   - Batched:  buffered; fsynced by the background flusher on the
//     interval or once batchSize writes have accumulated since the last
//     flush; Close flushes any remainder.
//   - Async:    same buffering as Batched, but a crash before the next
//     flush silently loses the buffered tail (spec.md §4.4).
//   - InMemory: never fsynced at all.
func (w *Writer) Append(r Record) (uint64, error) {
	encoded, err := Encode(r)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.maxSeg > 0 && w.size+uint64(len(encoded)) > w.maxSeg {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(encoded)
	if err != nil {
		return 0, err
	}
	w.size += uint64(n)
	metrics.WALBytesWritten.Add(float64(n))

	switch w.mode {
	case config.Strict:
		if err := w.syncLocked(); err != nil {
			return 0, err
		}
	case config.Batched, config.Async:
		w.pending++
		if w.mode == config.Batched && w.pending >= w.batchSize {
			if err := w.syncLocked(); err != nil {
				return 0, err
			}
		}
	case config.InMemory:
		// never synced
	}

	return uint64(w.size), nil
}

func (w *Writer) rotateLocked() error {
	if err := w.file.Sync(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	seq, _, f, err := w.rotator.CreateNext()
	if err != nil {
		return err
	}
	w.seq, w.file, w.size, w.pending = seq, f, 0, 0
	return nil
}

func (w *Writer) syncLocked() error {
	start := time.Now()
	err := w.file.Sync()
	metrics.WALFsyncDuration.Observe(time.Since(start).Seconds())
	w.pending = 0
	return err
}

// Sync forces any buffered records to disk regardless of mode.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mode == config.InMemory {
		return nil
	}
	return w.syncLocked()
}

// Segment reports the active segment's sequence number and current size,
// for the recovery watermark and retention bookkeeping.
func (w *Writer) Segment() (seq int, size uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq, w.size
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case <-w.flushTimer.C:
			w.mu.Lock()
			if w.pending > 0 {
				w.syncLocked()
			}
			w.mu.Unlock()
			w.flushTimer.Reset(w.flushInterval)
		}
	}
}

// Close flushes (for Strict/Batched; best-effort for Async) and closes the
// active segment. A shutdown flush is mandatory for every mode except
// Async, matching config.Async's documented "best-effort on shutdown".
func (w *Writer) Close() error {
	if w.flushTimer != nil {
		select {
		case <-w.stopCh:
			// already stopped by an earlier Close
		default:
			close(w.stopCh)
		}
		w.flushTimer.Stop()
		w.wg.Wait()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.mode != config.InMemory {
		if err := w.file.Sync(); err != nil && w.mode != config.Async {
			return err
		}
	}
	return w.file.Close()
}
