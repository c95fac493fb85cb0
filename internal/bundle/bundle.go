// Package bundle implements RunBundle export/import (spec.md §6, optional):
// a tar+zstd archive holding MANIFEST.json, RUN.json, and WAL.runlog for
// offline transfer of a single run's history between data directories.
//
// No equivalent archive format exists upstream; grounded on archive/tar
// (stdlib; no ecosystem tar library improves on it for a three-entry
// archive) for framing and github.com/klauspost/compress/zstd for the
// stream codec.
package bundle

import (
	"archive/tar"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stratadb/strata/internal/errors"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/primitives/run"
	"github.com/stratadb/strata/internal/txn"
	"github.com/stratadb/strata/internal/value"
	"github.com/stratadb/strata/internal/wal"
)

// FormatVersion guards cross-version bundle compatibility; bumped whenever
// Manifest or Record's JSON shape changes incompatibly.
const FormatVersion = 1

// Manifest is MANIFEST.json's content.
type Manifest struct {
	FormatVersion int       `json:"format_version"`
	RunID         string    `json:"run_id"`
	Name          string    `json:"name"`
	Status        string    `json:"status"`
	ExportedAt    time.Time `json:"exported_at"`
	RecordCount   int       `json:"record_count"`
}

// Record is one entry in RUN.json: a live (non-tombstoned) key as of the
// export snapshot, namespaced by primitive tag since a run's keys are only
// unique within (tag, user key), not across tags.
type Record struct {
	Tag     string `json:"tag"`
	UserKey string `json:"user_key"` // hex
	Value   string `json:"value"`    // hex, value.Encode() output
	Version uint64 `json:"version"`
}

// sweepTags mirrors internal/primitives/run's cascading-delete namespace
// list: every substrate tag a run's data can live under.
var sweepTags = []key.TypeTag{key.TagKV, key.TagJSON, key.TagEvent, key.TagState, key.TagVector}

const (
	entryManifest = "MANIFEST.json"
	entryRun      = "RUN.json"
	entryWAL      = "WAL.runlog"
)

// Export writes runID's metadata, every live key across all six
// primitives as of the current snapshot, and runID's portion of the WAL
// to w as a zstd-compressed tar stream.
func Export(mgr *txn.Manager, runs *run.Store, walDir string, runID key.RunId, w io.Writer) error {
	info, err := runs.Get(runID)
	if err != nil {
		return err
	}

	ctx := mgr.Begin()
	var records []Record
	for _, tag := range sweepTags {
		for _, res := range ctx.Snapshot().Scan(runID, tag, nil) {
			records = append(records, Record{
				Tag:     tag.String(),
				UserKey: hex.EncodeToString(res.Key.User),
				Value:   hex.EncodeToString(value.Encode(res.Entry.Value)),
				Version: res.Entry.Version,
			})
		}
	}
	mgr.Abort(ctx)

	runLog, err := exportRunlog(walDir, runID)
	if err != nil {
		return err
	}

	manifest := Manifest{
		FormatVersion: FormatVersion,
		RunID:         runID.String(),
		Name:          info.Name,
		Status:        info.Status.String(),
		ExportedAt:    time.Now(),
		RecordCount:   len(records),
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return errors.Internal("bundle: open zstd writer", err)
	}
	tw := tar.NewWriter(zw)

	if err := writeJSONEntry(tw, entryManifest, manifest); err != nil {
		tw.Close()
		zw.Close()
		return err
	}
	if err := writeJSONEntry(tw, entryRun, records); err != nil {
		tw.Close()
		zw.Close()
		return err
	}
	if err := writeRawEntry(tw, entryWAL, runLog); err != nil {
		tw.Close()
		zw.Close()
		return err
	}
	if err := tw.Close(); err != nil {
		zw.Close()
		return errors.Internal("bundle: close tar writer", err)
	}
	if err := zw.Close(); err != nil {
		return errors.Internal("bundle: close zstd writer", err)
	}
	return nil
}

// exportRunlog re-serializes every WAL record belonging to runID (i.e.
// whose decoded key's Run matches) into a standalone concatenated record
// stream, in original commit order. Txn marker records (BeginTxn/
// CommitTxn/AbortTxn/Checkpoint) carry no key and are not run-scoped, so
// they are not included — WAL.runlog is a per-key effect log, not a
// replayable transaction stream.
func exportRunlog(walDir string, runID key.RunId) ([]byte, error) {
	it, err := wal.NewIterator(walDir)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []byte
	for {
		rec, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec.Key) == 0 {
			continue
		}
		k, err := key.Decode(rec.Key)
		if err != nil {
			continue
		}
		if k.Run != runID {
			continue
		}
		enc, err := wal.Encode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	return out, nil
}

func writeJSONEntry(tw *tar.Writer, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Internal("bundle: marshal "+name, err)
	}
	return writeRawEntry(tw, name, data)
}

func writeRawEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Size:    int64(len(data)),
		Mode:    0o644,
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return errors.Internal("bundle: write "+name+" header", err)
	}
	if _, err := tw.Write(data); err != nil {
		return errors.Internal("bundle: write "+name+" body", err)
	}
	return nil
}
