package bundle

import (
	"archive/tar"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/stratadb/strata/internal/errors"
	"github.com/stratadb/strata/internal/key"
	"github.com/stratadb/strata/internal/primitives/run"
	"github.com/stratadb/strata/internal/txn"
	"github.com/stratadb/strata/internal/value"
	"github.com/stratadb/strata/internal/wal"
)

// importBatchSize bounds how many records one Import transaction stages,
// the same batching discipline run.Store.DeleteRun uses for its cascading
// sweep, so restoring a large run never builds one unbounded commit.
const importBatchSize = 256

// tagByName inverts key.TypeTag.String() for the tags a bundle can carry.
var tagByName = map[string]key.TypeTag{
	"kv":     key.TagKV,
	"json":   key.TagJSON,
	"event":  key.TagEvent,
	"state":  key.TagState,
	"vector": key.TagVector,
}

// Import reads a bundle previously produced by Export from r and replays
// its RUN.json records into dest under mgr, creating dest's run metadata
// first via runs.Create. dest must not already exist. WAL.runlog is
// decoded and CRC-validated as an integrity check on the archive itself
// (spec.md §6 names it as part of the bundle's contents) but is not
// replayed directly: the destination's transaction manager assigns its
// own versions and writes its own WAL records as Import's Puts commit,
// exactly as any other write would.
func Import(mgr *txn.Manager, runs *run.Store, dest key.RunId, r io.Reader) (*Manifest, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, errors.Internal("bundle: open zstd reader", err)
	}
	defer zr.Close()
	tr := tar.NewReader(zr)

	var manifest *Manifest
	var records []Record
	var runLog []byte
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Corruption("bundle: read tar entry", err)
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			return nil, errors.Corruption("bundle: read "+hdr.Name, err)
		}
		switch hdr.Name {
		case entryManifest:
			var m Manifest
			if err := json.Unmarshal(body, &m); err != nil {
				return nil, errors.Corruption("bundle: decode "+entryManifest, err)
			}
			manifest = &m
		case entryRun:
			if err := json.Unmarshal(body, &records); err != nil {
				return nil, errors.Corruption("bundle: decode "+entryRun, err)
			}
		case entryWAL:
			runLog = body
		}
	}
	if manifest == nil {
		return nil, errors.Corruption("bundle: missing "+entryManifest, nil)
	}
	if manifest.FormatVersion != FormatVersion {
		return nil, errors.InvalidInput("bundle: unsupported format version")
	}
	if err := validateRunlog(runLog); err != nil {
		return nil, err
	}

	if _, err := runs.Create(dest, manifest.Name); err != nil {
		return nil, err
	}

	for i := 0; i < len(records); i += importBatchSize {
		end := i + importBatchSize
		if end > len(records) {
			end = len(records)
		}
		ctx := mgr.Begin()
		for _, rec := range records[i:end] {
			tag, ok := tagByName[rec.Tag]
			if !ok {
				mgr.Abort(ctx)
				return nil, errors.Corruption("bundle: unknown record tag "+rec.Tag, nil)
			}
			userKey, err := hex.DecodeString(rec.UserKey)
			if err != nil {
				mgr.Abort(ctx)
				return nil, errors.Corruption("bundle: decode user key", err)
			}
			raw, err := hex.DecodeString(rec.Value)
			if err != nil {
				mgr.Abort(ctx)
				return nil, errors.Corruption("bundle: decode value", err)
			}
			v, _, err := value.Decode(raw)
			if err != nil {
				mgr.Abort(ctx)
				return nil, errors.Corruption("bundle: decode value payload", err)
			}
			ctx.Put(key.New(dest, tag, userKey), v, nil)
		}
		if err := mgr.Commit(ctx); err != nil {
			return nil, err
		}
	}

	// Create always starts dest Active; every other status is reachable
	// from Active in one transition (run.canTransition permits Active ->
	// Closed/Failed/Archived directly), so no intermediate hop is needed.
	if status, ok := run.ParseStatus(manifest.Status); ok && status != run.Active {
		switch status {
		case run.Closed:
			_, err = runs.Close(dest)
		case run.Failed:
			_, err = runs.Fail(dest)
		case run.Archived:
			_, err = runs.Archive(dest)
		}
		if err != nil {
			return nil, err
		}
	}

	return manifest, nil
}

// validateRunlog decodes every record in runLog, surfacing a CRC mismatch
// or truncation as a corruption error rather than letting it pass
// silently — Export always produces a clean stream, so a bad one here
// means the bundle was corrupted in transit or at rest.
func validateRunlog(runLog []byte) error {
	off := 0
	for off < len(runLog) {
		if off+4 > len(runLog) {
			return errors.Corruption("bundle: truncated WAL.runlog", nil)
		}
		length := int(binary.LittleEndian.Uint32(runLog[off:]))
		if length <= 0 || off+length > len(runLog) {
			return errors.Corruption("bundle: truncated WAL.runlog record", nil)
		}
		if _, err := wal.Decode(runLog[off : off+length]); err != nil {
			return errors.Corruption("bundle: corrupt WAL.runlog record", err)
		}
		off += length
	}
	return nil
}
