package vector

import (
	"encoding/binary"
	"math"

	"github.com/stratadb/strata/internal/memory"
)

// componentSize returns the on-disk width of one vector component for
// dtype.
func componentSize(dtype StorageDtype) uint64 {
	if dtype == Float64 {
		return 8
	}
	return 4
}

// bufferPool is shared across every collection: vector byte buffers are
// all short-lived (packed on write, unpacked on read, then released),
// so one process-wide pool of size-bucketed buffers serves every
// dimension/dtype combination without per-collection bookkeeping.
var bufferPool = memory.NewBufferPool(nil)

// packVector serializes vec into dtype-width little-endian components,
// using a pooled buffer for the common case of repeated same-dimension
// packing (collection inserts, batch search).
func packVector(vec []float64, dtype StorageDtype) []byte {
	size := componentSize(dtype)
	buf := bufferPool.Get(size * uint64(len(vec)))
	for i, f := range vec {
		off := i * int(size)
		if dtype == Float64 {
			binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(f))
		} else {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(f)))
		}
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	bufferPool.Put(buf)
	return out
}

// unpackVector is packVector's inverse.
func unpackVector(data []byte, dtype StorageDtype, dimension int) []float64 {
	size := int(componentSize(dtype))
	out := make([]float64, dimension)
	for i := 0; i < dimension; i++ {
		off := i * size
		if off+size > len(data) {
			break
		}
		if dtype == Float64 {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[off:]))
		} else {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off:])))
		}
	}
	return out
}
