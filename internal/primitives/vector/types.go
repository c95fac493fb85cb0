// Package vector implements Strata's vector store primitive (spec.md
// §4.8): fixed-dimension/metric/dtype collections, monotonically-issued
// never-reused vector IDs, and a volatile ANN index rebuilt at recovery
// from materialized vectors.
//
// New relative to the teacher (docdb has no vector primitive). The data
// model — CollectionId, DistanceMetric, StorageDtype, VectorConfig,
// VectorEntry, VectorId, VectorMatch — is grounded on
// original_source/crates/primitives/src/vector/types.rs's re-exported
// canonical type set, translated from Rust's strata-core shared types
// into Go value types scoped by key.RunId instead of a standalone
// BranchId. Buffer reuse for packed float payloads is grounded on
// docdb/internal/memory/pool.go (see internal/memory's adapted doc
// comment).
package vector

import "github.com/stratadb/strata/internal/value"

// DistanceMetric is the similarity function a collection is fixed to at
// creation; every vector inserted and every query issued against it uses
// the same metric.
type DistanceMetric int

const (
	Cosine DistanceMetric = iota + 1
	Euclidean
	DotProduct
)

func (m DistanceMetric) String() string {
	switch m {
	case Cosine:
		return "cosine"
	case Euclidean:
		return "euclidean"
	case DotProduct:
		return "dot_product"
	default:
		return "unknown"
	}
}

func ParseDistanceMetric(s string) (DistanceMetric, bool) {
	switch s {
	case "cosine":
		return Cosine, true
	case "euclidean":
		return Euclidean, true
	case "dot_product":
		return DotProduct, true
	default:
		return 0, false
	}
}

// StorageDtype is the on-disk component width for a collection's
// vectors. Queries always compute in float64; this only controls how
// many bytes each stored component occupies.
type StorageDtype int

const (
	Float32 StorageDtype = iota + 1
	Float64
)

func (d StorageDtype) String() string {
	switch d {
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	default:
		return "unknown"
	}
}

func ParseStorageDtype(s string) (StorageDtype, bool) {
	switch s {
	case "f32":
		return Float32, true
	case "f64":
		return Float64, true
	default:
		return 0, false
	}
}

// VectorConfig is fixed for a collection's entire lifetime: every insert
// must match Dimension, and changing Metric or Dtype requires a new
// collection.
type VectorConfig struct {
	Dimension int
	Metric    DistanceMetric
	Dtype     StorageDtype
}

// CollectionInfo is a collection's persisted metadata.
type CollectionInfo struct {
	Name   string
	Config VectorConfig
	NextID uint64
}

// VectorEntry is one stored vector with its caller-supplied metadata.
type VectorEntry struct {
	ID       uint64
	Vector   []float64
	Metadata value.Object
}

// VectorMatch is one search result.
type VectorMatch struct {
	ID       uint64
	Score    float64
	Vector   []float64
	Metadata value.Object
}
