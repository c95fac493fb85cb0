// Package config holds Strata's configuration surface, grounded on
// docdb/internal/config/config.go's struct-of-structs shape, extended with
// the spec's durability modes and retention policy and loadable from an
// optional strata.toml (spec.md §6).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DurabilityMode selects the WAL acknowledgment contract (spec.md §4.4).
type DurabilityMode int

const (
	// InMemory buffers records with no fsync; for ephemeral caches/tests.
	InMemory DurabilityMode = iota
	// Strict fsyncs the segment before every CommitTxn is acknowledged.
	Strict
	// Batched group-commits: a background flusher fsyncs on an interval
	// or write-count threshold; shutdown flush is mandatory.
	Batched
	// Async is like Batched but best-effort on shutdown.
	Async
)

func (m DurabilityMode) String() string {
	switch m {
	case InMemory:
		return "in-memory"
	case Strict:
		return "strict"
	case Batched:
		return "batched"
	case Async:
		return "async"
	default:
		return "unknown"
	}
}

func ParseDurabilityMode(s string) (DurabilityMode, error) {
	switch s {
	case "in-memory", "inmemory", "":
		return InMemory, nil
	case "strict":
		return Strict, nil
	case "batched":
		return Batched, nil
	case "async":
		return Async, nil
	default:
		return InMemory, fmt.Errorf("config: unknown durability mode %q", s)
	}
}

// WALConfig controls segment rotation and durability.
type WALConfig struct {
	Dir                 string         `toml:"dir"`
	MaxSegmentSizeMB    uint64         `toml:"max_segment_size_mb"`
	Durability          DurabilityMode `toml:"-"`
	DurabilityName      string         `toml:"durability"`
	FlushInterval       time.Duration  `toml:"flush_interval"`
	MaxBatchSize        int            `toml:"max_batch_size"`
	TrimAfterCheckpoint bool           `toml:"trim_after_checkpoint"`
	KeepSegments        int            `toml:"keep_segments"`
}

// StoreConfig controls the versioned store's sharding and TTL sweep.
type StoreConfig struct {
	NumShards       int           `toml:"num_shards"`
	TTLSweepPeriod  time.Duration `toml:"ttl_sweep_period"`
	ScanCacheSize   int           `toml:"scan_cache_size"`
}

// RetentionConfig controls retention/compaction bookkeeping (spec.md §4.7).
type RetentionConfig struct {
	MaxAge           time.Duration `toml:"max_age"`
	MaxVersionsPerKey int          `toml:"max_versions_per_key"`
	KeepWatermark    uint64        `toml:"keep_watermark"`
	SweepInterval    time.Duration `toml:"sweep_interval"`
}

// EngineConfig controls background worker scheduling.
type EngineConfig struct {
	WorkerCount        int           `toml:"worker_count"`
	CheckpointInterval time.Duration `toml:"checkpoint_interval"`
	CheckpointSizeMB   uint64        `toml:"checkpoint_size_mb"`
	RetryBound         int           `toml:"retry_bound"`
}

// VectorConfig supplies defaults for new vector collections.
type VectorConfig struct {
	DefaultDimension int    `toml:"default_dimension"`
	DefaultMetric    string `toml:"default_metric"`
}

type Config struct {
	DataDir   string          `toml:"data_dir"`
	WAL       WALConfig       `toml:"wal"`
	Store     StoreConfig     `toml:"store"`
	Retention RetentionConfig `toml:"retention"`
	Engine    EngineConfig    `toml:"engine"`
	Vector    VectorConfig    `toml:"vector"`
}

func Default() *Config {
	return &Config{
		DataDir: "./strata-data",
		WAL: WALConfig{
			Dir:                 "./strata-data/wal",
			MaxSegmentSizeMB:    64,
			Durability:          Batched,
			DurabilityName:      "batched",
			FlushInterval:       5 * time.Millisecond,
			MaxBatchSize:        256,
			TrimAfterCheckpoint: true,
			KeepSegments:        2,
		},
		Store: StoreConfig{
			NumShards:      256,
			TTLSweepPeriod: 30 * time.Second,
			ScanCacheSize:  1024,
		},
		Retention: RetentionConfig{
			MaxAge:            0,
			MaxVersionsPerKey: 0,
			KeepWatermark:     0,
			SweepInterval:     time.Minute,
		},
		Engine: EngineConfig{
			WorkerCount:        0,
			CheckpointInterval: 5 * time.Minute,
			CheckpointSizeMB:   64,
			RetryBound:         200,
		},
		Vector: VectorConfig{
			DefaultDimension: 0,
			DefaultMetric:    "cosine",
		},
	}
}

// Load reads strata.toml from path, overlaying it onto Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.WAL.DurabilityName != "" {
		mode, err := ParseDurabilityMode(cfg.WAL.DurabilityName)
		if err != nil {
			return nil, err
		}
		cfg.WAL.Durability = mode
	}
	return cfg, nil
}
