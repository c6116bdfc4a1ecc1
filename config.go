package spillsort

import (
	"fmt"
	"os"

	"github.com/peak/spillsort/internal/observ"
	"github.com/peak/spillsort/internal/runcodec"
	"github.com/peak/spillsort/internal/runfile"
)

// Config holds the options the core recognizes. A nil Config, or any
// non-positive numeric field within one, falls back to the default for
// that field; the settings that cannot be silently defaulted are a
// caller-supplied SortDirectory that does not exist and a MaxOpenFiles
// above 256, which Validate rejects outright.
type Config struct {
	// MemoryBudgetBytes bounds the size of each of the two Ingest Buffers:
	// C = max(1, memory_budget_bytes/S).
	MemoryBudgetBytes int
	// ReadBufferBytes bounds the per-reader readahead: R = max(1,
	// read_buffer_bytes/S).
	ReadBufferBytes int
	// SortDirectory is where temporary sort files are created. Empty uses
	// the OS default temp directory.
	SortDirectory string
	// Compression selects the block-compression codec wrapping the Pool's
	// per-run I/O. Nil means uncompressed.
	Compression runcodec.Codec
	// MaxOpenFiles overrides the Pool's file ceiling. <=0 uses
	// runfile.DefaultMaxFiles; >256 is rejected by Validate.
	MaxOpenFiles int
	// SortWorkers, if > 1, parallelizes the in-place sort of each Ingest
	// Buffer across that many goroutines before handoff to the flusher.
	SortWorkers int
	// Logger receives the Orchestrator's diagnostic output. Nil discards
	// it.
	Logger observ.Logger
}

const (
	defaultMemoryBudgetBytes = 64 << 20 // 64MiB
	defaultReadBufferBytes   = 1 << 20  // 1MiB
)

// DefaultConfig returns the configuration used for any field a caller
// leaves at its zero value.
func DefaultConfig() *Config {
	return &Config{
		MemoryBudgetBytes: defaultMemoryBudgetBytes,
		ReadBufferBytes:   defaultReadBufferBytes,
		SortDirectory:     "",
		Compression:       runcodec.None,
		MaxOpenFiles:      runfile.DefaultMaxFiles,
		SortWorkers:       1,
		Logger:            observ.Discard,
	}
}

// mergeConfig fills in a copy of c (or a fresh default if c is nil) with
// defaults for every zero-valued field that has one.
func mergeConfig(c *Config) *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}

	merged := *c
	if merged.MemoryBudgetBytes <= 0 {
		merged.MemoryBudgetBytes = d.MemoryBudgetBytes
	}
	if merged.ReadBufferBytes <= 0 {
		merged.ReadBufferBytes = d.ReadBufferBytes
	}
	if merged.Compression == nil {
		merged.Compression = d.Compression
	}
	if merged.MaxOpenFiles <= 0 {
		merged.MaxOpenFiles = d.MaxOpenFiles
	}
	if merged.SortWorkers <= 0 {
		merged.SortWorkers = d.SortWorkers
	}
	if merged.Logger == nil {
		merged.Logger = d.Logger
	}
	return &merged
}

// Validate checks the genuinely fatal configuration mistakes: a
// non-existent or non-directory SortDirectory, and a file ceiling above
// the hard maximum the Pool enforces. Called once at construction, never
// mid-stream (spec: "surfaced at construction, not during streaming").
func (c *Config) Validate() error {
	if c.SortDirectory != "" {
		info, err := os.Stat(c.SortDirectory)
		if err != nil {
			return wrapErr("config.validate", KindConfigError, fmt.Errorf("sort directory %q: %w", c.SortDirectory, err))
		}
		if !info.IsDir() {
			return wrapErr("config.validate", KindConfigError, fmt.Errorf("sort directory %q is not a directory", c.SortDirectory))
		}
	}
	if c.MaxOpenFiles > runfile.DefaultMaxFiles {
		return wrapErr("config.validate", KindConfigError, fmt.Errorf("max open files %d exceeds the pool ceiling of %d", c.MaxOpenFiles, runfile.DefaultMaxFiles))
	}
	return nil
}
