package config

import (
	"fmt"

	"github.com/hyperjump/shiori/internal/splitter"
)

var (
	validBackends  = map[string]bool{"sqlite": true, "memory": true, "bleve": true}
	validProviders = map[string]bool{"hash": true, "onnx": true, "ollama": true}
	validIDs       = map[string]bool{"random": true, "deterministic": true}
)

// Validate checks cfg for values that would fail later in a less obvious place.
// Chunking errors are reported as *splitter.ConfigError.
func Validate(cfg *Config) error {
	if _, err := splitter.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap); err != nil {
		return err
	}
	if cfg.Collection.Name == "" {
		return fmt.Errorf("collection name must not be empty")
	}
	if !validBackends[cfg.Collection.Backend] {
		return fmt.Errorf("unknown backend %q (want sqlite, memory or bleve)", cfg.Collection.Backend)
	}
	if cfg.Collection.Metric != "cosine" && cfg.Collection.Metric != "l2" {
		return fmt.Errorf("unknown metric %q (want cosine or l2)", cfg.Collection.Metric)
	}
	if cfg.Collection.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", cfg.Collection.BatchSize)
	}
	if !validIDs[cfg.Collection.IDs] {
		return fmt.Errorf("unknown id strategy %q (want random or deterministic)", cfg.Collection.IDs)
	}
	if !validProviders[cfg.Embedding.Provider] {
		return fmt.Errorf("unknown embedding provider %q (want hash, onnx or ollama)", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	return nil
}
