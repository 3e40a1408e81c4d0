// Package config provides configuration loading and structs for shiori.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when no path is given.
const DefaultConfigFile = "shiori.yaml"

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Collection CollectionConfig `yaml:"collection"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Loader     LoaderConfig     `yaml:"loader"`
	Server     ServerConfig     `yaml:"server"`
	Query      QueryConfig      `yaml:"query"`
	Watch      WatchConfig      `yaml:"watch"`
}

// CollectionConfig identifies the persistent collection and how chunks are written to it.
type CollectionConfig struct {
	Name             string `yaml:"name"`
	PersistDirectory string `yaml:"persist_directory"`
	Backend          string `yaml:"backend"` // sqlite, memory or bleve
	Metric           string `yaml:"metric"`
	BatchSize        int    `yaml:"batch_size"`
	IDs              string `yaml:"ids"` // random or deterministic
}

// ChunkingConfig holds splitter settings.
type ChunkingConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Separators   []string `yaml:"separators"`
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // hash, onnx or ollama
	Dimensions int    `yaml:"dimensions"`
	ModelPath  string `yaml:"model_path"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	OllamaURL  string `yaml:"ollama_url"`
	Model      string `yaml:"model"`
}

// LoaderConfig holds the accepted file extensions.
type LoaderConfig struct {
	Extensions []string `yaml:"extensions"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// QueryConfig holds result defaults.
type QueryConfig struct {
	NResults     int `yaml:"n_results"`
	PreviewChars int `yaml:"preview_chars"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	DebounceMillis int   `yaml:"debounce_ms"`
	Recursive      *bool `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, and expands paths. A missing file is not an error: defaults are used.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
			configDir = filepath.Dir(path)
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	cfg.Collection.PersistDirectory = expandPath(cfg.Collection.PersistDirectory, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	return &cfg, nil
}

// LoadDotEnv loads variables from a .env file in the working directory, if any.
// Variables already set in the environment win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// Environment variables that override file values.
const (
	EnvCollection       = "SHIORI_COLLECTION"
	EnvPersistDirectory = "SHIORI_PERSIST_DIRECTORY"
	EnvBackend          = "SHIORI_BACKEND"
	EnvDebug            = "SHIORI_DEBUG"
)

// ApplyEnv overrides cfg with any SHIORI_* variables present in the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvCollection); v != "" {
		cfg.Collection.Name = v
	}
	if v := os.Getenv(EnvPersistDirectory); v != "" {
		cfg.Collection.PersistDirectory = v
	}
	if v := os.Getenv(EnvBackend); v != "" {
		cfg.Collection.Backend = strings.ToLower(v)
	}
	if v := os.Getenv(EnvDebug); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
