package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/shiori/internal/splitter"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shiori.yaml")
	content := `
collection:
  name: "notes"
  persist_directory: "/tmp/shiori-test"
chunking:
  chunk_size: 500
  chunk_overlap: 50
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Collection.Name != "notes" || cfg.Collection.PersistDirectory != "/tmp/shiori-test" {
		t.Errorf("unexpected collection config: %+v", cfg.Collection)
	}
	if cfg.Chunking.ChunkSize != 500 || cfg.Chunking.ChunkOverlap != 50 {
		t.Errorf("unexpected chunking config: %+v", cfg.Chunking)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Collection.Backend != DefaultBackend {
		t.Errorf("backend = %q, want default %q", cfg.Collection.Backend, DefaultBackend)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_missingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvCollection, "")
	t.Setenv(EnvPersistDirectory, "")
	t.Setenv(EnvBackend, "")
	t.Setenv(EnvDebug, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Collection.Name != DefaultCollectionName {
		t.Errorf("name = %q", cfg.Collection.Name)
	}
	if cfg.Chunking.ChunkSize != 1000 || cfg.Chunking.ChunkOverlap != 200 {
		t.Errorf("chunking = %+v", cfg.Chunking)
	}
	if cfg.Collection.PersistDirectory != "shiori_db" {
		t.Errorf("persist directory = %q, want shiori_db relative to the working directory", cfg.Collection.PersistDirectory)
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("collection: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shiori.yaml")
	content := `
collection:
  persist_directory: "./data/db"
embedding:
  model_path: "./models/model.onnx"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvPersistDirectory, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "db"); cfg.Collection.PersistDirectory != want {
		t.Errorf("persist_directory = %s, want %s", cfg.Collection.PersistDirectory, want)
	}
	if want := filepath.Join(dir, "models", "model.onnx"); cfg.Embedding.ModelPath != want {
		t.Errorf("model_path = %s, want %s", cfg.Embedding.ModelPath, want)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	t.Setenv(EnvCollection, "from-env")
	t.Setenv(EnvPersistDirectory, "/var/lib/shiori")
	t.Setenv(EnvBackend, "MEMORY")
	t.Setenv(EnvDebug, "true")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Collection.Name != "from-env" {
		t.Errorf("name = %q", cfg.Collection.Name)
	}
	if cfg.Collection.PersistDirectory != "/var/lib/shiori" {
		t.Errorf("persist directory = %q", cfg.Collection.PersistDirectory)
	}
	if cfg.Collection.Backend != "memory" {
		t.Errorf("backend = %q", cfg.Collection.Backend)
	}
	if !cfg.Debug {
		t.Error("debug should be enabled by env")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Collection.BatchSize != 100 {
		t.Errorf("default batch size: got %d", cfg.Collection.BatchSize)
	}
	if cfg.Collection.Metric != "cosine" {
		t.Errorf("default metric: got %s", cfg.Collection.Metric)
	}
	if cfg.Query.NResults != 5 || cfg.Query.PreviewChars != 300 {
		t.Errorf("default query: got %+v", cfg.Query)
	}
	if cfg.Embedding.Provider != "hash" || cfg.Embedding.Dimensions != 384 {
		t.Errorf("default embedding: got %+v", cfg.Embedding)
	}
}

func TestApplyDefaults_keepsExplicitZeroOverlap(t *testing.T) {
	cfg := &Config{Chunking: ChunkingConfig{ChunkSize: 300}}
	ApplyDefaults(cfg)
	if cfg.Chunking.ChunkOverlap != 0 {
		t.Errorf("overlap = %d, want 0", cfg.Chunking.ChunkOverlap)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		ApplyDefaults(cfg)
		return cfg
	}
	if err := Validate(base()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Collection.Backend = "chroma" }},
		{"unknown metric", func(c *Config) { c.Collection.Metric = "dot" }},
		{"zero batch", func(c *Config) { c.Collection.BatchSize = -1 }},
		{"unknown ids", func(c *Config) { c.Collection.IDs = "sequential" }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "openai" }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestValidate_chunkingReturnsConfigError(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Chunking.ChunkOverlap = cfg.Chunking.ChunkSize
	err := Validate(cfg)
	var cfgErr *splitter.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Validate error = %v, want *splitter.ConfigError", err)
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:     ServerConfig{Host: "localhost", Port: 9090},
		Collection: CollectionConfig{Name: "saved", PersistDirectory: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvCollection, "")
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 || loaded.Collection.Name != "saved" {
		t.Errorf("loaded: got %+v", loaded)
	}
}
