package config

// Default values applied to zero fields.
const (
	DefaultCollectionName   = "documents"
	DefaultPersistDirectory = "./shiori_db"
	DefaultBackend          = "sqlite"
	DefaultMetric           = "cosine"
	DefaultBatchSize        = 100
	DefaultIDs              = "random"
	DefaultChunkSize        = 1000
	DefaultChunkOverlap     = 200
	DefaultProvider         = "hash"
	DefaultDimensions       = 384
	DefaultMaxTokens        = 256
	DefaultNResults         = 5
	DefaultPreviewChars     = 300
	DefaultDebounceMillis   = 400
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Collection.Name == "" {
		cfg.Collection.Name = DefaultCollectionName
	}
	if cfg.Collection.PersistDirectory == "" {
		cfg.Collection.PersistDirectory = DefaultPersistDirectory
	}
	if cfg.Collection.Backend == "" {
		cfg.Collection.Backend = DefaultBackend
	}
	if cfg.Collection.Metric == "" {
		cfg.Collection.Metric = DefaultMetric
	}
	if cfg.Collection.BatchSize == 0 {
		cfg.Collection.BatchSize = DefaultBatchSize
	}
	if cfg.Collection.IDs == "" {
		cfg.Collection.IDs = DefaultIDs
	}
	// Overlap 0 is a valid choice, so only fill it alongside an unset size.
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = DefaultChunkSize
		if cfg.Chunking.ChunkOverlap == 0 {
			cfg.Chunking.ChunkOverlap = DefaultChunkOverlap
		}
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = DefaultProvider
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = DefaultDimensions
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = DefaultMaxTokens
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Query.NResults == 0 {
		cfg.Query.NResults = DefaultNResults
	}
	if cfg.Query.PreviewChars == 0 {
		cfg.Query.PreviewChars = DefaultPreviewChars
	}
	if cfg.Watch.DebounceMillis == 0 {
		cfg.Watch.DebounceMillis = DefaultDebounceMillis
	}
}
