package vector

import (
	"fmt"
	"path/filepath"

	"github.com/hyperjump/shiori/internal/embedding"
	"go.uber.org/zap"
)

// Backend names the storage engine behind a Client.
type Backend string

const (
	// BackendSQLite stores records in SQLite with a sqlite-vec KNN table per collection.
	BackendSQLite Backend = "sqlite"
	// BackendMemory keeps records in memory and snapshots each collection to a file.
	BackendMemory Backend = "memory"
	// BackendBleve ranks records lexically with a Bleve index per collection.
	BackendBleve Backend = "bleve"
)

// SQLiteFileName is the database file created under the persist directory.
const SQLiteFileName = "shiori.db"

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	logger *zap.Logger
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// NewClient opens the client for backend rooted at persistDir. An empty persistDir keeps
// everything in memory. The embedder is used by the vector backends to embed documents
// and query text; Bleve ignores it.
func NewClient(backend string, persistDir string, embedder embedding.Embedder, opts ...Option) (Client, error) {
	o := clientOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	switch Backend(backend) {
	case BackendSQLite, "":
		dbPath := ":memory:"
		if persistDir != "" {
			dbPath = filepath.Join(persistDir, SQLiteFileName)
		}
		return NewSQLiteClient(dbPath, embedder, o.logger)
	case BackendMemory:
		dir := ""
		if persistDir != "" {
			dir = filepath.Join(persistDir, string(BackendMemory))
		}
		return NewMemoryClient(dir, embedder, o.logger)
	case BackendBleve:
		dir := ""
		if persistDir != "" {
			dir = filepath.Join(persistDir, string(BackendBleve))
		}
		return NewBleveClient(dir, o.logger)
	default:
		return nil, fmt.Errorf("unknown backend: %s (supported: sqlite, memory, bleve)", backend)
	}
}
