// Package gateway bridges assembled chunks to a vector collection: batched upserts,
// single-text queries, stats and reset.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/vector"
	"github.com/hyperjump/shiori/pkg/utils"
	"go.uber.org/zap"
)

// DefaultBatchSize bounds the number of chunks sent in one upsert.
const DefaultBatchSize = 100

// Config identifies the collection a Gateway writes to.
type Config struct {
	CollectionName   string
	PersistDirectory string
	Metric           vector.Metric
	BatchSize        int
}

// PartialIngestionError reports that a batch failed after Added chunks were committed.
// Committed batches are not rolled back.
type PartialIngestionError struct {
	Added int
	Total int
	Err   error
}

func (e *PartialIngestionError) Error() string {
	return fmt.Sprintf("partial ingestion: %d of %d chunks added: %v", e.Added, e.Total, e.Err)
}

func (e *PartialIngestionError) Unwrap() error {
	return e.Err
}

// Gateway owns one open collection. It is not safe for concurrent use.
type Gateway struct {
	client     vector.Client
	collection vector.Collection
	cfg        Config
	logger     *zap.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets a logger for batch progress and warnings.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New opens (getting or creating) the configured collection on client.
func New(ctx context.Context, client vector.Client, cfg Config, opts ...Option) (*Gateway, error) {
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("collection name must not be empty")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Metric == "" {
		cfg.Metric = vector.MetricCosine
	}
	g := &Gateway{client: client, cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = utils.OrNop(g.logger)
	col, err := client.GetOrCreateCollection(ctx, cfg.CollectionName, cfg.Metric)
	if err != nil {
		return nil, fmt.Errorf("open collection %q: %w", cfg.CollectionName, err)
	}
	g.collection = col
	g.logger.Debug("gateway ready",
		zap.String("collection", cfg.CollectionName),
		zap.String("metric", string(col.Metric())),
		zap.Int("batch_size", cfg.BatchSize))
	return g, nil
}

// CollectionName returns the name of the open collection.
func (g *Gateway) CollectionName() string {
	return g.cfg.CollectionName
}

// Add upserts chunks in order, one call per batch of BatchSize. It returns the number of
// chunks committed. If a batch fails, earlier batches stay committed and the error is a
// *PartialIngestionError.
func (g *Gateway) Add(ctx context.Context, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		g.logger.Info("no chunks to add", zap.String("collection", g.cfg.CollectionName))
		return 0, nil
	}
	added := 0
	for start := 0; start < len(chunks); start += g.cfg.BatchSize {
		end := min(start+g.cfg.BatchSize, len(chunks))
		batch := chunks[start:end]
		ids := make([]string, len(batch))
		docs := make([]string, len(batch))
		metas := make([]models.Metadata, len(batch))
		for i, ch := range batch {
			ids[i] = ch.AssignedID
			docs[i] = ch.Content
			metas[i] = ch.Metadata()
		}
		if err := g.collection.Upsert(ctx, ids, docs, metas); err != nil {
			g.logger.Error("batch upsert failed",
				zap.Int("batch_start", start), zap.Int("added", added), zap.Int("total", len(chunks)), zap.Error(err))
			return added, &PartialIngestionError{Added: added, Total: len(chunks), Err: err}
		}
		added += len(batch)
		g.logger.Debug("batch upserted", zap.Int("added", added), zap.Int("total", len(chunks)))
	}
	g.logger.Info("chunks added", zap.String("collection", g.cfg.CollectionName), zap.Int("count", added))
	return added, nil
}

// Query forwards a single query text with k = n and returns the raw response.
func (g *Gateway) Query(ctx context.Context, text string, n int) (*vector.QueryResponse, error) {
	resp, err := g.collection.Query(ctx, text, n)
	if err != nil {
		return nil, fmt.Errorf("query collection %q: %w", g.cfg.CollectionName, err)
	}
	return resp, nil
}

// Count returns the number of chunks in the collection.
func (g *Gateway) Count(ctx context.Context) (int, error) {
	n, err := g.collection.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count collection %q: %w", g.cfg.CollectionName, err)
	}
	return n, nil
}

// Stats returns the collection name, chunk count and persist directory.
func (g *Gateway) Stats(ctx context.Context) (models.Stats, error) {
	n, err := g.Count(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	return models.Stats{
		CollectionName:   g.cfg.CollectionName,
		TotalChunks:      n,
		PersistDirectory: g.cfg.PersistDirectory,
	}, nil
}

// Reset deletes the collection and recreates it empty with the metric it had.
func (g *Gateway) Reset(ctx context.Context) error {
	metric := g.collection.Metric()
	if err := g.client.DeleteCollection(ctx, g.cfg.CollectionName); err != nil && !errors.Is(err, vector.ErrCollectionNotFound) {
		return fmt.Errorf("delete collection %q: %w", g.cfg.CollectionName, err)
	}
	col, err := g.client.GetOrCreateCollection(ctx, g.cfg.CollectionName, metric)
	if err != nil {
		return fmt.Errorf("recreate collection %q: %w", g.cfg.CollectionName, err)
	}
	g.collection = col
	g.logger.Info("collection reset", zap.String("collection", g.cfg.CollectionName))
	return nil
}

// ErrDeleteUnsupported is returned by DeleteSource when the backend cannot delete by source.
var ErrDeleteUnsupported = errors.New("collection does not support deleting by source")

// DeleteSource removes every chunk whose source metadata equals source.
func (g *Gateway) DeleteSource(ctx context.Context, source string) (int, error) {
	deleter, ok := g.collection.(vector.SourceDeleter)
	if !ok {
		return 0, ErrDeleteUnsupported
	}
	n, err := deleter.DeleteBySource(ctx, source)
	if err != nil {
		return n, fmt.Errorf("delete source %s: %w", source, err)
	}
	if n > 0 {
		g.logger.Debug("source deleted", zap.String("source", source), zap.Int("removed", n))
	}
	return n, nil
}
