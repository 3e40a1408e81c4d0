// Package pipeline composes loading, chunk assembly and the gateway into ingest and
// search operations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hyperjump/shiori/internal/chunker"
	"github.com/hyperjump/shiori/internal/gateway"
	"github.com/hyperjump/shiori/internal/loader"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/pkg/utils"
	"go.uber.org/zap"
)

var (
	// ErrEmptyCollection is returned by Search when the collection holds no chunks.
	ErrEmptyCollection = errors.New("collection is empty")
	// ErrNoDocuments is returned by Ingest when the folder has no loadable documents.
	ErrNoDocuments = errors.New("no documents found")
)

// Pipeline runs ingest and search against one gateway. Calls are serialized so the
// HTTP server and the watcher can share it.
type Pipeline struct {
	loader    *loader.Loader
	assembler *chunker.Assembler
	gateway   *gateway.Gateway
	logger    *zap.Logger
	mu        sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger for ingest progress.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New wires the loader, assembler and gateway together.
func New(ld *loader.Loader, asm *chunker.Assembler, gw *gateway.Gateway, opts ...Option) *Pipeline {
	p := &Pipeline{loader: ld, assembler: asm, gateway: gw}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = utils.OrNop(p.logger)
	return p
}

// IngestOption adjusts a single Ingest call.
type IngestOption func(*ingestOptions)

type ingestOptions struct {
	reset bool
}

// WithReset empties the collection before the new chunks are added. The reset only
// happens once the folder has been loaded and produced chunks.
func WithReset() IngestOption {
	return func(o *ingestOptions) { o.reset = true }
}

// Ingest loads every accepted file under folder, chunks it and adds the chunks.
// It returns the number of chunks added. A missing folder fails with
// loader.ErrFolderNotFound before anything is written.
func (p *Pipeline) Ingest(ctx context.Context, folder string, opts ...IngestOption) (int, error) {
	var o ingestOptions
	for _, opt := range opts {
		opt(&o)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	docs, err := p.loader.Load(ctx, folder)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, fmt.Errorf("%w in %s", ErrNoDocuments, folder)
	}
	chunks := p.assembler.Assemble(docs)
	p.logger.Info("documents chunked", zap.Int("documents", len(docs)), zap.Int("chunks", len(chunks)))
	if o.reset && len(chunks) > 0 {
		if err := p.gateway.Reset(ctx); err != nil {
			return 0, fmt.Errorf("reset before ingest: %w", err)
		}
		p.logger.Info("collection reset", zap.String("collection", p.gateway.CollectionName()))
	}
	return p.gateway.Add(ctx, chunks)
}

// IngestFile replaces the chunks of a single file: chunks previously stored for the
// same source are removed first when the backend supports it.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, err := p.loader.LoadFile(path)
	if err != nil {
		return 0, err
	}
	if _, err := p.gateway.DeleteSource(ctx, doc.Source); err != nil {
		if !errors.Is(err, gateway.ErrDeleteUnsupported) {
			return 0, err
		}
		p.logger.Warn("backend cannot delete by source, old chunks are kept", zap.String("source", doc.Source))
	}
	chunks := p.assembler.Assemble([]models.Document{doc})
	return p.gateway.Add(ctx, chunks)
}

// RemoveFile deletes the chunks stored for path.
func (p *Pipeline) RemoveFile(ctx context.Context, path string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	return p.gateway.DeleteSource(ctx, abs)
}

// Accepts reports whether the loader would ingest path.
func (p *Pipeline) Accepts(path string) bool {
	return p.loader.Accepts(path)
}

// Search returns up to n matches for text, nearest first. An empty collection yields
// ErrEmptyCollection rather than an empty result.
func (p *Pipeline) Search(ctx context.Context, text string, n int) (*models.QueryResult, error) {
	if n <= 0 {
		return nil, fmt.Errorf("n_results must be positive, got %d", n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	count, err := p.gateway.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrEmptyCollection
	}
	resp, err := p.gateway.Query(ctx, text, n)
	if err != nil {
		return nil, err
	}
	result := &models.QueryResult{Query: text, Matches: make([]models.Match, 0, min(n, resp.Len()))}
	for i := 0; i < resp.Len() && len(result.Matches) < n; i++ {
		result.Matches = append(result.Matches, models.Match{
			ID:       resp.IDs[i],
			Content:  resp.Documents[i],
			Metadata: resp.Metadatas[i],
			Distance: resp.Distances[i],
		})
	}
	return result, nil
}

// Stats returns the collection statistics.
func (p *Pipeline) Stats(ctx context.Context) (models.Stats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gateway.Stats(ctx)
}

// Reset empties the collection.
func (p *Pipeline) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gateway.Reset(ctx)
}
