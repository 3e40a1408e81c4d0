package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/pkg/utils"
	"go.uber.org/zap"
)

// BleveClient keeps one Bleve index per collection under dir. Ranking is lexical:
// the reported distance is 1/(1+score), so better matches are still closer to 0.
type BleveClient struct {
	dir         string
	logger      *zap.Logger
	mu          sync.Mutex
	collections map[string]*BleveCollection
}

// NewBleveClient creates a Bleve client. An empty dir keeps indexes in memory.
func NewBleveClient(dir string, logger *zap.Logger) (*BleveClient, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create bleve dir: %w", err)
		}
	}
	return &BleveClient{
		dir:         dir,
		logger:      utils.OrNop(logger),
		collections: make(map[string]*BleveCollection),
	}, nil
}

// bleveDoc is the indexed form of a record.
type bleveDoc struct {
	Content  string `json:"content"`
	Source   string `json:"source"`
	Metadata string `json:"metadata"`
}

func newIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Standard analyzer (lowercase + tokenize, no stemming) for exact word matches.
	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name
	content.Store = true
	docMapping.AddFieldMappingsAt("content", content)

	source := bleve.NewTextFieldMapping()
	source.Analyzer = keyword.Name
	source.Store = true
	docMapping.AddFieldMappingsAt("source", source)

	meta := bleve.NewTextFieldMapping()
	meta.Index = false
	meta.Store = true
	meta.IncludeInAll = false
	docMapping.AddFieldMappingsAt("metadata", meta)

	im.DefaultMapping = docMapping
	return im
}

func (c *BleveClient) path(name string) string {
	if c.dir == "" {
		return ""
	}
	return filepath.Join(c.dir, collectionFileName(name))
}

// GetOrCreateCollection opens or creates the named index. The metric is recorded but
// does not affect lexical ranking.
func (c *BleveClient) GetOrCreateCollection(_ context.Context, name string, metric Metric) (Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.collections[name]; ok {
		return col, nil
	}
	var (
		index bleve.Index
		err   error
	)
	p := c.path(name)
	switch {
	case p == "":
		index, err = bleve.NewMemOnly(newIndexMapping())
	default:
		if _, statErr := os.Stat(p); statErr == nil {
			index, err = bleve.Open(p)
		} else {
			index, err = bleve.New(p, newIndexMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open Bleve index: %w", err)
	}
	if metric == "" {
		metric = MetricCosine
	}
	col := &BleveCollection{name: name, metric: metric, index: index}
	c.collections[name] = col
	c.logger.Debug("bleve collection opened", zap.String("name", name), zap.String("path", p))
	return col, nil
}

// DeleteCollection closes the index and removes its directory.
func (c *BleveClient) DeleteCollection(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	col, open := c.collections[name]
	if open {
		_ = col.index.Close()
		delete(c.collections, name)
	}
	p := c.path(name)
	if p == "" {
		if !open {
			return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		return nil
	}
	if _, err := os.Stat(p); err != nil {
		if open {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("remove bleve index: %w", err)
	}
	return nil
}

// Close closes every open index.
func (c *BleveClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for name, col := range c.collections {
		if err := col.index.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.collections, name)
	}
	return firstErr
}

// BleveCollection is one Bleve-backed collection.
type BleveCollection struct {
	name   string
	metric Metric
	index  bleve.Index
}

// Name returns the collection name.
func (b *BleveCollection) Name() string { return b.name }

// Metric returns the metric the collection was opened with.
func (b *BleveCollection) Metric() Metric { return b.metric }

// Upsert indexes the records in one batch; an existing id is replaced.
func (b *BleveCollection) Upsert(_ context.Context, ids, documents []string, metadatas []models.Metadata) error {
	if err := checkUpsertArgs(ids, documents, metadatas); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for i, id := range ids {
		meta, err := json.Marshal(metadatas[i])
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		doc := bleveDoc{Content: documents[i], Source: metadatas[i][models.MetaSource], Metadata: string(meta)}
		if err := batch.Index(id, doc); err != nil {
			return fmt.Errorf("index %s: %w", id, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// Query runs a match query over content and returns up to k hits.
func (b *BleveCollection) Query(ctx context.Context, text string, k int) (*QueryResponse, error) {
	resp := &QueryResponse{}
	if k <= 0 {
		return resp, nil
	}
	q := bleve.NewMatchQuery(text)
	q.SetField("content")
	req := bleve.NewSearchRequest(q)
	req.Size = k
	req.Fields = []string{"content", "metadata"}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	for _, hit := range results.Hits {
		content, _ := hit.Fields["content"].(string)
		var meta models.Metadata
		if raw, ok := hit.Fields["metadata"].(string); ok && raw != "" {
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		resp.IDs = append(resp.IDs, hit.ID)
		resp.Documents = append(resp.Documents, content)
		resp.Metadatas = append(resp.Metadatas, meta)
		resp.Distances = append(resp.Distances, 1/(1+hit.Score))
	}
	return resp, nil
}

// Count returns the number of indexed records.
func (b *BleveCollection) Count(context.Context) (int, error) {
	n, err := b.index.DocCount()
	return int(n), err
}

// DeleteBySource removes every record whose source equals source.
func (b *BleveCollection) DeleteBySource(ctx context.Context, source string) (int, error) {
	const page = 1000
	removed := 0
	for {
		q := bleve.NewTermQuery(source)
		q.SetField("source")
		req := bleve.NewSearchRequest(q)
		req.Size = page
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return removed, fmt.Errorf("Bleve search failed: %w", err)
		}
		if len(results.Hits) == 0 {
			return removed, nil
		}
		batch := b.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return removed, fmt.Errorf("Bleve batch failed: %w", err)
		}
		removed += len(results.Hits)
	}
}
