// Package vector provides persistent similarity collections behind a narrow
// upsert/query/count capability, with sqlite-vec, in-memory and Bleve backends.
package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/shiori/internal/models"
)

// Metric is the distance function a collection is created with.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
)

// ParseMetric validates a metric name. Empty means cosine.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", MetricCosine:
		return MetricCosine, nil
	case MetricL2:
		return MetricL2, nil
	default:
		return "", fmt.Errorf("unknown metric %q", s)
	}
}

// ErrCollectionNotFound is returned when deleting a collection that does not exist.
var ErrCollectionNotFound = errors.New("collection not found")

// QueryResponse holds the nearest neighbours of a single query, ordered by ascending
// distance. The four slices are parallel.
type QueryResponse struct {
	IDs       []string
	Documents []string
	Metadatas []models.Metadata
	Distances []float64
}

// Len returns the number of hits.
func (r *QueryResponse) Len() int {
	if r == nil {
		return 0
	}
	return len(r.IDs)
}

// Collection is a named, persistent set of (id, document, metadata, embedding) records.
type Collection interface {
	Name() string
	Metric() Metric
	// Upsert inserts the records, replacing any with an existing id. The slices are parallel.
	Upsert(ctx context.Context, ids, documents []string, metadatas []models.Metadata) error
	// Query returns up to k records nearest to text.
	Query(ctx context.Context, text string, k int) (*QueryResponse, error)
	Count(ctx context.Context) (int, error)
}

// SourceDeleter is implemented by collections that can drop every record of one source.
type SourceDeleter interface {
	DeleteBySource(ctx context.Context, source string) (int, error)
}

// Client owns the collections stored under one persist directory.
type Client interface {
	GetOrCreateCollection(ctx context.Context, name string, metric Metric) (Collection, error)
	DeleteCollection(ctx context.Context, name string) error
	Close() error
}

func checkUpsertArgs(ids, documents []string, metadatas []models.Metadata) error {
	if len(ids) != len(documents) || len(ids) != len(metadatas) {
		return fmt.Errorf("ids, documents and metadatas length mismatch: %d/%d/%d", len(ids), len(documents), len(metadatas))
	}
	return nil
}
