package vector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/shiori/internal/embedding"
	"github.com/hyperjump/shiori/internal/models"
)

func TestMemoryCollection_metricSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := embedding.NewHashEmbedder(16)
	client, err := NewMemoryClient(dir, emb, nil)
	if err != nil {
		t.Fatal(err)
	}
	col, err := client.GetOrCreateCollection(ctx, "docs", MetricL2)
	if err != nil {
		t.Fatal(err)
	}
	if err := col.Upsert(ctx, []string{"a"}, []string{"x"}, []models.Metadata{meta("f", "0")}); err != nil {
		t.Fatal(err)
	}

	reopened, _ := NewMemoryClient(dir, emb, nil)
	col, err = reopened.GetOrCreateCollection(ctx, "docs", MetricCosine)
	if err != nil {
		t.Fatal(err)
	}
	if col.Metric() != MetricL2 {
		t.Errorf("metric = %s, want l2 as created", col.Metric())
	}
}

func TestMemoryCollection_rejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	client, _ := NewMemoryClient(dir, embedding.NewHashEmbedder(16), nil)
	col, _ := client.GetOrCreateCollection(ctx, "docs", MetricCosine)
	if err := col.Upsert(ctx, []string{"a"}, []string{"x"}, []models.Metadata{meta("f", "0")}); err != nil {
		t.Fatal(err)
	}
	other, _ := NewMemoryClient(dir, embedding.NewHashEmbedder(32), nil)
	if _, err := other.GetOrCreateCollection(ctx, "docs", MetricCosine); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestMemoryCollection_rejectsCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "docs.vec"), []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}
	client, _ := NewMemoryClient(dir, embedding.NewHashEmbedder(16), nil)
	if _, err := client.GetOrCreateCollection(context.Background(), "docs", MetricCosine); err == nil {
		t.Error("expected error for corrupt snapshot")
	}
}

func TestCollectionFileName(t *testing.T) {
	if got := collectionFileName("documents"); got != "documents" {
		t.Errorf("collectionFileName(documents) = %q", got)
	}
	got := collectionFileName("../escape")
	if got == "../escape" || filepath.Base(got) != got {
		t.Errorf("collectionFileName(../escape) = %q, want a hashed name", got)
	}
}
