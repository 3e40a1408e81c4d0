package embedding

import (
	"context"
	"testing"
)

func TestEmbeddingCache_evictsLeastRecentlyUsed(t *testing.T) {
	c := NewEmbeddingCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", []float32{3})
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should survive, it was used recently")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestEmbeddingCache_updateExisting(t *testing.T) {
	c := NewEmbeddingCache(2)
	c.Set("a", []float32{1})
	c.Set("a", []float32{9})
	v, ok := c.Get("a")
	if !ok || v[0] != 9 {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

type countingEmbedder struct {
	*HashEmbedder
	calls    int
	batchLen []int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.HashEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchLen = append(c.batchLen, len(texts))
	return c.HashEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_Embed(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}
	e := NewCachedEmbedder(inner, 10)
	ctx := context.Background()
	first, err := e.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	if len(first) != len(second) || first[0] != second[0] {
		t.Error("cached vector differs from the computed one")
	}
	if e.Dimensions() != 16 {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}
}

func TestCachedEmbedder_EmbedBatch_onlyMisses(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}
	e := NewCachedEmbedder(inner, 10)
	ctx := context.Background()
	if _, err := e.Embed(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	out, err := e.EmbedBatch(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("len(out) = %d", len(out))
	}
	for i, v := range out {
		if len(v) != 16 {
			t.Errorf("out[%d] has %d dims", i, len(v))
		}
	}
	if len(inner.batchLen) != 1 || inner.batchLen[0] != 2 {
		t.Errorf("batch sizes = %v, want [2]", inner.batchLen)
	}
	if _, err := e.EmbedBatch(ctx, []string{"a", "c"}); err != nil {
		t.Fatal(err)
	}
	if len(inner.batchLen) != 1 {
		t.Errorf("fully cached batch should not reach the inner embedder, got %v", inner.batchLen)
	}
}
