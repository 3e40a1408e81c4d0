package embedding

import (
	"context"
	"hash/fnv"

	"github.com/hyperjump/shiori/pkg/utils"
)

// DefaultDimensions is used when no dimension is configured.
const DefaultDimensions = 384

// HashEmbedder maps text to a fixed-size vector by feature hashing of word
// unigrams and bigrams. It needs no model, is deterministic, and places texts
// that share vocabulary close together under cosine distance.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hashing embedder. Non-positive dimensions use DefaultDimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the unit-length hashed feature vector of text.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	tokens := Tokens(text)
	if len(tokens) == 0 {
		// Keep the vector non-zero so cosine distance stays defined.
		e.add(vec, text, 1)
	}
	for i, tok := range tokens {
		e.add(vec, tok, 1)
		if i > 0 {
			e.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

func (e *HashEmbedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[sum%uint64(len(vec))] += weight
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HashEmbedder) Close() error {
	return nil
}
