package embedding

import (
	"fmt"
	"strings"

	"github.com/hyperjump/shiori/internal/config"
	"go.uber.org/zap"
)

// New builds the embedder selected by cfg.Provider. An ONNX model that cannot be
// loaded falls back to the hash embedder with a warning so the tool stays usable
// without a model file. When cfg.CacheSize > 0 the result is wrapped in an LRU cache.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var e Embedder
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderHash:
		e = NewHashEmbedder(cfg.Dimensions)
	case ProviderONNX:
		onnx, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			logger.Warn("onnx embedder unavailable, using hash embedder",
				zap.String("model_path", cfg.ModelPath), zap.Error(err))
			e = NewHashEmbedder(cfg.Dimensions)
		} else {
			e = onnx
		}
	case ProviderOllama:
		e = NewOllamaEmbedder(cfg.OllamaURL, cfg.Model, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	logger.Debug("embedder ready", zap.String("provider", cfg.Provider), zap.Int("dimensions", e.Dimensions()))
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(e, cfg.CacheSize), nil
	}
	return e, nil
}
