package llm

import (
	"context"
	"fmt"

	"github.com/markdave123-py/Studyhall/internal/config"
	"github.com/markdave123-py/Studyhall/internal/core"
	"github.com/markdave123-py/Studyhall/internal/logger"
)

// Embedder is an embedding provider holding resources that need releasing.
type Embedder interface {
	core.EmbeddingProvider
	core.QueryEmbedder
	Close() error
}

// NewEmbedder builds the provider named by EMBED_PROVIDER, rate limited
// when EMBED_RPS is set.
func NewEmbedder(ctx context.Context, cfg *config.Config) (Embedder, error) {
	var (
		emb Embedder
		err error
	)
	switch cfg.EmbedProvider {
	case "gemini":
		emb, err = NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
	case "openai":
		emb = NewOpenAIEmbedder(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	default:
		err = fmt.Errorf("unknown embed provider %q", cfg.EmbedProvider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.EmbedRPS > 0 {
		emb = NewRateLimitedEmbedder(emb, cfg.EmbedRPS, cfg.EmbedConcurrency)
	}
	logger.Infow("embedder ready", "provider", cfg.EmbedProvider, "model", cfg.EmbedModel, "dim", cfg.EmbedDim, "rps", cfg.EmbedRPS)
	return emb, nil
}
