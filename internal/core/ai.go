package core

import "context"

// EmbeddingProvider maps text to fixed-dimension vectors. The returned slice
// has one vector per input text, in input order.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryEmbedder embeds a search query into the same space as the document
// chunks. Asymmetric retrieval models encode queries differently.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
