package services

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"texttools/internal/models"
)

// DefaultEmbeddingModel is used when no embedding model is configured.
const DefaultEmbeddingModel = string(openai.SmallEmbedding3)

// OpenAIEmbedder turns texts into vectors with the embeddings endpoint. It shares
// the client of the batch provider it was created from.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// Embedder returns an embedder for model on the same OpenAI client.
func (p *OpenAIBatchProvider) Embedder(model string) *OpenAIEmbedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIEmbedder{client: p.client, model: openai.EmbeddingModel(model)}
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string { return string(e.model) }

// Encode returns one vector per text, in input order.
func (e *OpenAIEmbedder) Encode(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if e.client == nil {
		return nil, models.ErrProviderDisabled
	}
	if len(texts) == 0 {
		return []pgvector.Vector{}, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error generating embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("OpenAI API returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	out := make([]pgvector.Vector, len(texts))
	filled := make([]bool, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || filled[d.Index] {
			return nil, fmt.Errorf("OpenAI API returned unexpected embedding index %d", d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("OpenAI API returned an empty embedding at index %d", d.Index)
		}
		out[d.Index] = pgvector.NewVector(d.Embedding)
		filled[d.Index] = true
	}
	log.WithFields(log.Fields{
		"model":  e.model,
		"texts":  len(texts),
		"tokens": resp.Usage.TotalTokens,
	}).Debug("Generated embeddings")
	return out, nil
}
