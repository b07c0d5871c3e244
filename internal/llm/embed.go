package llm

import (
	"context"
	"fmt"
	"strings"

	genai "google.golang.org/genai"
)

// maxEmbedChars bounds embedding inputs; longer texts are truncated before
// the request is sent.
const maxEmbedChars = 8000

// GeminiEmbedder produces embedding vectors via the genai embedding models.
type GeminiEmbedder struct {
	cli   *genai.Client
	model string
}

func NewGeminiEmbedder(ctx context.Context, apiKey, model string) (*GeminiEmbedder, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = "text-embedding-004"
	}
	return &GeminiEmbedder{cli: cli, model: model}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, ErrEmptyResponse
	}
	return vectors[0], nil
}

func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		t = truncateForEmbedding(t)
		if t == "" {
			return nil, fmt.Errorf("llm: empty text in embedding batch")
		}
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: t}}})
	}
	if len(contents) == 0 {
		return nil, nil
	}

	resp, err := e.cli.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(contents) {
		return nil, fmt.Errorf("llm: expected %d embeddings, got %d", len(contents), len(resp.Embeddings))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

func truncateForEmbedding(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > maxEmbedChars {
		text = text[:maxEmbedChars]
	}
	return text
}
