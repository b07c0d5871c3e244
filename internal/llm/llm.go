package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the model produced no usable text.
var ErrEmptyResponse = errors.New("llm: empty response from model")

// CompletionRequest is one generation round-trip. The service contract
// guarantees only best-effort natural-language output; callers own all
// prompt construction and response parsing.
type CompletionRequest struct {
	Prompt    string
	System    string
	MaxTokens int
}

// Client generates free-form text completions.
type Client interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Close() error
}

// Embedder converts text into fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// PermanentError marks an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// Middleware wraps a Client with additional behavior.
type Middleware func(next Client) Client

// Chain applies middlewares right to left, so the first listed wraps the
// outermost layer.
func Chain(base Client, mws ...Middleware) Client {
	c := base
	for i := len(mws) - 1; i >= 0; i-- {
		c = mws[i](c)
	}
	return c
}
