package llm

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient returns scripted responses for offline/testing use. Responses
// are consumed in order; when the script is exhausted the last entry
// repeats. An Err short-circuits every call.
type FakeClient struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Calls     []CompletionRequest
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) Complete(_ context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, req)
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Responses) == 0 {
		return "[]", nil
	}
	idx := len(f.Calls) - 1
	if idx >= len(f.Responses) {
		idx = len(f.Responses) - 1
	}
	return f.Responses[idx], nil
}

// FakeEmbedder produces small deterministic vectors derived from the input
// length so similarity ordering is stable in tests.
type FakeEmbedder struct {
	mu    sync.Mutex
	Dim   int
	Err   error
	Texts []string
}

func (f *FakeEmbedder) dim() int {
	if f.Dim <= 0 {
		return 4
	}
	return f.Dim
}

func (f *FakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *FakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("llm: empty text in embedding batch")
		}
		f.Texts = append(f.Texts, t)
		v := make([]float32, f.dim())
		for j := range v {
			v[j] = float32((len(t)+j)%7) + 1
		}
		out[i] = v
	}
	return out, nil
}
