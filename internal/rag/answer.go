package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"codedocs/internal/llm"
	"codedocs/internal/store"
)

// topK is how many chunks back one answer.
const topK = 5

// noContextMessage is returned verbatim when retrieval comes back empty.
const noContextMessage = "I don't have enough context about this project to answer your question. " +
	"Please make sure the project has been processed and documentation has been generated."

// Answer is the RAG response: generated text plus human-readable source
// labels for the retrieved chunks.
type Answer struct {
	Message string   `json:"message"`
	Sources []string `json:"sources"`
}

// Answerer serves free-text questions over a project's retrieval index.
type Answerer struct {
	LLM      llm.Client
	Embedder llm.Embedder
	Chunks   store.ChunkStore
}

// Answer embeds the question once, retrieves the nearest chunks, and
// issues one generation call with the retrieved context.
func (a *Answerer) Answer(ctx context.Context, projectID, question string) (Answer, error) {
	queryVector, err := a.Embedder.Embed(ctx, question)
	if err != nil {
		return Answer{}, fmt.Errorf("embed question: %w", err)
	}

	matches, err := a.Chunks.Nearest(ctx, projectID, queryVector, topK)
	if err != nil {
		return Answer{}, fmt.Errorf("similarity query: %w", err)
	}
	if len(matches) == 0 {
		return Answer{Message: noContextMessage, Sources: []string{}}, nil
	}

	var contextParts []string
	seen := make(map[string]struct{})
	var sources []string
	for _, m := range matches {
		contextParts = append(contextParts,
			fmt.Sprintf("--- Content (similarity: %.2f) ---\n%s\n", m.Similarity, m.Content))
		label := sourceLabel(m.Chunk)
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		sources = append(sources, label)
	}
	sort.Strings(sources)

	answer, err := a.LLM.Complete(ctx, llm.CompletionRequest{
		Prompt: questionPrompt(question, strings.Join(contextParts, "\n")),
		System: "You are a helpful AI assistant that answers questions about code. Be accurate and concise.",
	})
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	return Answer{Message: answer, Sources: sources}, nil
}

func sourceLabel(c store.Chunk) string {
	switch c.Kind {
	case store.ChunkKindDocumentation:
		if c.SectionTitle != "" {
			return "Documentation: " + c.SectionTitle
		}
		if c.SectionType != "" {
			return "Documentation: " + c.SectionType
		}
	case store.ChunkKindCode:
		if c.SectionTitle != "" {
			return "File: " + c.SectionTitle
		}
	}
	return ""
}

func questionPrompt(question, context string) string {
	return fmt.Sprintf(`Answer the following question based on the provided context.

Context:
%s

Question: %s

Please provide a clear, detailed answer based solely on the provided context.`, context, question)
}
