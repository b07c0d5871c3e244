package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"codedocs/internal/docs"
	"codedocs/internal/fileset"
	"codedocs/internal/llm"
	"codedocs/internal/store"
)

func longContent(prefix string) string {
	return prefix + strings.Repeat(" filler", 20)
}

func TestReindexChunkIndexRanges(t *testing.T) {
	ctx := context.Background()
	stores := store.NewMemoryStores()
	embedder := &llm.FakeEmbedder{}
	ix := &Indexer{Embedder: embedder, Chunks: stores.Chunks}

	fs := fileset.FileSet{
		"a.go":     longContent("package a"),
		"b.go":     longContent("package b"),
		"c.go":     longContent("package c"),
		"short.go": "tiny",
	}
	sections := []docs.Section{
		{Type: "purpose", Title: "Purpose and Objectives", Content: longContent("It does things.")},
		{Type: "setup", Title: "Setup and Installation", Content: longContent("Run make.")},
		{Type: "other", Title: "Stub", Content: "too short"},
	}

	total, err := ix.Reindex(ctx, "p1", fs, sections)
	require.NoError(t, err)
	require.Equal(t, 5, total)

	matches, err := stores.Chunks.Nearest(ctx, "p1", []float32{1, 1, 1, 1}, 100)
	require.NoError(t, err)
	require.Len(t, matches, 5)

	var codeIdx, docIdx []int
	for _, m := range matches {
		switch m.Kind {
		case store.ChunkKindCode:
			codeIdx = append(codeIdx, m.ChunkIndex)
		case store.ChunkKindDocumentation:
			docIdx = append(docIdx, m.ChunkIndex)
		}
	}
	require.ElementsMatch(t, []int{0, 1, 2}, codeIdx)
	require.ElementsMatch(t, []int{1000, 1001}, docIdx)
}

func TestReindexEmbedTemplates(t *testing.T) {
	ctx := context.Background()
	stores := store.NewMemoryStores()
	embedder := &llm.FakeEmbedder{}
	ix := &Indexer{Embedder: embedder, Chunks: stores.Chunks}

	fs := fileset.FileSet{"main.go": longContent("package main")}
	sections := []docs.Section{{Type: "purpose", Title: "Purpose", Content: longContent("x")}}

	_, err := ix.Reindex(ctx, "p1", fs, sections)
	require.NoError(t, err)
	require.Len(t, embedder.Texts, 2)
	require.True(t, strings.HasPrefix(embedder.Texts[0], "File: main.go\n\n"))
	require.True(t, strings.HasPrefix(embedder.Texts[1], "Documentation - Purpose\n\n"))
}

func TestReindexReplacesExistingChunks(t *testing.T) {
	ctx := context.Background()
	stores := store.NewMemoryStores()
	ix := &Indexer{Embedder: &llm.FakeEmbedder{}, Chunks: stores.Chunks}

	fs := fileset.FileSet{"a.go": longContent("package a"), "b.go": longContent("package b")}

	_, err := ix.Reindex(ctx, "p1", fs, nil)
	require.NoError(t, err)
	_, err = ix.Reindex(ctx, "p1", fs, nil)
	require.NoError(t, err)

	n, err := stores.Chunks.CountByProject(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestReindexSkipsFailedEmbeds(t *testing.T) {
	ctx := context.Background()
	stores := store.NewMemoryStores()
	ix := &Indexer{Embedder: &llm.FakeEmbedder{Err: context.DeadlineExceeded}, Chunks: stores.Chunks}

	total, err := ix.Reindex(ctx, "p1", fileset.FileSet{"a.go": longContent("x")}, nil)
	require.NoError(t, err)
	require.Zero(t, total)
}
