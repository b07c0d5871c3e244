package rag

import (
	"context"
	"fmt"
	"log"
	"strings"

	"codedocs/internal/docs"
	"codedocs/internal/fileset"
	"codedocs/internal/llm"
	"codedocs/internal/store"
)

// minChunkChars filters out files and sections too short to be worth
// embedding.
const minChunkChars = 50

// docChunkIndexBase keeps documentation chunk indices disjoint from code
// chunk indices.
const docChunkIndexBase = 1000

// Indexer builds the retrieval index: one chunk per code file and one per
// documentation section.
type Indexer struct {
	Embedder llm.Embedder
	Chunks   store.ChunkStore
}

// Reindex deletes every existing chunk for the project and rebuilds the
// index from scratch. Always a full rebuild; it runs once per pipeline
// run and concurrent reindexing of one project is prevented upstream.
func (ix *Indexer) Reindex(ctx context.Context, projectID string, fs fileset.FileSet, sections []docs.Section) (int, error) {
	if _, err := ix.Chunks.DeleteByProject(ctx, projectID); err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}

	codeCount := ix.indexCodeFiles(ctx, projectID, fs)
	docCount := ix.indexDocumentation(ctx, projectID, sections)

	total := codeCount + docCount
	log.Printf("reindexed project %s: %d chunks created", projectID, total)
	return total, nil
}

func (ix *Indexer) indexCodeFiles(ctx context.Context, projectID string, fs fileset.FileSet) int {
	count := 0
	chunkIndex := 0
	for _, path := range fs.SortedPaths() {
		content := fs[path]
		if len(content) < minChunkChars {
			continue
		}

		text := fmt.Sprintf("File: %s\n\n%s", path, content)
		vector, err := ix.Embedder.Embed(ctx, text)
		if err != nil {
			log.Printf("error indexing file %s: %v", path, err)
			continue
		}

		err = ix.Chunks.Put(ctx, store.Chunk{
			ProjectID:    projectID,
			Kind:         store.ChunkKindCode,
			Content:      text,
			Vector:       vector,
			ChunkIndex:   chunkIndex,
			SectionTitle: path,
			TokenCount:   len(strings.Fields(text)),
			CharCount:    len(text),
		})
		if err != nil {
			log.Printf("error storing chunk for %s: %v", path, err)
			continue
		}
		chunkIndex++
		count++
	}
	return count
}

func (ix *Indexer) indexDocumentation(ctx context.Context, projectID string, sections []docs.Section) int {
	count := 0
	chunkIndex := docChunkIndexBase
	for _, sec := range sections {
		if len(sec.Content) < minChunkChars {
			continue
		}

		text := fmt.Sprintf("Documentation - %s\n\n%s", sec.Title, sec.Content)
		vector, err := ix.Embedder.Embed(ctx, text)
		if err != nil {
			log.Printf("error indexing section %q: %v", sec.Title, err)
			continue
		}

		err = ix.Chunks.Put(ctx, store.Chunk{
			ProjectID:    projectID,
			Kind:         store.ChunkKindDocumentation,
			Content:      text,
			Vector:       vector,
			ChunkIndex:   chunkIndex,
			SectionType:  sec.Type,
			SectionTitle: sec.Title,
			TokenCount:   len(strings.Fields(text)),
			CharCount:    len(text),
		})
		if err != nil {
			log.Printf("error storing chunk for section %q: %v", sec.Title, err)
			continue
		}
		chunkIndex++
		count++
	}
	return count
}
