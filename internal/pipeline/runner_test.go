package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"codedocs/internal/fileset"
	"codedocs/internal/llm"
	"codedocs/internal/store"
)

func testFileSet() fileset.FileSet {
	return fileset.FileSet{
		"main.py":    "import flask\napp = flask.Flask(__name__)\napp.run()\n" + strings.Repeat("# filler\n", 10),
		"styles.css": ".a { color: #ff0000; }\n" + strings.Repeat(".pad {}\n", 10),
		"README.md":  "# Demo project\n" + strings.Repeat("words here\n", 10),
	}
}

func createProject(t *testing.T, stores store.Stores) store.Project {
	t.Helper()
	p, err := stores.Projects.Create(context.Background(), store.Project{
		ID:         "p1",
		UserID:     "u1",
		Name:       "demo",
		SourceType: store.SourceUpload,
	})
	require.NoError(t, err)
	return p
}

func TestRunnerEndToEnd(t *testing.T) {
	ctx := context.Background()
	stores := store.NewMemoryStores()
	createProject(t, stores)

	markdown := "# demo\n\n## Purpose and Objectives\n" + strings.Repeat("It analyzes projects. ", 5)
	findings := `[{"severity":"high","category":"Auth","title":"Weak secret","description":"d","recommendation":"r","file_path":"main.py"}]`
	fake := &llm.FakeClient{Responses: []string{markdown, findings, "[]"}}

	r := NewRunner(stores, fake, &llm.FakeEmbedder{}, nil)
	require.NoError(t, r.Submit(ctx, "p1", testFileSet()))
	r.Wait("p1")

	p, err := stores.Projects.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, p.Status)
	require.Equal(t, 100, p.ProgressPercentage)
	require.Equal(t, StageChatReady, p.ProgressStage)
	require.NotNil(t, p.ProcessedAt)
	require.Empty(t, p.ErrorMessage)

	require.Equal(t, 3, p.TotalFiles)
	require.Equal(t, "Python", p.PrimaryLanguage)
	require.NotEmpty(t, p.ColorPalette)

	doc, err := stores.Documentation.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 1, doc.Version)
	require.Contains(t, doc.MarkdownContent, "Project Statistics")
	require.Len(t, doc.Sections, 1)

	require.NotNil(t, p.SecurityScore)
	require.Equal(t, 90, *p.SecurityScore)
	require.Equal(t, 1, p.VulnerabilitiesCount)

	stored, err := stores.Findings.ListByProject(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, stored, 1)

	n, err := stores.Chunks.CountByProject(ctx, "p1")
	require.NoError(t, err)
	require.Greater(t, n, 0)
}

func TestRunnerCriticalFailure(t *testing.T) {
	ctx := context.Background()
	stores := store.NewMemoryStores()
	createProject(t, stores)

	fake := &llm.FakeClient{Err: errors.New("model unavailable")}
	r := NewRunner(stores, fake, &llm.FakeEmbedder{}, nil)
	require.NoError(t, r.Submit(ctx, "p1", testFileSet()))
	r.Wait("p1")

	p, err := stores.Projects.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, store.StatusFailed, p.Status)
	require.Equal(t, 0, p.ProgressPercentage)
	require.NotEmpty(t, p.ErrorMessage)
	require.Nil(t, p.ProcessedAt)

	_, err = stores.Documentation.Get(ctx, "p1")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Structural stats were persisted before the failing stage.
	require.Equal(t, 3, p.TotalFiles)
}

type failingChunkStore struct {
	store.ChunkStore
}

func (f failingChunkStore) DeleteByProject(context.Context, string) (int, error) {
	return 0, errors.New("chunk store down")
}

func TestRunnerDegradedChat(t *testing.T) {
	ctx := context.Background()
	stores := store.NewMemoryStores()
	stores.Chunks = failingChunkStore{ChunkStore: stores.Chunks}
	createProject(t, stores)

	markdown := "## Purpose and Objectives\n" + strings.Repeat("Things. ", 10)
	fake := &llm.FakeClient{Responses: []string{markdown, "[]", "[]"}}
	r := NewRunner(stores, fake, &llm.FakeEmbedder{}, nil)
	require.NoError(t, r.Submit(ctx, "p1", testFileSet()))
	r.Wait("p1")

	p, err := stores.Projects.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, p.Status)
	require.Equal(t, 100, p.ProgressPercentage)
	require.Equal(t, StageChatDown, p.ProgressStage)

	// Documentation survives a broken retrieval index.
	_, err = stores.Documentation.Get(ctx, "p1")
	require.NoError(t, err)
}

func TestSubmitRefusesConcurrentRun(t *testing.T) {
	ctx := context.Background()
	stores := store.NewMemoryStores()
	createProject(t, stores)
	require.NoError(t, stores.Projects.Claim(ctx, "p1"))

	r := NewRunner(stores, &llm.FakeClient{}, &llm.FakeEmbedder{}, nil)
	err := r.Submit(ctx, "p1", testFileSet())
	require.ErrorIs(t, err, store.ErrAlreadyRunning)
}

func TestWaitWithoutRunReturns(t *testing.T) {
	r := NewRunner(store.NewMemoryStores(), &llm.FakeClient{}, &llm.FakeEmbedder{}, nil)
	r.Wait("missing")
}
