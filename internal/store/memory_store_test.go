package store

import (
	"context"
	"errors"
	"testing"

	"codedocs/internal/analysis"
)

func newTestProject(t *testing.T, s Stores) Project {
	t.Helper()
	p, err := s.Projects.Create(context.Background(), Project{
		ID:         "p1",
		UserID:     "u1",
		Name:       "demo",
		SourceType: SourceUpload,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return p
}

func TestClaimRefusesSecondRun(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStores()
	newTestProject(t, s)

	if err := s.Projects.Claim(ctx, "p1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := s.Projects.Claim(ctx, "p1"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second claim err = %v, want ErrAlreadyRunning", err)
	}

	// A finished run can be claimed again.
	if err := s.Projects.UpdateStatus(ctx, "p1", StatusCompleted, 100, "done"); err != nil {
		t.Fatal(err)
	}
	if err := s.Projects.Claim(ctx, "p1"); err != nil {
		t.Fatalf("reclaim after completion: %v", err)
	}
}

func TestUpdateStatusMonotonicProgress(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStores()
	newTestProject(t, s)

	if err := s.Projects.Claim(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Projects.UpdateStatus(ctx, "p1", StatusProcessing, 40, "docs"); err != nil {
		t.Fatal(err)
	}
	if err := s.Projects.UpdateStatus(ctx, "p1", StatusProcessing, 10, "late write"); err != nil {
		t.Fatal(err)
	}

	p, err := s.Projects.Get(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.ProgressPercentage != 40 {
		t.Fatalf("progress = %d, want 40", p.ProgressPercentage)
	}
}

func TestUpdateStatusProcessedAtOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStores()
	newTestProject(t, s)

	if err := s.Projects.UpdateStatus(ctx, "p1", StatusCompleted, 100, "ready"); err != nil {
		t.Fatal(err)
	}
	first, _ := s.Projects.Get(ctx, "p1")
	if first.ProcessedAt == nil {
		t.Fatal("processed_at not set on completion")
	}

	if err := s.Projects.UpdateStatus(ctx, "p1", StatusCompleted, 100, "chat ready"); err != nil {
		t.Fatal(err)
	}
	second, _ := s.Projects.Get(ctx, "p1")
	if !second.ProcessedAt.Equal(*first.ProcessedAt) {
		t.Fatal("processed_at changed on second completion write")
	}
}

func TestUpdateStatusTruncatesStage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStores()
	newTestProject(t, s)

	long := make([]byte, maxStageLen+50)
	for i := range long {
		long[i] = 'x'
	}
	if err := s.Projects.UpdateStatus(ctx, "p1", StatusProcessing, 10, string(long)); err != nil {
		t.Fatal(err)
	}
	p, _ := s.Projects.Get(ctx, "p1")
	if len(p.ProgressStage) != maxStageLen {
		t.Fatalf("stage length = %d, want %d", len(p.ProgressStage), maxStageLen)
	}
}

func TestDocumentationVersionBump(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStores()

	rec, err := s.Documentation.Put(ctx, DocumentationRecord{ProjectID: "p1", MarkdownContent: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Version != 1 {
		t.Fatalf("version = %d, want 1", rec.Version)
	}

	rec, err = s.Documentation.Put(ctx, DocumentationRecord{ProjectID: "p1", MarkdownContent: "v2"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Version != 2 {
		t.Fatalf("version = %d, want 2", rec.Version)
	}

	got, err := s.Documentation.Get(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.MarkdownContent != "v2" {
		t.Fatalf("content = %q", got.MarkdownContent)
	}
}

func TestDeleteProjectCascade(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStores()
	newTestProject(t, s)

	if err := s.Findings.CreateBatch(ctx, "p1", []analysis.SecurityFinding{{Severity: "high", Category: "c", Title: "t", Description: "d", Recommendation: "r"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Chunks.Put(ctx, Chunk{ProjectID: "p1", Kind: ChunkKindCode, Content: "x", ChunkIndex: 0}); err != nil {
		t.Fatal(err)
	}

	if err := DeleteProjectCascade(ctx, s, "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Projects.Get(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get err = %v, want ErrNotFound", err)
	}
	if n, _ := s.Chunks.CountByProject(ctx, "p1"); n != 0 {
		t.Fatalf("chunks remaining = %d", n)
	}
	findings, _ := s.Findings.ListByProject(ctx, "p1")
	if len(findings) != 0 {
		t.Fatalf("findings remaining = %d", len(findings))
	}
}

func TestListByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStores()
	if _, err := s.Projects.Create(ctx, Project{ID: "a", UserID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Projects.Create(ctx, Project{ID: "b", UserID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Projects.Create(ctx, Project{ID: "c", UserID: "other"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Projects.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d projects", len(got))
	}
}
