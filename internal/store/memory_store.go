package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"codedocs/internal/analysis"
)

// NewMemoryStores returns an in-memory implementation of every store
// interface, used in tests and when no database is configured.
func NewMemoryStores() Stores {
	return Stores{
		Projects:      NewMemoryProjectStore(),
		Documentation: &MemoryDocumentationStore{docs: make(map[string]DocumentationRecord)},
		Findings:      &MemoryFindingStore{findings: make(map[string][]analysis.SecurityFinding)},
		Improvements:  &MemoryImprovementStore{improvements: make(map[string][]analysis.CodeImprovement)},
		Chunks:        &MemoryChunkStore{chunks: make(map[string][]Chunk)},
	}
}

// DeleteProjectCascade removes a project and every record it owns.
// Postgres enforces the same via FK cascade; the explicit deletes keep the
// memory backend equivalent.
func DeleteProjectCascade(ctx context.Context, s Stores, projectID string) error {
	if err := s.Projects.Delete(ctx, projectID); err != nil {
		return err
	}
	_ = s.Findings.DeleteByProject(ctx, projectID)
	_ = s.Improvements.DeleteByProject(ctx, projectID)
	_, _ = s.Chunks.DeleteByProject(ctx, projectID)
	return nil
}

type MemoryProjectStore struct {
	mu       sync.RWMutex
	projects map[string]Project
}

func NewMemoryProjectStore() *MemoryProjectStore {
	return &MemoryProjectStore{projects: make(map[string]Project)}
}

func (m *MemoryProjectStore) Create(_ context.Context, p Project) (Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = StatusPending
	}
	m.projects[p.ID] = p
	return p, nil
}

func (m *MemoryProjectStore) Get(_ context.Context, projectID string) (Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[projectID]
	if !ok {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryProjectStore) ListByUser(_ context.Context, userID string) ([]Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Project
	for _, p := range m.projects {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryProjectStore) Update(_ context.Context, projectID string, update func(*Project)) (Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return Project{}, ErrNotFound
	}
	update(&p)
	p.UpdatedAt = time.Now()
	m.projects[projectID] = p
	return p, nil
}

func (m *MemoryProjectStore) UpdateStatus(_ context.Context, projectID, status string, progress int, stage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return ErrNotFound
	}
	// Progress stays monotonic within a processing run.
	if p.Status == StatusProcessing && status == StatusProcessing && progress < p.ProgressPercentage {
		progress = p.ProgressPercentage
	}
	if status == StatusCompleted && p.ProcessedAt == nil {
		now := time.Now()
		p.ProcessedAt = &now
	}
	p.Status = status
	p.ProgressPercentage = progress
	p.ProgressStage = truncateStage(stage)
	p.UpdatedAt = time.Now()
	m.projects[projectID] = p
	return nil
}

func (m *MemoryProjectStore) Claim(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return ErrNotFound
	}
	if p.Status == StatusProcessing {
		return ErrAlreadyRunning
	}
	p.Status = StatusProcessing
	p.ProgressPercentage = 0
	p.ProgressStage = ""
	p.ErrorMessage = ""
	p.UpdatedAt = time.Now()
	m.projects[projectID] = p
	return nil
}

func (m *MemoryProjectStore) Delete(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[projectID]; !ok {
		return ErrNotFound
	}
	delete(m.projects, projectID)
	return nil
}

type MemoryDocumentationStore struct {
	mu   sync.RWMutex
	docs map[string]DocumentationRecord
}

func (m *MemoryDocumentationStore) Put(_ context.Context, rec DocumentationRecord) (DocumentationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if prev, ok := m.docs[rec.ProjectID]; ok {
		rec.Version = prev.Version + 1
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.Version = 1
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.docs[rec.ProjectID] = rec
	return rec, nil
}

func (m *MemoryDocumentationStore) Get(_ context.Context, projectID string) (DocumentationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.docs[projectID]
	if !ok {
		return DocumentationRecord{}, ErrNotFound
	}
	return rec, nil
}

type MemoryFindingStore struct {
	mu       sync.RWMutex
	findings map[string][]analysis.SecurityFinding
}

func (m *MemoryFindingStore) CreateBatch(_ context.Context, projectID string, findings []analysis.SecurityFinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findings[projectID] = append(m.findings[projectID], findings...)
	return nil
}

func (m *MemoryFindingStore) ListByProject(_ context.Context, projectID string) ([]analysis.SecurityFinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]analysis.SecurityFinding(nil), m.findings[projectID]...), nil
}

func (m *MemoryFindingStore) DeleteByProject(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.findings, projectID)
	return nil
}

type MemoryImprovementStore struct {
	mu           sync.RWMutex
	improvements map[string][]analysis.CodeImprovement
}

func (m *MemoryImprovementStore) CreateBatch(_ context.Context, projectID string, improvements []analysis.CodeImprovement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.improvements[projectID] = append(m.improvements[projectID], improvements...)
	return nil
}

func (m *MemoryImprovementStore) ListByProject(_ context.Context, projectID string) ([]analysis.CodeImprovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]analysis.CodeImprovement(nil), m.improvements[projectID]...), nil
}

func (m *MemoryImprovementStore) DeleteByProject(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.improvements, projectID)
	return nil
}

type MemoryChunkStore struct {
	mu     sync.RWMutex
	chunks map[string][]Chunk
}

func (m *MemoryChunkStore) Put(_ context.Context, c Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[c.ProjectID] = append(m.chunks[c.ProjectID], c)
	return nil
}

func (m *MemoryChunkStore) DeleteByProject(_ context.Context, projectID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.chunks[projectID])
	delete(m.chunks, projectID)
	return n, nil
}

func (m *MemoryChunkStore) CountByProject(_ context.Context, projectID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks[projectID]), nil
}

func (m *MemoryChunkStore) Nearest(_ context.Context, projectID string, query []float32, k int) ([]ChunkMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return rankChunks(m.chunks[projectID], query, k), nil
}
