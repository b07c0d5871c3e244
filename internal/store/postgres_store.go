package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"codedocs/internal/analysis"
	"codedocs/internal/docs"
)

// Postgres backs every store interface with one pgx database handle.
type Postgres struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error

	projectCache *lru.Cache[string, Project]
}

func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	cache, err := lru.New[string, Project](1024)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db, projectCache: cache}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// Bundle wires the shared handle into the per-entity store interfaces.
func (p *Postgres) Bundle() Stores {
	return Stores{
		Projects:      &pgProjectStore{p},
		Documentation: &pgDocumentationStore{p},
		Findings:      &pgFindingStore{p},
		Improvements:  &pgImprovementStore{p},
		Chunks:        &pgChunkStore{p},
	}
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	p.schemaOnce.Do(func() {
		_, p.schemaErr = p.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS projects (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL DEFAULT 'Project',
  source_type TEXT NOT NULL DEFAULT 'upload',
  status TEXT NOT NULL DEFAULT 'pending',
  progress_percentage INT NOT NULL DEFAULT 0,
  progress_stage TEXT NOT NULL DEFAULT '',
  primary_language TEXT NOT NULL DEFAULT '',
  total_files INT NOT NULL DEFAULT 0,
  total_lines INT NOT NULL DEFAULT 0,
  technologies TEXT NOT NULL DEFAULT '[]',
  color_palette TEXT NOT NULL DEFAULT '',
  security_score INT,
  vulnerabilities_count INT NOT NULL DEFAULT 0,
  error_message TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  processed_at TIMESTAMP WITH TIME ZONE
);
CREATE INDEX IF NOT EXISTS idx_projects_user_id ON projects (user_id);

CREATE TABLE IF NOT EXISTS documentation (
  project_id TEXT PRIMARY KEY REFERENCES projects (id) ON DELETE CASCADE,
  markdown_content TEXT NOT NULL DEFAULT '',
  sections TEXT NOT NULL DEFAULT '[]',
  word_count INT NOT NULL DEFAULT 0,
  generation_time_seconds INT NOT NULL DEFAULT 0,
  version INT NOT NULL DEFAULT 1,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS security_findings (
  id SERIAL PRIMARY KEY,
  project_id TEXT NOT NULL REFERENCES projects (id) ON DELETE CASCADE,
  severity TEXT NOT NULL,
  category TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  recommendation TEXT NOT NULL,
  file_path TEXT NOT NULL DEFAULT '',
  line_number INT NOT NULL DEFAULT 0,
  code_snippet TEXT NOT NULL DEFAULT '',
  cwe_id TEXT NOT NULL DEFAULT '',
  refs TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_security_findings_project_id ON security_findings (project_id);

CREATE TABLE IF NOT EXISTS code_improvements (
  id SERIAL PRIMARY KEY,
  project_id TEXT NOT NULL REFERENCES projects (id) ON DELETE CASCADE,
  category TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  suggestion TEXT NOT NULL,
  impact_level TEXT NOT NULL,
  estimated_effort TEXT NOT NULL DEFAULT '',
  file_path TEXT NOT NULL DEFAULT '',
  line_number INT NOT NULL DEFAULT 0,
  code_snippet TEXT NOT NULL DEFAULT '',
  improved_code TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_code_improvements_project_id ON code_improvements (project_id);

CREATE TABLE IF NOT EXISTS document_chunks (
  id SERIAL PRIMARY KEY,
  project_id TEXT NOT NULL REFERENCES projects (id) ON DELETE CASCADE,
  kind TEXT NOT NULL DEFAULT 'code_file',
  content TEXT NOT NULL,
  embedding TEXT NOT NULL,
  chunk_index INT NOT NULL,
  section_type TEXT NOT NULL DEFAULT '',
  section_title TEXT NOT NULL DEFAULT '',
  token_count INT NOT NULL DEFAULT 0,
  char_count INT NOT NULL DEFAULT 0,
  UNIQUE (project_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_document_chunks_project_id ON document_chunks (project_id);
`)
	})
	return p.schemaErr
}

const projectColumns = `id, user_id, name, source_type, status, progress_percentage,
progress_stage, primary_language, total_files, total_lines, technologies,
color_palette, security_score, vulnerabilities_count, error_message,
created_at, updated_at, processed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (Project, error) {
	var p Project
	var technologies string
	var score sql.NullInt64
	var processedAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.SourceType, &p.Status, &p.ProgressPercentage,
		&p.ProgressStage, &p.PrimaryLanguage, &p.TotalFiles, &p.TotalLines, &technologies,
		&p.ColorPalette, &score, &p.VulnerabilitiesCount, &p.ErrorMessage,
		&p.CreatedAt, &p.UpdatedAt, &processedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, err
	}
	_ = json.Unmarshal([]byte(technologies), &p.Technologies)
	if score.Valid {
		v := int(score.Int64)
		p.SecurityScore = &v
	}
	if processedAt.Valid {
		t := processedAt.Time
		p.ProcessedAt = &t
	}
	return p, nil
}

type pgProjectStore struct{ p *Postgres }

func (s *pgProjectStore) Create(ctx context.Context, proj Project) (Project, error) {
	if err := s.p.ensureSchema(ctx); err != nil {
		return Project{}, err
	}
	if proj.Status == "" {
		proj.Status = StatusPending
	}
	techs, _ := json.Marshal(proj.Technologies)
	row := s.p.db.QueryRowContext(ctx, `
INSERT INTO projects (id, user_id, name, source_type, status, technologies)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+projectColumns,
		proj.ID, proj.UserID, proj.Name, proj.SourceType, proj.Status, string(techs))
	created, err := scanProject(row)
	if err != nil {
		return Project{}, err
	}
	s.p.projectCache.Remove(proj.ID)
	return created, nil
}

func (s *pgProjectStore) Get(ctx context.Context, projectID string) (Project, error) {
	if p, ok := s.p.projectCache.Get(projectID); ok {
		return p, nil
	}
	if err := s.p.ensureSchema(ctx); err != nil {
		return Project{}, err
	}
	row := s.p.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, projectID)
	p, err := scanProject(row)
	if err != nil {
		return Project{}, err
	}
	s.p.projectCache.Add(projectID, p)
	return p, nil
}

func (s *pgProjectStore) ListByUser(ctx context.Context, userID string) ([]Project, error) {
	if err := s.p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.p.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *pgProjectStore) Update(ctx context.Context, projectID string, update func(*Project)) (Project, error) {
	if err := s.p.ensureSchema(ctx); err != nil {
		return Project{}, err
	}
	tx, err := s.p.db.BeginTx(ctx, nil)
	if err != nil {
		return Project{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, projectID)
	p, err := scanProject(row)
	if err != nil {
		return Project{}, err
	}

	update(&p)
	techs, _ := json.Marshal(p.Technologies)
	var score sql.NullInt64
	if p.SecurityScore != nil {
		score = sql.NullInt64{Int64: int64(*p.SecurityScore), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
UPDATE projects SET
  name = $2, primary_language = $3, total_files = $4, total_lines = $5,
  technologies = $6, color_palette = $7, security_score = $8,
  vulnerabilities_count = $9, error_message = $10, updated_at = NOW()
WHERE id = $1`,
		projectID, p.Name, p.PrimaryLanguage, p.TotalFiles, p.TotalLines,
		string(techs), p.ColorPalette, score, p.VulnerabilitiesCount, p.ErrorMessage)
	if err != nil {
		return Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return Project{}, err
	}
	s.p.projectCache.Remove(projectID)
	return p, nil
}

func (s *pgProjectStore) UpdateStatus(ctx context.Context, projectID, status string, progress int, stage string) error {
	if err := s.p.ensureSchema(ctx); err != nil {
		return err
	}
	res, err := s.p.db.ExecContext(ctx, `
UPDATE projects SET
  status = $2,
  progress_percentage = CASE
    WHEN status = 'processing' AND $2 = 'processing' AND $3 < progress_percentage
      THEN progress_percentage
    ELSE $3
  END,
  progress_stage = $4,
  processed_at = CASE
    WHEN $2 = 'completed' AND processed_at IS NULL THEN NOW()
    ELSE processed_at
  END,
  updated_at = NOW()
WHERE id = $1`,
		projectID, status, progress, truncateStage(stage))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.p.projectCache.Remove(projectID)
	return nil
}

// Claim is the check-and-set that guarantees at most one in-flight
// pipeline run per project.
func (s *pgProjectStore) Claim(ctx context.Context, projectID string) error {
	if err := s.p.ensureSchema(ctx); err != nil {
		return err
	}
	res, err := s.p.db.ExecContext(ctx, `
UPDATE projects SET
  status = 'processing', progress_percentage = 0, progress_stage = '',
  error_message = '', updated_at = NOW()
WHERE id = $1 AND status <> 'processing'`, projectID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 1 {
		s.p.projectCache.Remove(projectID)
		return nil
	}

	var exists bool
	if err := s.p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyRunning
}

func (s *pgProjectStore) Delete(ctx context.Context, projectID string) error {
	if err := s.p.ensureSchema(ctx); err != nil {
		return err
	}
	res, err := s.p.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.p.projectCache.Remove(projectID)
	return nil
}

type pgDocumentationStore struct{ p *Postgres }

func (s *pgDocumentationStore) Put(ctx context.Context, rec DocumentationRecord) (DocumentationRecord, error) {
	if err := s.p.ensureSchema(ctx); err != nil {
		return DocumentationRecord{}, err
	}
	sections, _ := json.Marshal(rec.Sections)
	row := s.p.db.QueryRowContext(ctx, `
INSERT INTO documentation (project_id, markdown_content, sections, word_count, generation_time_seconds)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (project_id)
DO UPDATE SET markdown_content = EXCLUDED.markdown_content,
  sections = EXCLUDED.sections,
  word_count = EXCLUDED.word_count,
  generation_time_seconds = EXCLUDED.generation_time_seconds,
  version = documentation.version + 1,
  updated_at = NOW()
RETURNING version, created_at, updated_at`,
		rec.ProjectID, rec.MarkdownContent, string(sections), rec.WordCount, rec.GenerationSeconds)
	if err := row.Scan(&rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return DocumentationRecord{}, err
	}
	return rec, nil
}

func (s *pgDocumentationStore) Get(ctx context.Context, projectID string) (DocumentationRecord, error) {
	if err := s.p.ensureSchema(ctx); err != nil {
		return DocumentationRecord{}, err
	}
	var rec DocumentationRecord
	var sections string
	err := s.p.db.QueryRowContext(ctx, `
SELECT project_id, markdown_content, sections, word_count, generation_time_seconds,
  version, created_at, updated_at
FROM documentation WHERE project_id = $1`, projectID).Scan(
		&rec.ProjectID, &rec.MarkdownContent, &sections, &rec.WordCount,
		&rec.GenerationSeconds, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DocumentationRecord{}, ErrNotFound
		}
		return DocumentationRecord{}, err
	}
	_ = json.Unmarshal([]byte(sections), &rec.Sections)
	if rec.Sections == nil {
		rec.Sections = []docs.Section{}
	}
	return rec, nil
}

type pgFindingStore struct{ p *Postgres }

func (s *pgFindingStore) CreateBatch(ctx context.Context, projectID string, findings []analysis.SecurityFinding) error {
	if err := s.p.ensureSchema(ctx); err != nil {
		return err
	}
	tx, err := s.p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, f := range findings {
		refs, _ := json.Marshal(f.References)
		_, err := tx.ExecContext(ctx, `
INSERT INTO security_findings (project_id, severity, category, title, description,
  recommendation, file_path, line_number, code_snippet, cwe_id, refs)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			projectID, f.Severity, f.Category, f.Title, f.Description,
			f.Recommendation, f.FilePath, f.LineNumber, f.CodeSnippet, f.CWEID, string(refs))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *pgFindingStore) ListByProject(ctx context.Context, projectID string) ([]analysis.SecurityFinding, error) {
	if err := s.p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.p.db.QueryContext(ctx, `
SELECT severity, category, title, description, recommendation, file_path,
  line_number, code_snippet, cwe_id, refs
FROM security_findings WHERE project_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analysis.SecurityFinding
	for rows.Next() {
		var f analysis.SecurityFinding
		var refs string
		if err := rows.Scan(&f.Severity, &f.Category, &f.Title, &f.Description,
			&f.Recommendation, &f.FilePath, &f.LineNumber, &f.CodeSnippet, &f.CWEID, &refs); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(refs), &f.References)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *pgFindingStore) DeleteByProject(ctx context.Context, projectID string) error {
	if err := s.p.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.p.db.ExecContext(ctx, `DELETE FROM security_findings WHERE project_id = $1`, projectID)
	return err
}

type pgImprovementStore struct{ p *Postgres }

func (s *pgImprovementStore) CreateBatch(ctx context.Context, projectID string, improvements []analysis.CodeImprovement) error {
	if err := s.p.ensureSchema(ctx); err != nil {
		return err
	}
	tx, err := s.p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, imp := range improvements {
		_, err := tx.ExecContext(ctx, `
INSERT INTO code_improvements (project_id, category, title, description, suggestion,
  impact_level, estimated_effort, file_path, line_number, code_snippet, improved_code)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			projectID, imp.Category, imp.Title, imp.Description, imp.Suggestion,
			imp.ImpactLevel, imp.EstimatedEffort, imp.FilePath, imp.LineNumber,
			imp.CodeSnippet, imp.ImprovedCode)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *pgImprovementStore) ListByProject(ctx context.Context, projectID string) ([]analysis.CodeImprovement, error) {
	if err := s.p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.p.db.QueryContext(ctx, `
SELECT category, title, description, suggestion, impact_level, estimated_effort,
  file_path, line_number, code_snippet, improved_code
FROM code_improvements WHERE project_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analysis.CodeImprovement
	for rows.Next() {
		var imp analysis.CodeImprovement
		if err := rows.Scan(&imp.Category, &imp.Title, &imp.Description, &imp.Suggestion,
			&imp.ImpactLevel, &imp.EstimatedEffort, &imp.FilePath, &imp.LineNumber,
			&imp.CodeSnippet, &imp.ImprovedCode); err != nil {
			return nil, err
		}
		out = append(out, imp)
	}
	return out, rows.Err()
}

func (s *pgImprovementStore) DeleteByProject(ctx context.Context, projectID string) error {
	if err := s.p.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.p.db.ExecContext(ctx, `DELETE FROM code_improvements WHERE project_id = $1`, projectID)
	return err
}

type pgChunkStore struct{ p *Postgres }

func (s *pgChunkStore) Put(ctx context.Context, c Chunk) error {
	if err := s.p.ensureSchema(ctx); err != nil {
		return err
	}
	vector, err := json.Marshal(c.Vector)
	if err != nil {
		return err
	}
	_, err = s.p.db.ExecContext(ctx, `
INSERT INTO document_chunks (project_id, kind, content, embedding, chunk_index,
  section_type, section_title, token_count, char_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ProjectID, c.Kind, c.Content, string(vector), c.ChunkIndex,
		c.SectionType, c.SectionTitle, c.TokenCount, c.CharCount)
	return err
}

func (s *pgChunkStore) DeleteByProject(ctx context.Context, projectID string) (int, error) {
	if err := s.p.ensureSchema(ctx); err != nil {
		return 0, err
	}
	res, err := s.p.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *pgChunkStore) CountByProject(ctx context.Context, projectID string) (int, error) {
	if err := s.p.ensureSchema(ctx); err != nil {
		return 0, err
	}
	var n int
	err := s.p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE project_id = $1`, projectID).Scan(&n)
	return n, err
}

// Nearest loads the project's chunks and ranks them in process. Chunk
// counts are bounded per project.
func (s *pgChunkStore) Nearest(ctx context.Context, projectID string, query []float32, k int) ([]ChunkMatch, error) {
	if err := s.p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.p.db.QueryContext(ctx, `
SELECT project_id, kind, content, embedding, chunk_index, section_type,
  section_title, token_count, char_count
FROM document_chunks WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []Chunk
	for rows.Next() {
		var c Chunk
		var embedding string
		if err := rows.Scan(&c.ProjectID, &c.Kind, &c.Content, &embedding, &c.ChunkIndex,
			&c.SectionType, &c.SectionTitle, &c.TokenCount, &c.CharCount); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(embedding), &c.Vector); err != nil {
			continue
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankChunks(candidates, query, k), nil
}
