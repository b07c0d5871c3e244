package store

import (
	"context"
	"errors"
	"time"

	"codedocs/internal/analysis"
	"codedocs/internal/docs"
)

var (
	// ErrNotFound is returned when the referenced record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrAlreadyRunning is returned by Claim when the project is already
	// being processed by another run.
	ErrAlreadyRunning = errors.New("store: project is already processing")
)

// Project lifecycle states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Project source kinds.
const (
	SourceUpload      = "upload"
	SourcePublicRepo  = "public-repo"
	SourcePrivateRepo = "private-repo"
)

// maxStageLen bounds the stored progress stage label.
const maxStageLen = 200

// Project is the aggregate root: one record per analysis run.
type Project struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	Name                 string     `json:"name"`
	SourceType           string     `json:"source_type"`
	Status               string     `json:"status"`
	ProgressPercentage   int        `json:"progress_percentage"`
	ProgressStage        string     `json:"progress_stage"`
	PrimaryLanguage      string     `json:"primary_language,omitempty"`
	TotalFiles           int        `json:"total_files"`
	TotalLines           int        `json:"total_lines"`
	Technologies         []string   `json:"technologies,omitempty"`
	ColorPalette         string     `json:"color_palette,omitempty"`
	SecurityScore        *int       `json:"security_score,omitempty"`
	VulnerabilitiesCount int        `json:"vulnerabilities_count"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	ProcessedAt          *time.Time `json:"processed_at,omitempty"`
}

// DocumentationRecord is the current documentation version for a project.
type DocumentationRecord struct {
	ProjectID         string         `json:"project_id"`
	MarkdownContent   string         `json:"markdown_content"`
	Sections          []docs.Section `json:"sections"`
	WordCount         int            `json:"word_count"`
	GenerationSeconds int            `json:"generation_time_seconds"`
	Version           int            `json:"version"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Chunk kinds.
const (
	ChunkKindCode          = "code_file"
	ChunkKindDocumentation = "documentation"
)

// Chunk is one embeddable unit of text stored with its vector.
type Chunk struct {
	ProjectID    string    `json:"project_id"`
	Kind         string    `json:"kind"`
	Content      string    `json:"content"`
	Vector       []float32 `json:"-"`
	ChunkIndex   int       `json:"chunk_index"`
	SectionType  string    `json:"section_type,omitempty"`
	SectionTitle string    `json:"section_title,omitempty"`
	TokenCount   int       `json:"token_count"`
	CharCount    int       `json:"char_count"`
}

// ChunkMatch is a retrieval hit with its cosine similarity score.
type ChunkMatch struct {
	Chunk
	Similarity float64 `json:"similarity"`
}

// ProjectStore persists Project records. Status bookkeeping is expressed
// through dedicated operations so the pipeline's invariants (monotonic
// progress, single processed_at, at most one in-flight run) live here.
type ProjectStore interface {
	Create(ctx context.Context, p Project) (Project, error)
	Get(ctx context.Context, projectID string) (Project, error)
	ListByUser(ctx context.Context, userID string) ([]Project, error)
	// Update applies a read-modify-write by primary key.
	Update(ctx context.Context, projectID string, update func(*Project)) (Project, error)
	// UpdateStatus writes the polling tuple. Progress never decreases
	// while the project stays in processing; processed_at is set exactly
	// once, on the transition into completed.
	UpdateStatus(ctx context.Context, projectID, status string, progress int, stage string) error
	// Claim atomically flips the project into processing, refusing when a
	// run is already in flight.
	Claim(ctx context.Context, projectID string) error
	Delete(ctx context.Context, projectID string) error
}

// DocumentationStore keeps one current documentation version per project.
type DocumentationStore interface {
	// Put creates the record at version 1 or bumps the version on update.
	Put(ctx context.Context, rec DocumentationRecord) (DocumentationRecord, error)
	Get(ctx context.Context, projectID string) (DocumentationRecord, error)
}

// FindingStore persists security findings.
type FindingStore interface {
	CreateBatch(ctx context.Context, projectID string, findings []analysis.SecurityFinding) error
	ListByProject(ctx context.Context, projectID string) ([]analysis.SecurityFinding, error)
	DeleteByProject(ctx context.Context, projectID string) error
}

// ImprovementStore persists code quality suggestions.
type ImprovementStore interface {
	CreateBatch(ctx context.Context, projectID string, improvements []analysis.CodeImprovement) error
	ListByProject(ctx context.Context, projectID string) ([]analysis.CodeImprovement, error)
	DeleteByProject(ctx context.Context, projectID string) error
}

// ChunkStore persists embedding chunks and answers similarity queries.
type ChunkStore interface {
	Put(ctx context.Context, c Chunk) error
	DeleteByProject(ctx context.Context, projectID string) (int, error)
	CountByProject(ctx context.Context, projectID string) (int, error)
	// Nearest returns up to k chunks ranked by cosine similarity.
	Nearest(ctx context.Context, projectID string, query []float32, k int) ([]ChunkMatch, error)
}

// Stores bundles every persistence interface the pipeline consumes.
type Stores struct {
	Projects      ProjectStore
	Documentation DocumentationStore
	Findings      FindingStore
	Improvements  ImprovementStore
	Chunks        ChunkStore
}

func truncateStage(stage string) string {
	if len(stage) > maxStageLen {
		return stage[:maxStageLen]
	}
	return stage
}
