package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"codedocs/internal/analysis"
	"codedocs/internal/analyzer"
	"codedocs/internal/docs"
	"codedocs/internal/fileset"
	"codedocs/internal/llm"
	"codedocs/internal/rag"
	"codedocs/internal/store"
)

// Progress checkpoints and stage labels for the polling tuple.
const (
	StageStructure = "Analyzing code structure..."
	StageColors    = "Analyzing color palette..."
	StageDocs      = "Generating documentation..."
	StageDocsReady = "Documentation ready"
	StageChatReady = "All analysis complete - Chat ready!"
	StageChatDown  = "Documentation ready (chat unavailable)"
)

// maxErrorLen bounds the stored failure message.
const maxErrorLen = 500

// Runner drives the processing pipeline. One goroutine per submitted
// project; a second submission for the same project is refused by the
// store-level claim.
type Runner struct {
	Stores           store.Stores
	LLM              llm.Client
	Embedder         llm.Embedder
	Snapshots        *store.S3Store
	MaxSecurityFiles int

	mu   sync.Mutex
	runs map[string]chan struct{}
}

func NewRunner(stores store.Stores, client llm.Client, embedder llm.Embedder, snapshots *store.S3Store) *Runner {
	return &Runner{
		Stores:    stores,
		LLM:       client,
		Embedder:  embedder,
		Snapshots: snapshots,
		runs:      make(map[string]chan struct{}),
	}
}

// Submit starts processing in the background. Returns ErrAlreadyRunning
// when the project is still being processed by an earlier submission.
func (r *Runner) Submit(ctx context.Context, projectID string, fs fileset.FileSet) error {
	if err := r.Stores.Projects.Claim(ctx, projectID); err != nil {
		return err
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.runs[projectID] = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			r.mu.Lock()
			delete(r.runs, projectID)
			r.mu.Unlock()
		}()
		r.process(context.Background(), projectID, fs)
	}()
	return nil
}

// Wait blocks until the project's in-flight run finishes. Returns
// immediately when nothing is running.
func (r *Runner) Wait(projectID string) {
	r.mu.Lock()
	done := r.runs[projectID]
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

type runState struct {
	projectID string
	fs        fileset.FileSet
	structure analyzer.Structure
	sections  []docs.Section
}

type stage struct {
	name     string
	label    string
	progress int
	critical bool
	fn       func(ctx context.Context, st *runState) error
}

func (r *Runner) process(ctx context.Context, projectID string, fs fileset.FileSet) {
	st := &runState{projectID: projectID, fs: fs}

	stages := []stage{
		{name: "structure", label: StageStructure, progress: 10, critical: true, fn: r.runStructure},
		{name: "colors", label: StageColors, progress: 20, critical: false, fn: r.runColors},
		{name: "documentation", label: StageDocs, progress: 40, critical: true, fn: r.runDocumentation},
	}

	for _, s := range stages {
		if err := r.Stores.Projects.UpdateStatus(ctx, projectID, store.StatusProcessing, s.progress, s.label); err != nil {
			log.Printf("project %s: update status: %v", projectID, err)
		}
		if err := s.fn(ctx, st); err != nil {
			if s.critical {
				r.fail(ctx, projectID, s.name, err)
				return
			}
			log.Printf("project %s: %s stage failed (non-critical): %v", projectID, s.name, err)
		}
	}

	// Checkpoint: documentation is usable now, everything after enriches it.
	if err := r.Stores.Projects.UpdateStatus(ctx, projectID, store.StatusCompleted, 100, StageDocsReady); err != nil {
		log.Printf("project %s: checkpoint: %v", projectID, err)
	}

	r.runBackground(ctx, st)
}

func (r *Runner) fail(ctx context.Context, projectID, stageName string, cause error) {
	msg := fmt.Sprintf("%s: %v", stageName, cause)
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	log.Printf("project %s: pipeline failed: %s", projectID, msg)

	if _, err := r.Stores.Projects.Update(ctx, projectID, func(p *store.Project) {
		p.ErrorMessage = msg
	}); err != nil {
		log.Printf("project %s: record error message: %v", projectID, err)
	}
	if err := r.Stores.Projects.UpdateStatus(ctx, projectID, store.StatusFailed, 0, ""); err != nil {
		log.Printf("project %s: mark failed: %v", projectID, err)
	}
}

func (r *Runner) runStructure(ctx context.Context, st *runState) error {
	st.structure = analyzer.AnalyzeStructure(st.fs)
	_, err := r.Stores.Projects.Update(ctx, st.projectID, func(p *store.Project) {
		p.TotalFiles = st.structure.FileCount
		p.TotalLines = st.structure.TotalLines
		p.PrimaryLanguage = st.structure.PrimaryLanguage
		p.Technologies = st.structure.Technologies
	})
	return err
}

func (r *Runner) runColors(ctx context.Context, st *runState) error {
	palette := analyzer.ExtractColors(st.fs)
	if len(palette.Colors) == 0 {
		return nil
	}
	raw, err := json.Marshal(palette)
	if err != nil {
		return err
	}
	_, err = r.Stores.Projects.Update(ctx, st.projectID, func(p *store.Project) {
		p.ColorPalette = string(raw)
	})
	return err
}

func (r *Runner) runDocumentation(ctx context.Context, st *runState) error {
	project, err := r.Stores.Projects.Get(ctx, st.projectID)
	if err != nil {
		return err
	}

	builder := &docs.Builder{LLM: r.LLM}
	doc, err := builder.Generate(ctx, project.Name, st.fs, st.structure)
	if err != nil {
		return err
	}
	st.sections = doc.Sections

	seconds := int(time.Since(project.CreatedAt).Seconds())
	if seconds < 0 {
		seconds = 0
	}
	_, err = r.Stores.Documentation.Put(ctx, store.DocumentationRecord{
		ProjectID:         st.projectID,
		MarkdownContent:   doc.Markdown,
		Sections:          doc.Sections,
		WordCount:         doc.WordCount,
		GenerationSeconds: seconds,
	})
	if err != nil {
		return err
	}

	r.snapshot(ctx, st.projectID, "documentation.md", []byte(doc.Markdown), "text/markdown")
	return nil
}

// runBackground runs the post-checkpoint enrichment stages. Each stage is
// isolated: a failure is logged and the next stage still runs. Only the
// final reindex outcome changes the stage label.
func (r *Runner) runBackground(ctx context.Context, st *runState) {
	batch := &analysis.BatchClient{LLM: r.LLM}

	scanner := &analysis.SecurityScanner{Client: batch, MaxFiles: r.MaxSecurityFiles}
	findings := scanner.AnalyzeProject(ctx, st.fs)
	if err := r.storeSecurityResults(ctx, st.projectID, findings); err != nil {
		log.Printf("project %s: security scan: %v", st.projectID, err)
	}

	quality := &analysis.QualityScanner{Client: batch}
	improvements := quality.AnalyzeProject(ctx, st.fs)
	if err := r.storeQualityResults(ctx, st.projectID, improvements); err != nil {
		log.Printf("project %s: quality scan: %v", st.projectID, err)
	}

	indexer := &rag.Indexer{Embedder: r.Embedder, Chunks: r.Stores.Chunks}
	label := StageChatReady
	if _, err := indexer.Reindex(ctx, st.projectID, st.fs, st.sections); err != nil {
		log.Printf("project %s: reindex: %v", st.projectID, err)
		label = StageChatDown
	}
	if err := r.Stores.Projects.UpdateStatus(ctx, st.projectID, store.StatusCompleted, 100, label); err != nil {
		log.Printf("project %s: final status: %v", st.projectID, err)
	}
}

func (r *Runner) storeSecurityResults(ctx context.Context, projectID string, findings []analysis.SecurityFinding) error {
	if err := r.Stores.Findings.DeleteByProject(ctx, projectID); err != nil {
		return err
	}
	if len(findings) > 0 {
		if err := r.Stores.Findings.CreateBatch(ctx, projectID, findings); err != nil {
			return err
		}
	}

	score := analysis.Score(findings)
	vulns := analysis.VulnerabilityCount(findings)
	if _, err := r.Stores.Projects.Update(ctx, projectID, func(p *store.Project) {
		p.SecurityScore = &score
		p.VulnerabilitiesCount = vulns
	}); err != nil {
		return err
	}

	if raw, err := json.Marshal(findings); err == nil {
		r.snapshot(ctx, projectID, "security.json", raw, "application/json")
	}
	return nil
}

func (r *Runner) storeQualityResults(ctx context.Context, projectID string, improvements []analysis.CodeImprovement) error {
	if err := r.Stores.Improvements.DeleteByProject(ctx, projectID); err != nil {
		return err
	}
	if len(improvements) > 0 {
		if err := r.Stores.Improvements.CreateBatch(ctx, projectID, improvements); err != nil {
			return err
		}
	}

	if raw, err := json.Marshal(improvements); err == nil {
		r.snapshot(ctx, projectID, "improvements.json", raw, "application/json")
	}
	return nil
}

// snapshot writes a best-effort object copy; failures never fail a stage.
func (r *Runner) snapshot(ctx context.Context, projectID, name string, content []byte, contentType string) {
	if r.Snapshots == nil {
		return
	}
	key := fmt.Sprintf("projects/%s/%s", projectID, name)
	if err := r.Snapshots.Put(ctx, key, content, contentType); err != nil {
		log.Printf("project %s: snapshot %s: %v", projectID, name, err)
	}
}
