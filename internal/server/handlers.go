package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"codedocs/internal/docs"
	"codedocs/internal/fileset"
	"codedocs/internal/pipeline"
	"codedocs/internal/rag"
	"codedocs/internal/source"
	"codedocs/internal/store"
)

// maxUploadBytes bounds the whole multipart request body.
const maxUploadBytes = 64 << 20

// API holds every dependency the HTTP handlers need.
type API struct {
	Stores    store.Stores
	Runner    *pipeline.Runner
	Answerer  *rag.Answerer
	Snapshots *store.S3Store

	// fetchRepository is injectable in tests.
	fetchRepository func(r *http.Request, repoURL, branch, token string) (fileset.FileSet, string, error)
}

func NewAPI(stores store.Stores, runner *pipeline.Runner, answerer *rag.Answerer, snapshots *store.S3Store) *API {
	a := &API{
		Stores:    stores,
		Runner:    runner,
		Answerer:  answerer,
		Snapshots: snapshots,
	}
	a.fetchRepository = func(r *http.Request, repoURL, branch, token string) (fileset.FileSet, string, error) {
		return source.FetchRepository(r.Context(), repoURL, branch, token)
	}
	return a
}

func NewMux(api *API) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/projects", api.handleCreateUpload)
	mux.HandleFunc("POST /api/projects/github", api.handleCreateGitHub)
	mux.HandleFunc("GET /api/projects", api.handleList)
	mux.HandleFunc("GET /api/projects/{id}", api.handleGet)
	mux.HandleFunc("GET /api/projects/{id}/status", api.handleStatus)
	mux.HandleFunc("GET /api/projects/{id}/documentation", api.handleDocumentation)
	mux.HandleFunc("PUT /api/projects/{id}/documentation", api.handleUpdateDocumentation)
	mux.HandleFunc("GET /api/projects/{id}/security", api.handleSecurity)
	mux.HandleFunc("GET /api/projects/{id}/improvements", api.handleImprovements)
	mux.HandleFunc("POST /api/projects/{id}/chat", api.handleChat)
	mux.HandleFunc("DELETE /api/projects/{id}", api.handleDelete)
	mux.HandleFunc("GET /api/projects/{id}/watch", api.handleWatch)

	return CORS(mux)
}

func newProjectID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	return hex.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *API) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	userID := strings.TrimSpace(r.FormValue("user_id"))

	fs, err := source.FromMultipart(r.MultipartForm.File["files"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.startProject(w, r, store.Project{
		ID:         newProjectID(),
		UserID:     userID,
		Name:       name,
		SourceType: store.SourceUpload,
	}, fs)
}

type githubRequest struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	RepoURL     string `json:"repo_url"`
	Branch      string `json:"branch"`
	AccessToken string `json:"access_token"`
}

func (a *API) handleCreateGitHub(w http.ResponseWriter, r *http.Request) {
	var req githubRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	fs, repoName, err := a.fetchRepository(r, req.RepoURL, req.Branch, req.AccessToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = repoName
	}
	sourceType := store.SourcePublicRepo
	if strings.TrimSpace(req.AccessToken) != "" {
		sourceType = store.SourcePrivateRepo
	}

	a.startProject(w, r, store.Project{
		ID:         newProjectID(),
		UserID:     strings.TrimSpace(req.UserID),
		Name:       name,
		SourceType: sourceType,
	}, fs)
}

func (a *API) startProject(w http.ResponseWriter, r *http.Request, p store.Project, fs fileset.FileSet) {
	created, err := a.Stores.Projects.Create(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create project failed")
		return
	}
	if err := a.Runner.Submit(r.Context(), created.ID, fs); err != nil {
		writeError(w, http.StatusInternalServerError, "start processing failed")
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	projects, err := a.Stores.Projects.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list projects failed")
		return
	}
	if projects == nil {
		projects = []store.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := a.loadProject(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// statusResponse is the polling tuple.
type statusResponse struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	ProgressPercentage int    `json:"progress_percentage"`
	ProgressStage      string `json:"progress_stage"`
	ErrorMessage       string `json:"error_message,omitempty"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := a.loadProject(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		ID:                 p.ID,
		Status:             p.Status,
		ProgressPercentage: p.ProgressPercentage,
		ProgressStage:      p.ProgressStage,
		ErrorMessage:       p.ErrorMessage,
	})
}

func (a *API) handleDocumentation(w http.ResponseWriter, r *http.Request) {
	p, ok := a.loadProject(w, r)
	if !ok {
		return
	}
	rec, err := a.Stores.Documentation.Get(r.Context(), p.ID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "documentation is not ready")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load documentation failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type documentationUpdateRequest struct {
	MarkdownContent string `json:"markdown_content"`
}

// handleUpdateDocumentation applies a manual edit: the stored markdown is
// replaced, sections and word count are recomputed, and the version bumps.
func (a *API) handleUpdateDocumentation(w http.ResponseWriter, r *http.Request) {
	p, ok := a.loadProject(w, r)
	if !ok {
		return
	}

	var req documentationUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.MarkdownContent) == "" {
		writeError(w, http.StatusBadRequest, "markdown_content is required")
		return
	}

	existing, err := a.Stores.Documentation.Get(r.Context(), p.ID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "documentation is not ready")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load documentation failed")
		return
	}

	rec, err := a.Stores.Documentation.Put(r.Context(), store.DocumentationRecord{
		ProjectID:         p.ID,
		MarkdownContent:   req.MarkdownContent,
		Sections:          docs.SplitSections(req.MarkdownContent),
		WordCount:         len(strings.Fields(req.MarkdownContent)),
		GenerationSeconds: existing.GenerationSeconds,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "update documentation failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleSecurity(w http.ResponseWriter, r *http.Request) {
	p, ok := a.loadProject(w, r)
	if !ok {
		return
	}
	findings, err := a.Stores.Findings.ListByProject(r.Context(), p.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load findings failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"security_score":        p.SecurityScore,
		"vulnerabilities_count": p.VulnerabilitiesCount,
		"findings":              findings,
	})
}

func (a *API) handleImprovements(w http.ResponseWriter, r *http.Request) {
	p, ok := a.loadProject(w, r)
	if !ok {
		return
	}
	improvements, err := a.Stores.Improvements.ListByProject(r.Context(), p.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load improvements failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"improvements": improvements})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	p, ok := a.loadProject(w, r)
	if !ok {
		return
	}
	if p.Status != store.StatusCompleted {
		writeError(w, http.StatusConflict, "project processing is not finished")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	answer, err := a.Answerer.Answer(r.Context(), p.ID, req.Message)
	if err != nil {
		log.Printf("project %s: chat: %v", p.ID, err)
		writeError(w, http.StatusInternalServerError, "answer generation failed")
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := a.loadProject(w, r)
	if !ok {
		return
	}
	if err := store.DeleteProjectCascade(r.Context(), a.Stores, p.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "delete project failed")
		return
	}
	if a.Snapshots != nil {
		if _, err := a.Snapshots.DeletePrefix(r.Context(), "projects/"+p.ID+"/"); err != nil {
			log.Printf("project %s: delete snapshots: %v", p.ID, err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (a *API) loadProject(w http.ResponseWriter, r *http.Request) (store.Project, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "project id is required")
		return store.Project{}, false
	}
	p, err := a.Stores.Projects.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "project not found")
		return store.Project{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load project failed")
		return store.Project{}, false
	}
	return p, true
}
