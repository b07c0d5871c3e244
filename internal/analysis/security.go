package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"codedocs/internal/fileset"
)

// SecurityFinding is one validated vulnerability record from the scanner.
type SecurityFinding struct {
	Severity       string   `json:"severity"`
	Category       string   `json:"category"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
	FilePath       string   `json:"file_path"`
	LineNumber     int      `json:"line_number,omitempty"`
	CodeSnippet    string   `json:"code_snippet,omitempty"`
	CWEID          string   `json:"cwe_id,omitempty"`
	References     []string `json:"references,omitempty"`
}

var validSeverities = map[string]struct{}{
	"critical": {}, "high": {}, "medium": {}, "low": {}, "info": {},
}

var severityPenalties = map[string]int{
	"critical": 20,
	"high":     10,
	"medium":   5,
	"low":      2,
	"info":     1,
}

// backendExtensions flag files likely to contain server-side logic.
var backendExtensions = []string{".py", ".js", ".ts", ".php", ".java", ".go"}

// sensitiveNames flag files likely to handle credentials or data access.
var sensitiveNames = []string{"auth", "login", "password", "database", "db", "sql", "api"}

// SecurityScanner batches files through the generation service and
// aggregates validated findings.
type SecurityScanner struct {
	Client *BatchClient

	// MaxFiles caps how many files are analyzed; zero means unlimited.
	MaxFiles int
}

// AnalyzeProject scans the set in priority order. A failed batch
// contributes zero findings; the scan continues with the rest.
func (s *SecurityScanner) AnalyzeProject(ctx context.Context, fs fileset.FileSet) []SecurityFinding {
	files := prioritizeFiles(fs)
	if s.MaxFiles > 0 && len(files) > s.MaxFiles {
		files = files[:s.MaxFiles]
	}

	batches := splitBatches(files)
	log.Printf("[security] analyzing %d files in %d batches", len(files), len(batches))

	var all []SecurityFinding
	for i, batch := range batches {
		log.Printf("[security] batch %d/%d: %d files", i+1, len(batches), len(batch))
		prompt := securityBatchPrompt(combineBatch(batch))
		for _, raw := range s.Client.Analyze(ctx, prompt, securitySystemMessage) {
			finding, ok := parseSecurityFinding(raw)
			if !ok {
				continue
			}
			all = append(all, finding)
		}
		if ctx.Err() != nil {
			break
		}
	}
	log.Printf("[security] found %d issues across %d files", len(all), len(files))
	return all
}

// Score applies the fixed linear scoring rule: start at 100, subtract a
// per-finding penalty by severity, clamp to [0,100].
func Score(findings []SecurityFinding) int {
	score := 100
	for _, f := range findings {
		penalty, ok := severityPenalties[f.Severity]
		if !ok {
			penalty = 1
		}
		score -= penalty
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// VulnerabilityCount counts findings with critical or high severity.
func VulnerabilityCount(findings []SecurityFinding) int {
	n := 0
	for _, f := range findings {
		if f.Severity == "critical" || f.Severity == "high" {
			n++
		}
	}
	return n
}

// prioritizeFiles orders the set so that backend-language files and files
// with sensitive names come first when a cap truncates the list.
func prioritizeFiles(fs fileset.FileSet) []batchFile {
	paths := fs.SortedPaths()
	files := make([]batchFile, 0, len(paths))
	for _, p := range paths {
		files = append(files, batchFile{Path: p, Content: fs[p]})
	}
	sort.SliceStable(files, func(i, j int) bool {
		return filePriority(files[i].Path) > filePriority(files[j].Path)
	})
	return files
}

func filePriority(path string) int {
	lower := strings.ToLower(path)
	p := 0
	for _, ext := range backendExtensions {
		if strings.Contains(lower, ext) {
			p += 2
			break
		}
	}
	for _, name := range sensitiveNames {
		if strings.Contains(lower, name) {
			p++
			break
		}
	}
	return p
}

// parseSecurityFinding validates one model element. Records missing a
// required field are dropped; an unknown severity is coerced to info.
func parseSecurityFinding(raw json.RawMessage) (SecurityFinding, bool) {
	var f SecurityFinding
	if err := json.Unmarshal(raw, &f); err != nil {
		return SecurityFinding{}, false
	}
	if f.Severity == "" || f.Title == "" || f.Description == "" ||
		f.Recommendation == "" || f.Category == "" {
		return SecurityFinding{}, false
	}
	if _, ok := validSeverities[f.Severity]; !ok {
		f.Severity = "info"
	}
	return f, true
}

const securitySystemMessage = "You are a security expert. Return only valid JSON array."

func securityBatchPrompt(combinedContext string) string {
	return fmt.Sprintf(`Analyze these code files for security vulnerabilities:
%s

Find security issues in ANY of these files and return a JSON array. For each vulnerability:

{
  "file_path": "exact path from above",
  "severity": "critical|high|medium|low|info",
  "category": "SQL Injection|XSS|Auth|etc",
  "title": "Brief title",
  "description": "What's the issue",
  "line_number": line number or null,
  "recommendation": "How to fix"
}

Return ONLY the JSON array, no other text.`, combinedContext)
}
