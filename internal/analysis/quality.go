package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"codedocs/internal/fileset"
)

// CodeImprovement is one validated quality suggestion from the scanner.
type CodeImprovement struct {
	Category        string `json:"category"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Suggestion      string `json:"suggestion"`
	ImpactLevel     string `json:"impact_level"`
	FilePath        string `json:"file_path"`
	LineNumber      int    `json:"line_number,omitempty"`
	CodeSnippet     string `json:"code_snippet,omitempty"`
	ImprovedCode    string `json:"improved_code,omitempty"`
	EstimatedEffort string `json:"estimated_effort,omitempty"`
}

// QualityScanner has the same batching shape as the security scanner but
// keeps natural file order and applies vocabulary normalization instead of
// a score.
type QualityScanner struct {
	Client *BatchClient

	// MaxFiles caps how many files are analyzed; zero means unlimited.
	MaxFiles int
}

// AnalyzeProject scans the set in natural order. A failed batch
// contributes zero suggestions; the scan continues with the rest.
func (s *QualityScanner) AnalyzeProject(ctx context.Context, fs fileset.FileSet) []CodeImprovement {
	paths := fs.SortedPaths()
	files := make([]batchFile, 0, len(paths))
	for _, p := range paths {
		files = append(files, batchFile{Path: p, Content: fs[p]})
	}
	if s.MaxFiles > 0 && len(files) > s.MaxFiles {
		files = files[:s.MaxFiles]
	}

	batches := splitBatches(files)
	log.Printf("[quality] analyzing %d files in %d batches", len(files), len(batches))

	var all []CodeImprovement
	for i, batch := range batches {
		log.Printf("[quality] batch %d/%d: %d files", i+1, len(batches), len(batch))
		prompt := qualityBatchPrompt(combineBatch(batch))
		for _, raw := range s.Client.Analyze(ctx, prompt, qualitySystemMessage) {
			imp, ok := parseImprovement(raw)
			if !ok {
				continue
			}
			all = append(all, imp)
		}
		if ctx.Err() != nil {
			break
		}
	}
	log.Printf("[quality] found %d improvement suggestions across %d files", len(all), len(files))
	return all
}

// parseImprovement validates one model element and canonicalizes its
// free-form category/impact/effort strings into the fixed vocabularies.
func parseImprovement(raw json.RawMessage) (CodeImprovement, bool) {
	var imp CodeImprovement
	if err := json.Unmarshal(raw, &imp); err != nil {
		return CodeImprovement{}, false
	}
	if imp.Category == "" || imp.Title == "" || imp.Description == "" ||
		imp.Suggestion == "" || imp.ImpactLevel == "" {
		return CodeImprovement{}, false
	}

	imp.Category = NormalizeCategory(imp.Category)
	imp.ImpactLevel = normalizeLevel(imp.ImpactLevel)
	if imp.EstimatedEffort != "" {
		imp.EstimatedEffort = normalizeLevel(imp.EstimatedEffort)
	}
	return imp, true
}

// NormalizeCategory folds a free-form category label into the fixed set:
// performance, readability, best-practice, maintainability, security,
// error-handling. Unrecognized labels keep their hyphenated form.
func NormalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	c = strings.ReplaceAll(c, " ", "-")
	switch {
	case strings.Contains(c, "best") && strings.Contains(c, "practice"):
		return "best-practice"
	case strings.Contains(c, "performance") || strings.Contains(c, "perf"):
		return "performance"
	case strings.Contains(c, "readability") || strings.Contains(c, "readable") || strings.Contains(c, "clarity"):
		return "readability"
	case strings.Contains(c, "maintain"):
		return "maintainability"
	case strings.Contains(c, "secur"):
		return "security"
	case strings.Contains(c, "error") && strings.Contains(c, "handling"):
		return "error-handling"
	}
	return c
}

// normalizeLevel folds impact/effort values; anything outside
// {high, medium, low} becomes medium.
func normalizeLevel(level string) string {
	l := strings.ToLower(strings.TrimSpace(level))
	switch l {
	case "high", "medium", "low":
		return l
	}
	return "medium"
}

const qualitySystemMessage = "You are a code quality expert. Return only valid JSON array."

func qualityBatchPrompt(combinedContext string) string {
	return fmt.Sprintf(`Analyze these code files for quality improvements:
%s

Find code quality issues in ANY of these files and return a JSON array. For each issue:

{
  "file_path": "exact path from above",
  "category": "performance|readability|best-practice|maintainability",
  "title": "Brief title",
  "description": "What needs improvement",
  "suggestion": "How to improve",
  "impact_level": "high|medium|low"
}

Return ONLY the JSON array, no other text.`, combinedContext)
}
