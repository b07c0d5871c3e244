package docs

import (
	"context"
	"fmt"
	"strings"

	"codedocs/internal/analyzer"
	"codedocs/internal/fileset"
	"codedocs/internal/llm"
)

// Documentation is the builder's output: the full markdown plus its parsed
// sections.
type Documentation struct {
	Markdown  string
	Sections  []Section
	WordCount int
}

// Section is one titled slice of the generated markdown.
type Section struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

const (
	maxSampleFiles   = 10
	readmeCharBudget = 2000
	configCharBudget = 1000
	entryCharBudget  = 2000
	fillCharBudget   = 1500
)

// Builder issues the single documentation generation call and splits the
// result into sections.
type Builder struct {
	LLM llm.Client
}

// Generate selects a bounded representative file subset, requests the
// fixed documentation outline, and parses the response.
func (b *Builder) Generate(ctx context.Context, projectName string, fs fileset.FileSet, structure analyzer.Structure) (Documentation, error) {
	samples := selectSamples(fs)

	markdown, err := b.LLM.Complete(ctx, llm.CompletionRequest{
		Prompt:    documentationPrompt(projectName, samples),
		System:    "You are a technical writer. Generate CONCISE documentation by analyzing code. Be brief and direct.",
		MaxTokens: 6000,
	})
	if err != nil {
		return Documentation{}, fmt.Errorf("documentation generation: %w", err)
	}
	if strings.TrimSpace(markdown) == "" {
		return Documentation{}, fmt.Errorf("documentation generation: %w", llm.ErrEmptyResponse)
	}

	sections := SplitSections(markdown)
	markdown = appendStatsFooter(markdown, structure)

	return Documentation{
		Markdown:  markdown,
		Sections:  sections,
		WordCount: len(strings.Fields(markdown)),
	}, nil
}

type sample struct {
	Path    string
	Content string
}

// selectSamples picks up to 10 files: every README, up to 3 config files,
// up to 3 entry points, then fills remaining slots from the set in
// encounter order. Each sample is truncated to its slot's budget.
func selectSamples(fs fileset.FileSet) []sample {
	imp := fs.Important()
	var samples []sample
	taken := make(map[string]struct{})

	add := func(path string, budget int) {
		if _, dup := taken[path]; dup {
			return
		}
		content, ok := fs[path]
		if !ok {
			return
		}
		if len(content) > budget {
			content = content[:budget]
		}
		taken[path] = struct{}{}
		samples = append(samples, sample{Path: path, Content: content})
	}

	for _, p := range imp.Readme {
		add(p, readmeCharBudget)
	}
	for i, p := range imp.Config {
		if i >= 3 {
			break
		}
		add(p, configCharBudget)
	}
	for i, p := range imp.EntryPoints {
		if i >= 3 {
			break
		}
		add(p, entryCharBudget)
	}
	for _, p := range fs.SortedPaths() {
		if len(samples) >= maxSampleFiles {
			break
		}
		add(p, fillCharBudget)
	}
	if len(samples) > maxSampleFiles {
		samples = samples[:maxSampleFiles]
	}
	return samples
}

// sectionTypeByTitle maps outline headings to their categorical type;
// unmapped titles get "other".
var sectionTypeByTitle = map[string]string{
	"purpose and objectives":      "purpose",
	"setup and installation":      "setup",
	"architecture documentation":  "architecture",
	"code documentation":          "code",
	"user guides":                 "user_guide",
	"development documentation":   "development",
	"maintenance information":     "maintenance",
	"additional notes":            "notes",
	"reference materials":         "reference",
}

// SplitSections parses markdown into ordered sections. Every line starting
// with a second-level heading begins a new section; sections whose content
// is blank are dropped.
func SplitSections(markdown string) []Section {
	var sections []Section
	var currentTitle string
	var currentLines []string
	order := 0

	flush := func() {
		if currentTitle == "" {
			return
		}
		content := strings.TrimSpace(strings.Join(currentLines, "\n"))
		if content == "" {
			return
		}
		sections = append(sections, Section{
			Type:    sectionType(currentTitle),
			Title:   currentTitle,
			Content: content,
			Order:   order,
		})
		order++
	}

	for _, line := range strings.Split(markdown, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			currentTitle = strings.TrimSpace(line[3:])
			currentLines = currentLines[:0]
			continue
		}
		if currentTitle != "" {
			currentLines = append(currentLines, line)
		}
	}
	flush()
	return sections
}

func sectionType(title string) string {
	if t, ok := sectionTypeByTitle[strings.ToLower(title)]; ok {
		return t
	}
	return "other"
}

// appendStatsFooter adds the short project statistics block unless the
// generated markdown already carries that heading.
func appendStatsFooter(markdown string, st analyzer.Structure) string {
	if strings.Contains(markdown, "Project Statistics") {
		return markdown
	}
	var b strings.Builder
	b.WriteString(markdown)
	b.WriteString("\n\n---\n\n**Project Statistics:**\n")
	fmt.Fprintf(&b, "- Total Files: %d\n", st.FileCount)
	fmt.Fprintf(&b, "- Total Lines of Code: %d\n", st.TotalLines)
	fmt.Fprintf(&b, "- Primary Language: %s\n", st.PrimaryLanguage)
	if len(st.Technologies) > 0 {
		techs := st.Technologies
		if len(techs) > 5 {
			techs = techs[:5]
		}
		fmt.Fprintf(&b, "- Technologies: %s\n", strings.Join(techs, ", "))
	}
	return b.String()
}

func documentationPrompt(projectName string, samples []sample) string {
	var ctx strings.Builder
	for _, s := range samples {
		fmt.Fprintf(&ctx, "\n\n### File: %s\n```\n%s\n```", s.Path, s.Content)
	}

	return fmt.Sprintf(`Generate concise technical documentation for '%s'.

Code Files:%s

# %s Documentation

## Purpose and Objectives
What does this project do? What problems does it solve? (2-3 sentences)

## Setup and Installation

### Prerequisites and Dependencies
List required tools and libraries (with versions if available).

### Installation Instructions
Step-by-step installation commands.

### Configuration Steps
Environment variables and configuration files needed.

## Architecture Documentation

### System Architecture and Tech Stack
Technologies, frameworks, and languages used.

### Component Relationships
How components interact and project structure.

### Simple Data Flow
How data flows through the system.

## Code Documentation

### API Reference and Endpoints
API endpoints with methods, paths, and descriptions.

### Function/Method Documentation
Key functions and their purpose.

### Usage Examples and Code Samples
Practical usage examples.

## User Guides

### Feature Documentation
Key features and how they work.

### FAQs
Common questions and answers.

## Development Documentation

### Coding Standards and Conventions
Coding style and practices.

### Testing Procedures
How to run and write tests.

### Deployment Processes
Deployment steps and platforms.

## Maintenance Information

### Known Issues and Limitations
Known bugs and limitations.

### Performance Considerations
Performance optimization and bottlenecks.

### Security Considerations
Security measures and best practices.

## Reference Materials

### Glossary of Terms
Technical terms and acronyms.

### External Dependencies
Third-party libraries and services.

---

**Keep it concise! Each section should be 2-5 sentences max. If info isn't in code, write "Not specified in codebase".**`, projectName, ctx.String(), projectName)
}
