package analysis

import (
	"context"
	"encoding/json"
	"testing"

	"codedocs/internal/fileset"
	"codedocs/internal/llm"
)

func TestNormalizeCategory(t *testing.T) {
	cases := map[string]string{
		"Best Practices":  "best-practice",
		"perf issue":      "performance",
		"Performance":     "performance",
		"readable code":   "readability",
		"Clarity":         "readability",
		"maintainability": "maintainability",
		"Security Risk":   "security",
		"error handling":  "error-handling",
		"Custom Thing":    "custom-thing",
	}
	for in, want := range cases {
		if got := NormalizeCategory(in); got != want {
			t.Errorf("NormalizeCategory(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeLevelDefaultsToMedium(t *testing.T) {
	for _, in := range []string{"HIGH", "medium", "low"} {
		got := normalizeLevel(in)
		if got != "high" && got != "medium" && got != "low" {
			t.Fatalf("normalizeLevel(%q) = %q", in, got)
		}
	}
	if got := normalizeLevel("severe"); got != "medium" {
		t.Fatalf("normalizeLevel(severe) = %q, want medium", got)
	}
}

func TestParseImprovementNormalizes(t *testing.T) {
	raw := json.RawMessage(`{"category":"Best Practices","title":"t","description":"d","suggestion":"s","impact_level":"Severe","estimated_effort":"LOW"}`)
	imp, ok := parseImprovement(raw)
	if !ok {
		t.Fatal("expected improvement to parse")
	}
	if imp.Category != "best-practice" {
		t.Fatalf("category = %s", imp.Category)
	}
	if imp.ImpactLevel != "medium" {
		t.Fatalf("impact = %s", imp.ImpactLevel)
	}
	if imp.EstimatedEffort != "low" {
		t.Fatalf("effort = %s", imp.EstimatedEffort)
	}
}

func TestParseImprovementDropsIncomplete(t *testing.T) {
	raw := json.RawMessage(`{"category":"performance","title":"t"}`)
	if _, ok := parseImprovement(raw); ok {
		t.Fatal("expected incomplete improvement to be dropped")
	}
}

func TestQualityAnalyzeProject(t *testing.T) {
	resp := `[{"category":"perf","title":"Slow loop","description":"d","suggestion":"s","impact_level":"high","file_path":"a.py"}]`
	scanner := &QualityScanner{Client: &BatchClient{LLM: &llm.FakeClient{Responses: []string{resp}}}}
	fs := fileset.FileSet{"a.py": "for i in range(10): pass"}

	improvements := scanner.AnalyzeProject(context.Background(), fs)
	if len(improvements) != 1 {
		t.Fatalf("got %d improvements", len(improvements))
	}
	if improvements[0].Category != "performance" {
		t.Fatalf("category = %s", improvements[0].Category)
	}
}
