package analyzer

import (
	"testing"

	"codedocs/internal/fileset"
)

func TestAnalyzeStructureCounts(t *testing.T) {
	fs := fileset.FileSet{
		"a.py": "line1\nline2\nline3",
		"b.py": "single",
	}
	st := AnalyzeStructure(fs)

	if st.FileCount != 2 {
		t.Fatalf("file count = %d", st.FileCount)
	}
	// Trailing content after the last newline still counts as a line.
	if st.TotalLines != 4 {
		t.Fatalf("total lines = %d, want 4", st.TotalLines)
	}
	if st.FileTypes[".py"] != 2 {
		t.Fatalf("file types = %v", st.FileTypes)
	}
	if st.LargestFile != "a.py" {
		t.Fatalf("largest file = %s", st.LargestFile)
	}
	if st.PrimaryLanguage != "Python" {
		t.Fatalf("primary language = %s", st.PrimaryLanguage)
	}
}

func TestDetectLanguageDominant(t *testing.T) {
	paths := []string{"a.py", "b.py", "c.py", "d.py", "util.js"}
	if got := DetectLanguage(paths); got != "Python" {
		t.Fatalf("got %s, want Python", got)
	}
}

func TestDetectLanguageAmbiguous(t *testing.T) {
	// Runner-up above 70% of the winner reports Multiple.
	paths := []string{"a.py", "b.py", "c.py", "x.js", "y.js", "z.js", "w.js"}
	if got := DetectLanguage(paths); got != "Multiple" {
		t.Fatalf("got %s, want Multiple", got)
	}
}

func TestDetectLanguageDeterministicTie(t *testing.T) {
	// An exact tie is ambiguous and must always resolve the same way.
	paths := []string{"a.go", "b.py"}
	for i := 0; i < 20; i++ {
		if got := DetectLanguage(paths); got != "Multiple" {
			t.Fatalf("iteration %d: got %s, want Multiple", i, got)
		}
	}
}

func TestDetectLanguageUnknown(t *testing.T) {
	if got := DetectLanguage([]string{"readme.md", "notes.txt"}); got != "Unknown" {
		t.Fatalf("got %s, want Unknown", got)
	}
}
