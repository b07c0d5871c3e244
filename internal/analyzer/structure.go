package analyzer

import (
	"path/filepath"
	"sort"
	"strings"

	"codedocs/internal/fileset"
)

// Structure holds the results of the pure structural pass over a FileSet.
type Structure struct {
	FileCount       int            `json:"file_count"`
	TotalLines      int            `json:"total_lines"`
	FileTypes       map[string]int `json:"file_types"`
	AvgFileSize     int            `json:"avg_file_size"`
	LargestFile     string         `json:"largest_file"`
	LargestFileSize int            `json:"largest_file_size"`
	PrimaryLanguage string         `json:"primary_language"`
	Technologies    []string       `json:"technologies"`
}

var languageByExt = map[string]string{
	".py":    "Python",
	".js":    "JavaScript",
	".jsx":   "JavaScript",
	".ts":    "TypeScript",
	".tsx":   "TypeScript",
	".java":  "Java",
	".cpp":   "C++",
	".c":     "C",
	".cs":    "C#",
	".php":   "PHP",
	".rb":    "Ruby",
	".go":    "Go",
	".rs":    "Rust",
	".swift": "Swift",
	".kt":    "Kotlin",
}

// AnalyzeStructure computes file/line counts, the extension histogram,
// size stats and the primary language. Pure; no external calls.
func AnalyzeStructure(fs fileset.FileSet) Structure {
	st := Structure{
		FileCount: len(fs),
		FileTypes: make(map[string]int),
	}

	totalSize := 0
	for path, content := range fs {
		st.TotalLines += strings.Count(content, "\n") + 1

		size := len(content)
		totalSize += size
		if size > st.LargestFileSize {
			st.LargestFileSize = size
			st.LargestFile = path
		}

		ext := strings.ToLower(filepath.Ext(path))
		st.FileTypes[ext]++
	}

	if st.FileCount > 0 {
		st.AvgFileSize = totalSize / st.FileCount
	}
	st.PrimaryLanguage = DetectLanguage(fs.SortedPaths())
	st.Technologies = detectTechnologies(fs)
	return st
}

// DetectLanguage infers the dominant language from file extensions. When a
// runner-up exceeds 70% of the winner's count the result is ambiguous and
// "Multiple" is reported.
func DetectLanguage(paths []string) string {
	counts := make(map[string]int)
	for _, p := range paths {
		ext := strings.ToLower(filepath.Ext(p))
		if lang, ok := languageByExt[ext]; ok {
			counts[lang]++
		}
	}
	if len(counts) == 0 {
		return "Unknown"
	}

	best := ""
	bestCount := 0
	for lang, n := range counts {
		if n > bestCount || (n == bestCount && lang < best) {
			best = lang
			bestCount = n
		}
	}
	for lang, n := range counts {
		if lang == best {
			continue
		}
		if float64(n) > float64(bestCount)*0.7 {
			return "Multiple"
		}
	}
	return best
}

var technologyMarkers = []struct {
	file string
	tech string
}{
	{"package.json", "Node.js"},
	{"go.mod", "Go"},
	{"requirements.txt", "Python"},
	{"setup.py", "Python"},
	{"cargo.toml", "Rust"},
	{"pom.xml", "Maven"},
	{"build.gradle", "Gradle"},
	{"composer.json", "PHP"},
	{"dockerfile", "Docker"},
	{"docker-compose.yml", "Docker"},
	{"tsconfig.json", "TypeScript"},
}

func detectTechnologies(fs fileset.FileSet) []string {
	names := make(map[string]struct{}, len(fs))
	for path := range fs {
		names[strings.ToLower(filepath.Base(path))] = struct{}{}
	}

	seen := make(map[string]struct{})
	var techs []string
	for _, m := range technologyMarkers {
		if _, ok := names[m.file]; !ok {
			continue
		}
		if _, dup := seen[m.tech]; dup {
			continue
		}
		seen[m.tech] = struct{}{}
		techs = append(techs, m.tech)
	}
	sort.Strings(techs)
	return techs
}
