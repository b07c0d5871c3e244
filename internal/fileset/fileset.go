package fileset

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSet maps repo-relative, forward-slash paths to full text content.
// It is the input artifact for every analysis stage.
type FileSet map[string]string

// maxFileBytes bounds a single file's contribution to the set.
const maxFileBytes = 1 << 20

// allowedExtensions is the ingestion allow-list. Files outside it are not
// part of a FileSet.
var allowedExtensions = map[string]struct{}{
	".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {},
	".py": {}, ".java": {}, ".cpp": {}, ".c": {}, ".h": {}, ".cs": {},
	".php": {}, ".rb": {}, ".go": {}, ".rs": {}, ".swift": {}, ".kt": {},
	".html": {}, ".css": {}, ".scss": {}, ".sass": {}, ".less": {},
	".json": {}, ".xml": {}, ".yml": {}, ".yaml": {},
	".md": {}, ".txt": {}, ".sh": {}, ".bash": {},
}

// AllowedExtension reports whether the path's extension passes the
// ingestion allow-list. The check is case-insensitive.
func AllowedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	_, ok := allowedExtensions[ext]
	return ok
}

// NormalizePath converts a client-supplied path into the canonical FileSet
// key form: forward slashes, no leading slash or "./" prefix.
func NormalizePath(p string) string {
	p = filepath.ToSlash(strings.TrimSpace(p))
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return p
}

// Filter returns a new FileSet containing only entries that pass the
// extension allow-list, are non-empty after trimming, and fit the per-file
// size cap. Keys are normalized.
func Filter(files map[string]string) FileSet {
	out := make(FileSet, len(files))
	for path, content := range files {
		key := NormalizePath(path)
		if key == "" || !AllowedExtension(key) {
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		if len(content) > maxFileBytes {
			continue
		}
		out[key] = content
	}
	return out
}

var skipDirs = map[string]struct{}{
	".git": {}, ".hg": {}, ".svn": {},
	"node_modules": {}, "vendor": {}, "target": {}, "build": {},
	".next": {}, ".cache": {},
}

// FromDir walks root and builds a filtered FileSet from its files,
// skipping VCS and dependency directories.
func FromDir(root string) (FileSet, error) {
	raw := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if _, skip := skipDirs[filepath.Base(path)]; skip && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !AllowedExtension(rel) {
			return nil
		}
		if fi, err := os.Stat(path); err != nil || fi.Size() > maxFileBytes {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		raw[rel] = string(b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Filter(raw), nil
}

// ImportantFiles categorizes key files for the documentation sampler.
type ImportantFiles struct {
	Readme      []string
	Config      []string
	EntryPoints []string
	Tests       []string
}

var configNames = map[string]struct{}{
	"package.json": {}, "requirements.txt": {}, "setup.py": {},
	"cargo.toml": {}, "pom.xml": {}, "build.gradle": {},
	"composer.json": {}, "go.mod": {},
}

var entryNames = map[string]struct{}{
	"main.py": {}, "index.js": {}, "app.py": {}, "main.go": {},
	"main.rs": {}, "index.ts": {}, "server.js": {}, "app.js": {},
}

// Important identifies README, config, entry-point and test files.
func (fs FileSet) Important() ImportantFiles {
	var imp ImportantFiles
	for _, path := range fs.SortedPaths() {
		name := strings.ToLower(filepath.Base(path))
		if strings.Contains(name, "readme") {
			imp.Readme = append(imp.Readme, path)
		}
		if _, ok := configNames[name]; ok || strings.HasSuffix(name, ".config.js") {
			imp.Config = append(imp.Config, path)
		}
		if _, ok := entryNames[name]; ok {
			imp.EntryPoints = append(imp.EntryPoints, path)
		}
		if strings.Contains(name, "test") {
			imp.Tests = append(imp.Tests, path)
		}
	}
	return imp
}

// SortedPaths returns the set's keys in lexical order, giving every
// consumer a stable encounter order.
func (fs FileSet) SortedPaths() []string {
	paths := make([]string, 0, len(fs))
	for p := range fs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
