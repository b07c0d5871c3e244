package fileset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFilterNormalizesAndDropsDisallowed(t *testing.T) {
	fs := Filter(map[string]string{
		"./src/app.py":   "print('hi')",
		"/lib/util.js":   "module.exports = {}",
		"image.png":      "binary",
		"empty.py":       "   \n\t ",
		"big.py":         strings.Repeat("x", maxFileBytes+1),
		"noextension":    "data",
		"Docs/README.md": "# readme",
	})

	want := []string{"Docs/README.md", "lib/util.js", "src/app.py"}
	got := fs.SortedPaths()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestAllowedExtensionCaseInsensitive(t *testing.T) {
	if !AllowedExtension("Main.PY") {
		t.Fatal("expected .PY to pass")
	}
	if AllowedExtension("binary.exe") {
		t.Fatal("expected .exe to fail")
	}
	if AllowedExtension("Makefile") {
		t.Fatal("expected extension-less path to fail")
	}
}

func TestFromDirSkipsVendorTrees(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "main.go"), "package main")
	mustWrite(t, filepath.Join(root, "node_modules", "dep", "index.js"), "x")
	mustWrite(t, filepath.Join(root, ".git", "config.txt"), "x")
	mustWrite(t, filepath.Join(root, "src", "app.py"), "print('hi')")

	fs, err := FromDir(root)
	if err != nil {
		t.Fatalf("FromDir: %v", err)
	}
	paths := fs.SortedPaths()
	if len(paths) != 2 || paths[0] != "main.go" || paths[1] != "src/app.py" {
		t.Fatalf("unexpected paths: %v", paths)
	}
}

func TestImportantCategorizes(t *testing.T) {
	fs := FileSet{
		"README.md":      "# doc",
		"package.json":   "{}",
		"src/index.js":   "x",
		"src/app_test.py": "x",
		"vite.config.js": "x",
	}
	imp := fs.Important()
	if len(imp.Readme) != 1 || imp.Readme[0] != "README.md" {
		t.Fatalf("readme: %v", imp.Readme)
	}
	if len(imp.Config) != 2 {
		t.Fatalf("config: %v", imp.Config)
	}
	if len(imp.EntryPoints) != 1 || imp.EntryPoints[0] != "src/index.js" {
		t.Fatalf("entry points: %v", imp.EntryPoints)
	}
	if len(imp.Tests) != 1 {
		t.Fatalf("tests: %v", imp.Tests)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
