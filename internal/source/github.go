package source

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"codedocs/internal/fileset"
)

// runGitCommand is injectable in tests.
var runGitCommand = func(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(redactArgs(args), " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// FetchRepository shallow-clones a GitHub repository into a temp dir,
// walks it into a filtered FileSet, and removes the clone. A non-empty
// token is embedded in the clone URL for private repositories and never
// appears in errors or logs.
func FetchRepository(ctx context.Context, repoURL, branch, token string) (fileset.FileSet, string, error) {
	cloneURL, repoName, err := NormalizeRepoURL(repoURL)
	if err != nil {
		return nil, "", err
	}
	if token = strings.TrimSpace(token); token != "" {
		cloneURL = strings.Replace(cloneURL, "https://", "https://oauth2:"+token+"@", 1)
	}

	tmpDir, err := os.MkdirTemp("", "codedocs-clone-*")
	if err != nil {
		return nil, "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	args := []string{"clone", "--depth", strconv.Itoa(1)}
	if b := strings.TrimSpace(branch); b != "" {
		args = append(args, "--branch", b, "--single-branch")
	}
	args = append(args, cloneURL, tmpDir)
	if err := runGitCommand(ctx, args...); err != nil {
		return nil, "", fmt.Errorf("clone %s: %w", repoName, err)
	}

	fs, err := fileset.FromDir(tmpDir)
	if err != nil {
		return nil, "", fmt.Errorf("read clone: %w", err)
	}
	return fs, repoName, nil
}

// NormalizeRepoURL accepts https and ssh GitHub URLs, with or without a
// .git suffix or trailing slash, and returns a canonical https clone URL
// plus the repository name.
func NormalizeRepoURL(raw string) (cloneURL, repoName string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("repository url required")
	}

	if strings.HasPrefix(raw, "git@github.com:") {
		repoPath := strings.TrimPrefix(raw, "git@github.com:")
		repoPath = strings.TrimSuffix(repoPath, ".git")
		owner, repo, ok := splitOwnerRepo(repoPath)
		if !ok {
			return "", "", fmt.Errorf("invalid github repository url %q", raw)
		}
		return fmt.Sprintf("https://github.com/%s/%s.git", owner, repo), repo, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid repository url: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(u.Host), "github.com") {
		return "", "", fmt.Errorf("only github.com repositories are supported")
	}
	repoPath := strings.Trim(strings.TrimSuffix(u.Path, ".git"), "/")
	owner, repo, ok := splitOwnerRepo(repoPath)
	if !ok {
		return "", "", fmt.Errorf("invalid github repository url %q", raw)
	}
	return fmt.Sprintf("https://github.com/%s/%s.git", owner, repo), repo, nil
}

func splitOwnerRepo(repoPath string) (owner, repo string, ok bool) {
	parts := strings.Split(strings.Trim(repoPath, "/"), "/")
	if len(parts) < 2 {
		return "", "", false
	}
	owner = strings.TrimSpace(parts[0])
	repo = strings.TrimSpace(parts[1])
	if owner == "" || repo == "" {
		return "", "", false
	}
	return owner, repo, true
}

// redactArgs strips embedded credentials from clone URLs before they can
// reach an error message.
func redactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if u, err := url.Parse(a); err == nil && u.User != nil {
			u.User = url.User("oauth2")
			a = u.String()
		}
		out[i] = a
	}
	return out
}
