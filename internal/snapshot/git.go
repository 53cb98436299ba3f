package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// runGit executes a git command in dir and returns trimmed stdout. Stderr is
// folded into the error.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("git %s: %s", args[0], strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}

// findGitDir resolves the .git directory for a working directory, handling
// worktrees where .git is a file. Empty when the directory is not a repo.
func findGitDir(workDir string) string {
	out, err := runGit(context.Background(), workDir, "rev-parse", "--git-dir")
	if err != nil || out == "" {
		return ""
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(workDir, out)
	}
	return out
}

// currentBranch returns the checked-out branch name, empty outside a repo.
func currentBranch(workDir string) string {
	out, err := runGit(context.Background(), workDir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return ""
	}
	return out
}
