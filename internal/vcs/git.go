package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Git shells out to the git binary inside repoRoot.
type Git struct {
	repoRoot string
}

func NewGit(repoRoot string) *Git {
	return &Git{repoRoot: repoRoot}
}

func (g *Git) Stage(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	args := append([]string{"add", "--"}, paths...)
	if _, err := g.run(ctx, args...); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	return nil
}

// Commit is a no-op when nothing is staged.
func (g *Git) Commit(ctx context.Context, message string) error {
	out, err := g.run(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return fmt.Errorf("git diff failed: %w", err)
	}
	if strings.TrimSpace(string(out)) == "" {
		return nil
	}

	if _, err := g.run(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit failed: %w", err)
	}
	return nil
}

func (g *Git) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.repoRoot

	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%w\n%s", err, strings.TrimSpace(string(out)))
	}
	return out, nil
}
