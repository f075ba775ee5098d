// Package git wraps the git CLI for the clone-branch-commit-push cycle of a bounty.
package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Git implements Operations using the git CLI.
type Git struct {
	// gitPath is the path to the git executable
	gitPath string
	// env is appended to every command's environment
	env []string
}

// NewGit creates a new Git instance.
// It verifies that git is available on the system.
func NewGit(ctx context.Context, env ...string) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	// Verify git works
	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	return &Git{gitPath: gitPath, env: env}, nil
}

// run executes git with args and returns trimmed combined output.
// The output is folded into the error so callers see what git complained about.
func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.gitPath, args...)
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, g.env...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[firstVerb(args)], err, strings.TrimSpace(out.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

// firstVerb skips "-C <dir>" so errors name the subcommand
func firstVerb(args []string) int {
	if len(args) > 2 && args[0] == "-C" {
		return 2
	}
	return 0
}

// Clone makes a shallow single-branch clone of url into dir.
// An empty branch clones the remote's default branch.
func (g *Git) Clone(ctx context.Context, url, dir, branch string) error {
	args := []string{"clone", "--depth", "1", "--single-branch"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, "--", url, dir)
	_, err := g.run(ctx, args...)
	return err
}

// CurrentBranch returns the checked-out branch name.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	return g.run(ctx, "-C", repoPath, "rev-parse", "--abbrev-ref", "HEAD")
}

// CreateBranch creates and checks out a new branch at HEAD.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) CreateBranch(ctx context.Context, repoPath, branch string) error {
	_, err := g.run(ctx, "-C", repoPath, "checkout", "-b", branch)
	return err
}

// HasUncommittedChanges checks if there are uncommitted changes.
// SECURITY: repoPath must be a validated, trusted path. This function
// does not perform path validation or sandboxing.
func (g *Git) HasUncommittedChanges(ctx context.Context, repoPath string) (bool, error) {
	status, err := g.GetStatus(ctx, repoPath)
	if err != nil {
		return false, fmt.Errorf("failed to check uncommitted changes in %s: %w", repoPath, err)
	}
	return status.HasChanges, nil
}

// GetStatus returns the git status of the repository.
// SECURITY: repoPath must be a validated, trusted path. This function
// does not perform path validation or sandboxing.
func (g *Git) GetStatus(ctx context.Context, repoPath string) (*Status, error) {
	// Use git status --porcelain for machine-readable output
	cmd := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "status", "--porcelain")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git status failed in %s: %w", repoPath, err)
	}
	return parseStatus(string(output))
}

func parseStatus(output string) (*Status, error) {
	status := &Status{}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}

		statusCode := line[0:2]
		filePath := line[3:]

		// XY where X=index, Y=working tree
		// Reference: https://git-scm.com/docs/git-status#_short_format
		switch {
		case statusCode == "??":
			status.Untracked = append(status.Untracked, filePath)
		case statusCode == "A " || statusCode == "AM":
			status.Added = append(status.Added, filePath)
		case statusCode == "D " || statusCode == " D":
			status.Deleted = append(status.Deleted, filePath)
		case strings.HasPrefix(statusCode, "R"):
			status.Renamed = append(status.Renamed, filePath)
		default:
			status.Modified = append(status.Modified, filePath)
		}
		status.HasChanges = true
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse git status: %w", err)
	}
	return status, nil
}

// CommitChanges stages everything and creates a commit. Returns the commit hash.
// SECURITY: repoPath must be a validated, trusted path. This function
// does not perform path validation or sandboxing.
func (g *Git) CommitChanges(ctx context.Context, repoPath string, opts CommitOptions) (string, error) {
	if opts.Message == "" {
		return "", fmt.Errorf("commit message is required")
	}

	if _, err := g.run(ctx, "-C", repoPath, "add", "-A"); err != nil {
		return "", err
	}

	args := []string{"-C", repoPath}
	// identity flags must precede the subcommand
	if opts.AuthorName != "" {
		args = append(args, "-c", "user.name="+opts.AuthorName)
	}
	if opts.AuthorEmail != "" {
		args = append(args, "-c", "user.email="+opts.AuthorEmail)
	}
	args = append(args, "commit", "-m", opts.Message)
	if _, err := g.run(ctx, args...); err != nil {
		return "", err
	}

	return g.run(ctx, "-C", repoPath, "rev-parse", "HEAD")
}

// Push pushes branch to origin and sets upstream.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) Push(ctx context.Context, repoPath, branch string) error {
	_, err := g.run(ctx, "-C", repoPath, "push", "--set-upstream", "origin", branch)
	return err
}
