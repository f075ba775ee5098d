// Package vcs is the hosted version-control collaborator: it provisions
// working copies and publishes a refactor as a pull request on GitHub.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mohtion/mohtion/internal/git"
)

var (
	// ErrNoChanges is returned when a change request is opened for a clean working copy.
	ErrNoChanges = errors.New("working copy has no changes to publish")

	// ErrBadPRURL is returned when the host's response does not contain a pull request URL.
	ErrBadPRURL = errors.New("unrecognised pull request URL")
)

// ChangeRequest describes one pull request to open from a working copy.
type ChangeRequest struct {
	Workdir string
	Owner   string
	Repo    string
	// Base is the branch the request targets; empty means the branch checked out at clone time.
	Base          string
	Branch        string
	Title         string
	Body          string
	CommitMessage string
}

// CommandRunner runs an external command in dir and returns its stdout.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// Config holds GitHub collaborator configuration
type Config struct {
	// Host is the GitHub host (default github.com)
	Host string
	// WorkspaceRoot holds per-attempt working copies
	WorkspaceRoot string
	// CloneURL overrides how a repository URL is built (tests point it at local repos)
	CloneURL func(owner, repo string) string
	// AuthorName and AuthorEmail set the commit identity
	AuthorName  string
	AuthorEmail string

	Git    git.Operations
	Runner CommandRunner
	Logger logrus.FieldLogger
}

// GitHub provisions working copies with git and opens pull requests with the gh CLI.
// Authentication is delegated to gh and git credential helpers (GH_TOKEN).
type GitHub struct {
	host        string
	root        string
	cloneURL    func(owner, repo string) string
	authorName  string
	authorEmail string
	git         git.Operations
	run         CommandRunner
	log         logrus.FieldLogger
}

// NewGitHub creates the collaborator
func NewGitHub(cfg Config) (*GitHub, error) {
	if cfg.Git == nil {
		return nil, fmt.Errorf("git operations are required")
	}
	if cfg.WorkspaceRoot == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	root, err := filepath.Abs(cfg.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}

	g := &GitHub{
		host:        cfg.Host,
		root:        root,
		cloneURL:    cfg.CloneURL,
		authorName:  cfg.AuthorName,
		authorEmail: cfg.AuthorEmail,
		git:         cfg.Git,
		run:         cfg.Runner,
		log:         cfg.Logger,
	}
	if g.host == "" {
		g.host = "github.com"
	}
	if g.cloneURL == nil {
		g.cloneURL = func(owner, repo string) string {
			return fmt.Sprintf("https://%s/%s/%s.git", g.host, owner, repo)
		}
	}
	if g.authorName == "" {
		g.authorName = "mohtion[bot]"
	}
	if g.authorEmail == "" {
		g.authorEmail = "mohtion[bot]@users.noreply.github.com"
	}
	if g.run == nil {
		g.run = execRunner
	}
	if g.log == nil {
		g.log = logrus.StandardLogger()
	}
	g.log = g.log.WithField("component", "vcs")
	return g, nil
}

// Clone creates a fresh working copy of owner/repo at branch and returns its path.
// Each call gets its own directory so concurrent attempts never share state.
func (g *GitHub) Clone(ctx context.Context, owner, repo, branch string) (string, error) {
	if err := os.MkdirAll(g.root, 0755); err != nil {
		return "", fmt.Errorf("failed to create workspace root: %w", err)
	}
	dir := filepath.Join(g.root, fmt.Sprintf("%s-%s-%s", owner, repo, uuid.NewString()[:8]))

	log := g.log.WithFields(logrus.Fields{"owner": owner, "repo": repo, "branch": branch, "workdir": dir})
	log.Info("cloning repository")

	if err := g.git.Clone(ctx, g.cloneURL(owner, repo), dir, branch); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("failed to clone %s/%s: %w", owner, repo, err)
	}
	return dir, nil
}

// OpenChangeRequest commits the working copy onto a new branch, pushes it, and
// opens a pull request. Returns the request URL and number.
func (g *GitHub) OpenChangeRequest(ctx context.Context, req ChangeRequest) (string, int, error) {
	log := g.log.WithFields(logrus.Fields{"owner": req.Owner, "repo": req.Repo, "branch": req.Branch})

	dirty, err := g.git.HasUncommittedChanges(ctx, req.Workdir)
	if err != nil {
		return "", 0, err
	}
	if !dirty {
		return "", 0, ErrNoChanges
	}

	base := req.Base
	if base == "" {
		if base, err = g.git.CurrentBranch(ctx, req.Workdir); err != nil {
			return "", 0, fmt.Errorf("failed to determine base branch: %w", err)
		}
	}

	if err := g.git.CreateBranch(ctx, req.Workdir, req.Branch); err != nil {
		return "", 0, fmt.Errorf("failed to create branch: %w", err)
	}
	msg := req.CommitMessage
	if msg == "" {
		msg = req.Title
	}
	hash, err := g.git.CommitChanges(ctx, req.Workdir, git.CommitOptions{
		Message:     msg,
		AuthorName:  g.authorName,
		AuthorEmail: g.authorEmail,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to commit: %w", err)
	}
	if err := g.git.Push(ctx, req.Workdir, req.Branch); err != nil {
		return "", 0, fmt.Errorf("failed to push: %w", err)
	}
	log.WithField("commit", hash).Info("pushed refactor branch")

	out, err := g.run(ctx, req.Workdir, "gh", "pr", "create",
		"--repo", fmt.Sprintf("%s/%s/%s", g.host, req.Owner, req.Repo),
		"--base", base,
		"--head", req.Branch,
		"--title", req.Title,
		"--body", req.Body,
	)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open pull request: %w", err)
	}

	prURL, number, err := ParsePRURL(string(out))
	if err != nil {
		return "", 0, err
	}
	log.WithFields(logrus.Fields{"pr_url": prURL, "pr_number": number}).Info("opened pull request")
	return prURL, number, nil
}

// Cleanup removes a working copy created by Clone.
// Paths outside the workspace root are refused.
func (g *GitHub) Cleanup(workdir string) error {
	abs, err := filepath.Abs(workdir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(g.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("refusing to remove %s: not inside workspace root %s", workdir, g.root)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("failed to remove working copy: %w", err)
	}
	return nil
}

// ParsePRURL finds the pull request URL in gh output (the last line that is a
// URL) and extracts its number.
func ParsePRURL(output string) (string, int, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		u, err := url.Parse(line)
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 4 || parts[len(parts)-2] != "pull" {
			continue
		}
		n, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil || n <= 0 {
			continue
		}
		return line, n, nil
	}
	return "", 0, fmt.Errorf("%w: %q", ErrBadPRURL, strings.TrimSpace(output))
}

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
