package git

import (
	"context"
)

// Operations is the slice of git the bounty publisher needs.
// Implementation-agnostic so tests can substitute a fake.
type Operations interface {
	Clone(ctx context.Context, url, dir, branch string) error
	CurrentBranch(ctx context.Context, repoPath string) (string, error)
	CreateBranch(ctx context.Context, repoPath, branch string) error
	HasUncommittedChanges(ctx context.Context, repoPath string) (bool, error)
	CommitChanges(ctx context.Context, repoPath string, opts CommitOptions) (string, error)
	Push(ctx context.Context, repoPath, branch string) error
}

var _ Operations = (*Git)(nil)

// Status represents the git status of a repository.
type Status struct {
	// Modified files (staged or unstaged)
	Modified []string

	// Untracked files
	Untracked []string

	// Deleted files
	Deleted []string

	// Added files (staged)
	Added []string

	// Renamed files
	Renamed []string

	// HasChanges is true if any changes exist
	HasChanges bool
}

// CommitOptions configures a git commit operation.
type CommitOptions struct {
	// Message is the commit message
	Message string

	// AuthorName and AuthorEmail override the git config identity (optional)
	AuthorName  string
	AuthorEmail string
}
