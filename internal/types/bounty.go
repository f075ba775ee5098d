package types

import (
	"errors"
	"fmt"
	"time"
)

// BountyStatus is the state of one remediation attempt.
//
// State flow:
//
//	pending → in_progress → testing → {retrying → testing}* → {success | failed | abandoned}
//
// success, failed and abandoned are terminal and never re-entered.
type BountyStatus string

const (
	StatusPending    BountyStatus = "pending"     // Not yet started
	StatusInProgress BountyStatus = "in_progress" // Generating the first candidate
	StatusTesting    BountyStatus = "testing"     // Running the test command against a candidate
	StatusRetrying   BountyStatus = "retrying"    // Tests failed, self-healing
	StatusSuccess    BountyStatus = "success"     // Tests passed and change request opened
	StatusFailed     BountyStatus = "failed"      // Generation, apply, publication or cancellation error
	StatusAbandoned  BountyStatus = "abandoned"   // Tests still failing after the retry budget
)

// IsValid checks if the status value is valid
func (s BountyStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusTesting, StatusRetrying,
		StatusSuccess, StatusFailed, StatusAbandoned:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed
func (s BountyStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusAbandoned:
		return true
	}
	return false
}

// ErrInvalidTransition is returned when a status change is not in the transition table
var ErrInvalidTransition = errors.New("invalid bounty status transition")

// Transition validates a status change against the bounty state machine.
func Transition(from, to BountyStatus) error {
	allowed := false
	switch from {
	case StatusPending:
		allowed = to == StatusInProgress || to == StatusFailed
	case StatusInProgress:
		allowed = to == StatusTesting || to == StatusFailed
	case StatusTesting:
		allowed = to == StatusSuccess || to == StatusFailed || to == StatusAbandoned || to == StatusRetrying
	case StatusRetrying:
		allowed = to == StatusTesting || to == StatusFailed
	case StatusSuccess, StatusFailed, StatusAbandoned:
		allowed = false
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	if !allowed {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// BountyResult tracks one remediation attempt end-to-end.
// The orchestrator is its only writer; callers receive it once it is terminal
// or read a Snapshot while it is running.
type BountyResult struct {
	ID         string       `json:"id"`
	Owner      string       `json:"owner"`
	Repo       string       `json:"repo"`
	Target     DebtTarget   `json:"target"`
	Status     BountyStatus `json:"status"`
	BranchName string       `json:"branch_name"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	PRURL    string `json:"pr_url,omitempty"`
	PRNumber int    `json:"pr_number,omitempty"`

	OriginalCode  string `json:"original_code"`
	CandidateCode string `json:"candidate_code"`
	Summary       string `json:"summary"`

	TestPassed bool   `json:"test_passed"`
	TestOutput string `json:"test_output"`
	RetryCount int    `json:"retry_count"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// NewBountyResult creates a pending bounty for a target
func NewBountyResult(id, owner, repo, branch string, target DebtTarget) *BountyResult {
	return &BountyResult{
		ID:           id,
		Owner:        owner,
		Repo:         repo,
		Target:       target,
		Status:       StatusPending,
		BranchName:   branch,
		StartedAt:    time.Now().UTC(),
		OriginalCode: target.Snippet,
	}
}

// Advance moves the bounty to a non-terminal status
func (b *BountyResult) Advance(to BountyStatus) error {
	if to.IsTerminal() {
		return fmt.Errorf("%w: use the Mark* helpers to enter %s", ErrInvalidTransition, to)
	}
	if err := Transition(b.Status, to); err != nil {
		return err
	}
	b.Status = to
	return nil
}

// MarkSuccess records the published change request and completes the bounty
func (b *BountyResult) MarkSuccess(prURL string, prNumber int) error {
	if err := Transition(b.Status, StatusSuccess); err != nil {
		return err
	}
	b.Status = StatusSuccess
	b.PRURL = prURL
	b.PRNumber = prNumber
	b.TestPassed = true
	b.complete()
	return nil
}

// MarkFailed completes the bounty with an error message
func (b *BountyResult) MarkFailed(msg string) error {
	if err := Transition(b.Status, StatusFailed); err != nil {
		return err
	}
	b.Status = StatusFailed
	b.ErrorMessage = msg
	b.complete()
	return nil
}

// MarkAbandoned completes the bounty after the retry budget ran out
func (b *BountyResult) MarkAbandoned(testOutput string) error {
	if err := Transition(b.Status, StatusAbandoned); err != nil {
		return err
	}
	b.Status = StatusAbandoned
	b.TestPassed = false
	b.TestOutput = testOutput
	b.ErrorMessage = fmt.Sprintf("tests still failing after %d self-heal attempts", b.RetryCount)
	b.complete()
	return nil
}

func (b *BountyResult) complete() {
	now := time.Now().UTC()
	b.CompletedAt = &now
}

// Duration returns how long the attempt ran (or has been running)
func (b *BountyResult) Duration() time.Duration {
	if b.CompletedAt != nil {
		return b.CompletedAt.Sub(b.StartedAt)
	}
	return time.Since(b.StartedAt)
}

// Snapshot returns a copy safe to hand to readers while the attempt is running
func (b *BountyResult) Snapshot() BountyResult {
	snap := *b
	if b.Target.Metric != nil {
		snap.Target.Metric = Float64Ptr(*b.Target.Metric)
	}
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		snap.CompletedAt = &t
	}
	return snap
}

// StatusIcon maps a status to its display glyph
func StatusIcon(s BountyStatus) string {
	switch s {
	case StatusSuccess:
		return "✓"
	case StatusFailed:
		return "✗"
	case StatusAbandoned:
		return "⊘"
	case StatusInProgress:
		return "⋯"
	case StatusTesting:
		return "🧪"
	case StatusRetrying:
		return "↻"
	case StatusPending:
		return "○"
	}
	return "?"
}

func (b *BountyResult) String() string {
	return fmt.Sprintf("%s %s [%s]", StatusIcon(b.Status), b.Target.Location(), b.Status)
}
