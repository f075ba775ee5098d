// Package orchestrator runs one bounty: clone, scan, pick the worst debt
// target, refactor it, verify with the repository's tests, self-heal on
// failure, and publish a pull request once the tests pass.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mohtion/mohtion/internal/config"
	"github.com/mohtion/mohtion/internal/refactor"
	"github.com/mohtion/mohtion/internal/scanner"
	"github.com/mohtion/mohtion/internal/testrunner"
	"github.com/mohtion/mohtion/internal/types"
	"github.com/mohtion/mohtion/internal/vcs"
)

// VCS provisions working copies and publishes change requests
type VCS interface {
	Clone(ctx context.Context, owner, repo, branch string) (string, error)
	OpenChangeRequest(ctx context.Context, req vcs.ChangeRequest) (url string, number int, err error)
	Cleanup(workdir string) error
}

// TestRunner runs the repository's test suite
type TestRunner interface {
	Run(ctx context.Context, workdir, command string) (testrunner.Result, error)
}

// Remediator produces candidate code
type Remediator interface {
	Propose(ctx context.Context, target types.DebtTarget) (refactor.Proposal, error)
	Heal(ctx context.Context, original, failed, testOutput string) (refactor.Proposal, error)
}

// Recorder persists finished bounties
type Recorder interface {
	SaveBounty(ctx context.Context, b *types.BountyResult) error
}

// ScanFunc produces the debt targets of a working copy
type ScanFunc func(ctx context.Context, root string, cfg *config.RepoConfig) ([]types.DebtTarget, error)

// Observer receives a read-only snapshot after every status change
type Observer func(types.BountyResult)

// Config wires the orchestrator's collaborators
type Config struct {
	VCS        VCS
	Tests      TestRunner
	Remediator Remediator

	// Scan defaults to the built-in scanner
	Scan ScanFunc
	// Recorder and Observer are optional
	Recorder Recorder
	Observer Observer

	// KeepWorkdir leaves the working copy on disk after the run
	KeepWorkdir bool
	Logger      logrus.FieldLogger
}

// Orchestrator runs bounties. It holds no per-run state, so one instance
// may serve concurrent runs against different repositories.
type Orchestrator struct {
	vcs         VCS
	tests       TestRunner
	remediator  Remediator
	scan        ScanFunc
	recorder    Recorder
	observer    Observer
	keepWorkdir bool
	log         logrus.FieldLogger
}

// New creates an orchestrator
func New(cfg Config) (*Orchestrator, error) {
	if cfg.VCS == nil {
		return nil, fmt.Errorf("vcs collaborator is required")
	}
	if cfg.Tests == nil {
		return nil, fmt.Errorf("test runner is required")
	}
	if cfg.Remediator == nil {
		return nil, fmt.Errorf("remediator is required")
	}

	o := &Orchestrator{
		vcs:         cfg.VCS,
		tests:       cfg.Tests,
		remediator:  cfg.Remediator,
		scan:        cfg.Scan,
		recorder:    cfg.Recorder,
		observer:    cfg.Observer,
		keepWorkdir: cfg.KeepWorkdir,
		log:         cfg.Logger,
	}
	if o.log == nil {
		o.log = logrus.StandardLogger()
	}
	o.log = o.log.WithField("component", "orchestrator")
	if o.scan == nil {
		o.scan = defaultScan(o.log)
	}
	return o, nil
}

func defaultScan(log logrus.FieldLogger) ScanFunc {
	return func(ctx context.Context, root string, cfg *config.RepoConfig) ([]types.DebtTarget, error) {
		s, err := scanner.New(cfg, scanner.WithLogger(log))
		if err != nil {
			return nil, err
		}
		return s.Scan(ctx, root)
	}
}

// Run performs one bounty against owner/repo at branch.
//
// It returns (nil, nil) when the repository has no debt targets, and
// (nil, err) only when setup fails before a target is chosen. Once a bounty
// exists it is always returned in a terminal status with a nil error.
func (o *Orchestrator) Run(ctx context.Context, owner, repo, branch string) (*types.BountyResult, error) {
	log := o.log.WithFields(logrus.Fields{"owner": owner, "repo": repo, "branch": branch})

	workdir, err := o.vcs.Clone(ctx, owner, repo, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain working copy: %w", err)
	}
	if !o.keepWorkdir {
		defer func() {
			if err := o.vcs.Cleanup(workdir); err != nil {
				log.WithError(err).Warn("failed to remove working copy")
			}
		}()
	}

	cfg, err := config.LoadRepoConfig(workdir)
	if err != nil {
		return nil, fmt.Errorf("failed to load repository config: %w", err)
	}

	targets, err := o.scan(ctx, workdir, cfg)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	target, ok := types.SelectTarget(targets)
	if !ok {
		log.Info("no debt targets found, nothing to do")
		return nil, nil
	}

	id := uuid.NewString()
	b := types.NewBountyResult(id, owner, repo, branchName(target, id), target)
	r := &run{
		o:       o,
		b:       b,
		cfg:     cfg,
		workdir: workdir,
		log: log.WithFields(logrus.Fields{
			"bounty_id": id,
			"target":    target.Location(),
			"severity":  target.Severity,
		}),
	}
	r.log.WithField("candidates", len(targets)).Info("selected debt target")
	r.notify()

	r.execute(ctx)

	if o.recorder != nil {
		// the run's context may already be dead; the outcome still needs recording
		if err := o.recorder.SaveBounty(context.WithoutCancel(ctx), b); err != nil {
			r.log.WithError(err).Error("failed to record bounty")
		}
	}
	return b, nil
}

// run is the state of one bounty attempt. Only the goroutine executing
// Run touches it.
type run struct {
	o        *Orchestrator
	b        *types.BountyResult
	cfg      *config.RepoConfig
	workdir  string
	pristine []byte
	log      logrus.FieldLogger
}

func (r *run) execute(ctx context.Context) {
	if !r.advance(types.StatusInProgress) {
		return
	}

	proposal, err := r.o.remediator.Propose(ctx, r.b.Target)
	if err != nil {
		r.fail(ctx, "refactor generation failed", err)
		return
	}
	r.b.CandidateCode = proposal.Code
	r.b.Summary = proposal.Summary

	for {
		if err := r.apply(r.b.CandidateCode); err != nil {
			r.fail(ctx, "failed to apply candidate", err)
			return
		}

		if !r.advance(types.StatusTesting) {
			return
		}
		res, err := r.o.tests.Run(ctx, r.workdir, r.cfg.TestCommand)
		if err != nil {
			r.fail(ctx, "test execution failed", err)
			return
		}
		r.b.TestOutput = res.Output

		if res.Passed {
			r.publish(ctx)
			return
		}

		if r.b.RetryCount >= r.cfg.MaxRetries {
			r.restore()
			r.terminal(r.b.MarkAbandoned(res.Output))
			r.log.WithField("retries", r.b.RetryCount).Warn("tests still failing, abandoning bounty")
			return
		}

		r.b.RetryCount++
		if !r.advance(types.StatusRetrying) {
			return
		}
		r.log.WithField("attempt", r.b.RetryCount).Info("tests failed, self-healing")

		healed, err := r.o.remediator.Heal(ctx, r.b.OriginalCode, r.b.CandidateCode, res.Output)
		if err != nil {
			r.fail(ctx, "self-heal failed", err)
			return
		}
		r.b.CandidateCode = healed.Code
		r.b.Summary = healed.Summary
	}
}

// apply writes code over the target span of the pristine file
func (r *run) apply(code string) error {
	if r.pristine != nil {
		if err := refactor.Restore(r.workdir, r.b.Target.FilePath, r.pristine); err != nil {
			return err
		}
	}
	prev, err := refactor.ApplyCandidate(r.workdir, r.b.Target, code)
	if err != nil {
		return err
	}
	if r.pristine == nil {
		r.pristine = prev
	}
	return nil
}

// restore puts the target file back the way it was cloned
func (r *run) restore() {
	if r.pristine == nil {
		return
	}
	if err := refactor.Restore(r.workdir, r.b.Target.FilePath, r.pristine); err != nil {
		r.log.WithError(err).Warn("failed to restore target file")
	}
}

func (r *run) publish(ctx context.Context) {
	r.b.TestPassed = true
	title := prTitle(r.b.Target)

	url, number, err := r.o.vcs.OpenChangeRequest(ctx, vcs.ChangeRequest{
		Workdir:       r.workdir,
		Owner:         r.b.Owner,
		Repo:          r.b.Repo,
		Branch:        r.b.BranchName,
		Title:         title,
		Body:          prBody(r.b, r.cfg),
		CommitMessage: commitMessage(r.b),
	})
	if err != nil {
		r.fail(ctx, "failed to publish change request", err)
		return
	}
	r.terminal(r.b.MarkSuccess(url, number))
	r.log.WithFields(logrus.Fields{
		"pr_url":  url,
		"retries": r.b.RetryCount,
	}).Info("bounty claimed")
}

// fail records a terminal failure. Errors caused by the run's context ending
// are reported as cancellations whatever step they surfaced in.
func (r *run) fail(ctx context.Context, what string, err error) {
	r.restore()
	msg := fmt.Sprintf("%s: %v", what, err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		msg = fmt.Sprintf("cancelled: %v", ctxErr)
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		msg = fmt.Sprintf("cancelled: %v", err)
	}
	r.terminal(r.b.MarkFailed(msg))
	r.log.WithError(err).WithField("reason", msg).Error("bounty failed")
}

func (r *run) advance(to types.BountyStatus) bool {
	if err := r.b.Advance(to); err != nil {
		// only reachable through a bug in the loop above
		r.log.WithError(err).Error("illegal bounty transition")
		if !r.b.Status.IsTerminal() {
			_ = r.b.MarkFailed(err.Error())
			r.notify()
		}
		return false
	}
	r.log.WithField("status", to).Debug("bounty status changed")
	r.notify()
	return true
}

func (r *run) terminal(err error) {
	if err != nil {
		r.log.WithError(err).Error("illegal bounty transition")
		return
	}
	r.log.WithFields(logrus.Fields{
		"status":   r.b.Status,
		"duration": r.b.Duration(),
	}).Info("bounty finished")
	r.notify()
}

func (r *run) notify() {
	if r.o.observer != nil {
		r.o.observer(r.b.Snapshot())
	}
}
