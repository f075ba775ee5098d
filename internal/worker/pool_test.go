package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohtion/mohtion/internal/types"
)

type runnerFunc func(ctx context.Context, owner, repo, branch string) (*types.BountyResult, error)

func (f runnerFunc) Run(ctx context.Context, owner, repo, branch string) (*types.BountyResult, error) {
	return f(ctx, owner, repo, branch)
}

func bountyRunner(calls *atomic.Int32) runnerFunc {
	return func(_ context.Context, owner, repo, _ string) (*types.BountyResult, error) {
		calls.Add(1)
		b := types.NewBountyResult("id-"+repo, owner, repo, "b", types.DebtTarget{})
		_ = b.MarkFailed("x")
		return b, nil
	}
}

type chanNotifier chan Outcome

func (c chanNotifier) Notify(_ context.Context, o Outcome) error {
	c <- o
	return nil
}

type fixedCounter struct {
	n   int
	err error
}

func (f fixedCounter) CountSince(context.Context, string, string, time.Time) (int, error) {
	return f.n, f.err
}

func newTestPool(t *testing.T, runner Runner, cfg Config) (*Pool, chanNotifier) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	notes := make(chanNotifier, 16)
	cfg.Logger = logger
	cfg.Notifier = notes
	p, err := NewPool(runner, cfg)
	require.NoError(t, err)
	frozen := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return frozen }
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	return p, notes
}

func next(t *testing.T, notes chanNotifier) Outcome {
	t.Helper()
	select {
	case o := <-notes:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return Outcome{}
	}
}

func TestPoolRunsJobs(t *testing.T) {
	var calls atomic.Int32
	p, notes := newTestPool(t, bountyRunner(&calls), Config{Workers: 2})
	p.Start(context.Background())

	for _, repo := range []string{"a", "b", "c"} {
		ok, err := p.Enqueue(Job{Owner: "acme", Repo: repo, Branch: "main", Trigger: "push"})
		require.NoError(t, err)
		assert.True(t, ok)
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		o := next(t, notes)
		require.NoError(t, o.Err)
		require.NotNil(t, o.Bounty)
		seen[o.Job.Repo] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, seen)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPoolDeduplicatesByRepository(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	runner := runnerFunc(func(context.Context, string, string, string) (*types.BountyResult, error) {
		started <- struct{}{}
		<-release
		return nil, nil
	})
	p, notes := newTestPool(t, runner, Config{Workers: 1})
	p.Start(context.Background())

	ok, err := p.Enqueue(Job{Owner: "acme", Repo: "calc", Branch: "main"})
	require.NoError(t, err)
	require.True(t, ok)
	<-started
	assert.Contains(t, p.Running(), "acme/calc")

	ok, err = p.Enqueue(Job{Owner: "ACME", Repo: "Calc", Branch: "dev"})
	require.NoError(t, err)
	assert.False(t, ok, "same repository while running")

	close(release)
	next(t, notes)

	ok, err = p.Enqueue(Job{Owner: "acme", Repo: "calc", Branch: "main"})
	require.NoError(t, err)
	assert.True(t, ok, "accepted again once finished")
	<-started
	next(t, notes)
	assert.Empty(t, p.Running())
}

func TestPoolJobTimeout(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, _, _, _ string) (*types.BountyResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p, notes := newTestPool(t, runner, Config{Workers: 1, JobTimeout: 50 * time.Millisecond})
	p.Start(context.Background())

	_, err := p.Enqueue(Job{Owner: "acme", Repo: "slow"})
	require.NoError(t, err)
	o := next(t, notes)
	assert.ErrorIs(t, o.Err, context.DeadlineExceeded)
}

func TestPoolQuotaLimiter(t *testing.T) {
	var calls atomic.Int32
	p, notes := newTestPool(t, bountyRunner(&calls), Config{Workers: 1, MaxPerPeriod: 2})
	p.Start(context.Background())

	var outcomes []Outcome
	for i := 0; i < 3; i++ {
		_, err := p.Enqueue(Job{Owner: "acme", Repo: "calc"})
		require.NoError(t, err)
		outcomes = append(outcomes, next(t, notes))
	}

	assert.Empty(t, outcomes[0].Skipped)
	assert.Empty(t, outcomes[1].Skipped)
	assert.Contains(t, outcomes[2].Skipped, "quota reached")
	assert.Equal(t, int32(2), calls.Load())

	// other repositories have their own budget
	_, err := p.Enqueue(Job{Owner: "acme", Repo: "web"})
	require.NoError(t, err)
	assert.Empty(t, next(t, notes).Skipped)
}

func TestPoolEmptyRunsDoNotConsumeQuota(t *testing.T) {
	var calls atomic.Int32
	runner := runnerFunc(func(context.Context, string, string, string) (*types.BountyResult, error) {
		calls.Add(1)
		return nil, nil
	})
	p, notes := newTestPool(t, runner, Config{Workers: 1, MaxPerPeriod: 1})
	p.Start(context.Background())

	for i := 0; i < 3; i++ {
		_, err := p.Enqueue(Job{Owner: "acme", Repo: "clean"})
		require.NoError(t, err)
		assert.Empty(t, next(t, notes).Skipped)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestPoolQuotaFromCounter(t *testing.T) {
	var calls atomic.Int32
	p, notes := newTestPool(t, bountyRunner(&calls), Config{
		Workers:      1,
		MaxPerPeriod: 3,
		Counter:      fixedCounter{n: 3},
	})
	p.Start(context.Background())

	_, err := p.Enqueue(Job{Owner: "acme", Repo: "calc"})
	require.NoError(t, err)
	o := next(t, notes)
	assert.Equal(t, "quota reached: 3 attempts in the last 24h0m0s", o.Skipped)
	assert.Zero(t, calls.Load())
}

func TestPoolCounterErrorFallsBackToLimiter(t *testing.T) {
	var calls atomic.Int32
	p, notes := newTestPool(t, bountyRunner(&calls), Config{
		Workers:      1,
		MaxPerPeriod: 1,
		Counter:      fixedCounter{err: errors.New("database is locked")},
	})
	p.Start(context.Background())

	_, err := p.Enqueue(Job{Owner: "acme", Repo: "calc"})
	require.NoError(t, err)
	assert.Empty(t, next(t, notes).Skipped)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPoolQueueFull(t *testing.T) {
	var calls atomic.Int32
	p, _ := newTestPool(t, bountyRunner(&calls), Config{QueueSize: 1})

	ok, err := p.Enqueue(Job{Owner: "acme", Repo: "a"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, p.Pending())

	_, err = p.Enqueue(Job{Owner: "acme", Repo: "b"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestPoolStop(t *testing.T) {
	var mu sync.Mutex
	var ran []string
	runner := runnerFunc(func(_ context.Context, _, repo, _ string) (*types.BountyResult, error) {
		mu.Lock()
		ran = append(ran, repo)
		mu.Unlock()
		return nil, nil
	})
	p, _ := newTestPool(t, runner, Config{Workers: 1})
	for _, repo := range []string{"a", "b"} {
		_, err := p.Enqueue(Job{Owner: "acme", Repo: repo})
		require.NoError(t, err)
	}
	p.Start(context.Background())

	require.NoError(t, p.Stop(context.Background()))
	assert.ElementsMatch(t, []string{"a", "b"}, ran, "queued jobs drain before stop returns")

	_, err := p.Enqueue(Job{Owner: "acme", Repo: "c"})
	assert.ErrorIs(t, err, ErrStopped)
	assert.NoError(t, p.Stop(context.Background()))
}

func TestNewPoolValidation(t *testing.T) {
	_, err := NewPool(nil, Config{})
	assert.Error(t, err)
	_, err = NewPool(runnerFunc(nil), Config{MaxPerPeriod: -1})
	assert.Error(t, err)

	p, err := NewPool(runnerFunc(nil), Config{})
	require.NoError(t, err)
	assert.Equal(t, 5, p.cfg.Workers)
	assert.Equal(t, 10*time.Minute, p.cfg.JobTimeout)
	assert.Equal(t, 24*time.Hour, p.cfg.Period)
}

func TestJobKey(t *testing.T) {
	assert.Equal(t, "acme/calc", Job{Owner: "Acme", Repo: "Calc"}.Key())
	assert.Equal(t, "acme/calc@main", Job{Owner: "acme", Repo: "calc", Branch: "main"}.String())
}

func TestParseJob(t *testing.T) {
	job, err := ParseJob(" acme/calc ")
	require.NoError(t, err)
	assert.Equal(t, Job{Owner: "acme", Repo: "calc", Branch: "main"}, job)

	job, err = ParseJob("acme/calc@release-1.2")
	require.NoError(t, err)
	assert.Equal(t, "release-1.2", job.Branch)

	for _, bad := range []string{"", "acme", "/calc", "acme/", "a/b/c"} {
		_, err := ParseJob(bad)
		assert.Error(t, err, bad)
	}
}
