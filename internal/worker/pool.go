// Package worker runs bounty jobs on a bounded pool with per-repository quotas.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mohtion/mohtion/internal/types"
)

var (
	// ErrQueueFull is returned when the job queue has no room
	ErrQueueFull = errors.New("job queue is full")
	// ErrStopped is returned after Stop
	ErrStopped = errors.New("worker pool is stopped")
)

// Job is one scan-and-remediate invocation
type Job struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
	// Trigger says what enqueued the job (push, schedule, cli)
	Trigger string `json:"trigger,omitempty"`
}

// Key identifies the repository; at most one job per key is queued or running
func (j Job) Key() string {
	return strings.ToLower(j.Owner + "/" + j.Repo)
}

func (j Job) String() string {
	return fmt.Sprintf("%s/%s@%s", j.Owner, j.Repo, j.Branch)
}

// ParseJob parses "owner/repo" or "owner/repo@branch"
func ParseJob(s string) (Job, error) {
	ref, branch, _ := strings.Cut(strings.TrimSpace(s), "@")
	owner, repo, ok := strings.Cut(ref, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return Job{}, fmt.Errorf("invalid repository %q (want owner/repo[@branch])", s)
	}
	if branch == "" {
		branch = "main"
	}
	return Job{Owner: owner, Repo: repo, Branch: branch}, nil
}

// Runner executes one bounty; the orchestrator satisfies it
type Runner interface {
	Run(ctx context.Context, owner, repo, branch string) (*types.BountyResult, error)
}

// AttemptCounter reports persisted attempts for the quota check
type AttemptCounter interface {
	CountSince(ctx context.Context, owner, repo string, since time.Time) (int, error)
}

// Outcome is what a finished (or skipped) job produced
type Outcome struct {
	Job      Job                 `json:"job"`
	Bounty   *types.BountyResult `json:"bounty,omitempty"`
	Err      error               `json:"-"`
	Skipped  string              `json:"skipped,omitempty"`
	Duration time.Duration       `json:"duration"`
}

// Notifier is told about every outcome
type Notifier interface {
	Notify(ctx context.Context, o Outcome) error
}

// Config holds pool configuration
type Config struct {
	Workers    int           // default 5
	JobTimeout time.Duration // default 10m
	QueueSize  int           // default 100
	// MaxPerPeriod attempts per repository per Period (default 3 per 24h); 0 disables the quota
	MaxPerPeriod int
	Period       time.Duration

	Counter  AttemptCounter
	Notifier Notifier
	Logger   logrus.FieldLogger
}

// Pool executes jobs with a fixed number of workers
type Pool struct {
	runner Runner
	cfg    Config
	log    logrus.FieldLogger
	now    func() time.Time

	queue chan Job
	wg    sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]Job // queued or running
	running  map[string]time.Time
	limiters map[string]*rate.Limiter
	stopped  bool
	cancel   context.CancelFunc
}

// NewPool creates a pool; call Start to begin processing
func NewPool(runner Runner, cfg Config) (*Pool, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Period <= 0 {
		cfg.Period = 24 * time.Hour
	}
	if cfg.MaxPerPeriod < 0 {
		return nil, fmt.Errorf("max attempts per period must be >= 0")
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Pool{
		runner:   runner,
		cfg:      cfg,
		log:      log.WithField("component", "worker"),
		now:      time.Now,
		queue:    make(chan Job, cfg.QueueSize),
		inflight: make(map[string]Job),
		running:  make(map[string]time.Time),
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

// Start launches the workers. Cancelling ctx aborts running jobs.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
	p.log.WithFields(logrus.Fields{
		"workers":     p.cfg.Workers,
		"job_timeout": p.cfg.JobTimeout,
	}).Info("worker pool started")
}

// Enqueue adds a job. It returns false without error when a job for the same
// repository is already queued or running.
func (p *Pool) Enqueue(job Job) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return false, ErrStopped
	}
	key := job.Key()
	if _, dup := p.inflight[key]; dup {
		p.log.WithField("job", job.String()).Debug("job already queued, skipping")
		return false, nil
	}

	select {
	case p.queue <- job:
		p.inflight[key] = job
		return true, nil
	default:
		return false, ErrQueueFull
	}
}

// Stop stops accepting jobs, lets queued jobs drain, and waits for workers.
// If ctx ends first, running jobs are cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	cancel := p.cancel
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-done
		return ctx.Err()
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// Running returns the jobs currently executing and when they started
func (p *Pool) Running() map[string]time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]time.Time, len(p.running))
	for k, v := range p.running {
		out[k] = v
	}
	return out
}

// Pending returns how many jobs are waiting for a worker
func (p *Pool) Pending() int {
	return len(p.queue)
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.WithField("worker", id)

	for job := range p.queue {
		if ctx.Err() != nil {
			p.release(job)
			continue
		}
		outcome := p.process(ctx, job, log)
		p.release(job)
		p.notify(ctx, outcome, log)
	}
}

func (p *Pool) process(ctx context.Context, job Job, log logrus.FieldLogger) Outcome {
	log = log.WithField("job", job.String())
	start := p.now()

	reservation, reason := p.reserve(ctx, job)
	if reason != "" {
		log.WithField("reason", reason).Info("skipping job")
		return Outcome{Job: job, Skipped: reason}
	}

	p.mu.Lock()
	p.running[job.Key()] = start
	p.mu.Unlock()

	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	log.WithField("trigger", job.Trigger).Info("job started")
	bounty, err := p.runner.Run(jobCtx, job.Owner, job.Repo, job.Branch)
	out := Outcome{Job: job, Bounty: bounty, Err: err, Duration: time.Since(start)}
	if bounty == nil && reservation != nil {
		// no bounty was attempted, so the attempt does not count
		reservation.CancelAt(p.now())
	}

	fields := logrus.Fields{"duration": out.Duration}
	switch {
	case err != nil:
		log.WithError(err).WithFields(fields).Error("job failed")
	case bounty == nil:
		log.WithFields(fields).Info("job finished: no debt targets")
	default:
		fields["status"] = bounty.Status
		fields["bounty_id"] = bounty.ID
		log.WithFields(fields).Info("job finished")
	}
	return out
}

// reserve takes one attempt from the repository's quota, or returns why it cannot
func (p *Pool) reserve(ctx context.Context, job Job) (*rate.Reservation, string) {
	limit := p.cfg.MaxPerPeriod
	if limit == 0 {
		return nil, ""
	}

	if p.cfg.Counter != nil {
		n, err := p.cfg.Counter.CountSince(ctx, job.Owner, job.Repo, p.now().Add(-p.cfg.Period))
		if err != nil {
			p.log.WithError(err).Warn("attempt count unavailable, relying on in-process limiter")
		} else if n >= limit {
			return nil, fmt.Sprintf("quota reached: %d attempts in the last %s", n, p.cfg.Period)
		}
	}

	now := p.now()
	r := p.limiter(job.Key()).ReserveN(now, 1)
	if !r.OK() || r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		return nil, fmt.Sprintf("quota reached: more than %d attempts per %s", limit, p.cfg.Period)
	}
	return r, ""
}

func (p *Pool) limiter(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[key]
	if !ok {
		// refills one attempt every Period/limit, holding at most limit
		l = rate.NewLimiter(rate.Every(p.cfg.Period/time.Duration(p.cfg.MaxPerPeriod)), p.cfg.MaxPerPeriod)
		p.limiters[key] = l
	}
	return l
}

func (p *Pool) release(job Job) {
	p.mu.Lock()
	delete(p.inflight, job.Key())
	delete(p.running, job.Key())
	p.mu.Unlock()
}

func (p *Pool) notify(ctx context.Context, o Outcome, log logrus.FieldLogger) {
	if p.cfg.Notifier == nil {
		return
	}
	if err := p.cfg.Notifier.Notify(context.WithoutCancel(ctx), o); err != nil {
		log.WithError(err).Warn("failed to send notification")
	}
}
