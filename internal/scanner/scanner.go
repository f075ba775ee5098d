// Package scanner walks a repository and runs the enabled analyzers over every source file.
package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mohtion/mohtion/internal/analyzer"
	"github.com/mohtion/mohtion/internal/config"
	"github.com/mohtion/mohtion/internal/types"
)

// binarySniffLen is how much of a file is checked for NUL bytes
const binarySniffLen = 8 * 1024

// vcsDirs are never descended into
var vcsDirs = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,
	".jj":  true,
}

// Stats summarizes one scan
type Stats struct {
	FilesVisited  int64         `json:"files_visited"`
	FilesAnalyzed int64         `json:"files_analyzed"`
	FilesSkipped  int64         `json:"files_skipped"`
	DirsPruned    int64         `json:"dirs_pruned"`
	Targets       int           `json:"targets"`
	Duration      time.Duration `json:"duration"`
}

// Scanner produces the debt targets of a repository.
// It keeps no state between scans, so one Scanner may be reused.
type Scanner struct {
	registry    *analyzer.Registry
	concurrency int
	log         logrus.FieldLogger
}

// Option customizes a Scanner
type Option func(*Scanner)

// WithConcurrency bounds the number of files analyzed at once
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Scanner) {
		s.log = log
	}
}

// WithRegistry replaces the analyzer set derived from the repo config
func WithRegistry(r *analyzer.Registry) Option {
	return func(s *Scanner) {
		s.registry = r
	}
}

// New creates a scanner for a repo config
func New(cfg *config.RepoConfig, opts ...Option) (*Scanner, error) {
	s := &Scanner{
		concurrency: runtime.GOMAXPROCS(0),
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		r, err := analyzer.NewRegistry(cfg, s.log)
		if err != nil {
			return nil, fmt.Errorf("building analyzers: %w", err)
		}
		s.registry = r
	}
	return s, nil
}

// Scan returns every debt target under root in a stable order: files in
// lexical walk order, analyzers in registration order within a file
func (s *Scanner) Scan(ctx context.Context, root string) ([]types.DebtTarget, error) {
	targets, _, err := s.ScanWithStats(ctx, root)
	return targets, err
}

type fileJob struct {
	abs       string
	rel       string
	analyzers []analyzer.Analyzer
}

// ScanWithStats is Scan plus counters
func (s *Scanner) ScanWithStats(ctx context.Context, root string) ([]types.DebtTarget, Stats, error) {
	start := time.Now()
	var stats Stats

	jobs, err := s.collect(ctx, root, &stats)
	if err != nil {
		return nil, stats, err
	}

	results := make([][]types.DebtTarget, len(jobs))
	var analyzed, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			found, ok, err := s.analyzeFile(gctx, job)
			if err != nil {
				return err
			}
			if !ok {
				skipped.Add(1)
				return nil
			}
			analyzed.Add(1)
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	var targets []types.DebtTarget
	for _, r := range results {
		targets = append(targets, r...)
	}

	stats.FilesAnalyzed = analyzed.Load()
	stats.FilesSkipped += skipped.Load()
	stats.Targets = len(targets)
	stats.Duration = time.Since(start)

	s.log.WithFields(logrus.Fields{
		"root":     root,
		"analyzed": stats.FilesAnalyzed,
		"skipped":  stats.FilesSkipped,
		"targets":  stats.Targets,
		"duration": stats.Duration,
	}).Info("scan complete")

	return targets, stats, nil
}

// collect walks the tree once and returns the files some analyzer wants
func (s *Scanner) collect(ctx context.Context, root string, stats *Stats) ([]fileJob, error) {
	filter := s.registry.Filter()
	var jobs []fileJob

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == root {
				return err
			}
			s.log.WithError(err).WithField("path", p).Warn("cannot read path, skipping")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if p == root {
				return nil
			}
			if vcsDirs[d.Name()] || (filter != nil && filter.MatchDir(rel)) {
				stats.DirsPruned++
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		stats.FilesVisited++
		var wanted []analyzer.Analyzer
		for _, a := range s.registry.For(analyzer.DetectLanguage(rel)) {
			if a.ShouldAnalyze(rel) {
				wanted = append(wanted, a)
			}
		}
		if len(wanted) == 0 {
			stats.FilesSkipped++
			return nil
		}
		jobs = append(jobs, fileJob{abs: p, rel: rel, analyzers: wanted})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// analyzeFile reads one file and runs its analyzers. ok is false when the
// file was skipped (unreadable, binary or not UTF-8).
func (s *Scanner) analyzeFile(ctx context.Context, job fileJob) (found []types.DebtTarget, ok bool, err error) {
	content, err := os.ReadFile(job.abs)
	if err != nil {
		s.log.WithError(err).WithField("file", job.rel).Warn("cannot read file, skipping")
		return nil, false, nil
	}
	if isBinary(content) {
		s.log.WithField("file", job.rel).Debug("skipping binary or non-UTF-8 file")
		return nil, false, nil
	}

	for _, a := range job.analyzers {
		targets, err := a.AnalyzeFile(ctx, job.rel, content)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, false, err
			}
			s.log.WithError(err).WithFields(logrus.Fields{
				"file":     job.rel,
				"analyzer": a.Name(),
			}).Warn("analyzer failed, continuing")
			continue
		}
		found = append(found, targets...)
	}
	return found, true, nil
}

func isBinary(content []byte) bool {
	sniff := content
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return true
	}
	return !utf8.Valid(content)
}
