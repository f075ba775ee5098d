// Package testrunner runs a repository's test suite inside a working copy.
package testrunner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/mod/modfile"
)

// ErrNoTestCommand is returned when no command is configured and none can be detected
var ErrNoTestCommand = errors.New("no test command configured or detected")

// Result represents the outcome of one test run
type Result struct {
	Passed   bool
	Output   string
	Command  string
	Duration time.Duration
}

// Runner executes test commands.
// A failing suite is a Result with Passed=false, never an error; errors mean
// the command could not be started or the context ended.
type Runner struct {
	log       logrus.FieldLogger
	waitDelay time.Duration
	shell     string
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Runner) { r.log = log }
}

// WithWaitDelay bounds how long output pipes are drained after a kill
func WithWaitDelay(d time.Duration) Option {
	return func(r *Runner) { r.waitDelay = d }
}

// New creates a Runner
func New(opts ...Option) *Runner {
	r := &Runner{
		log:       logrus.StandardLogger(),
		waitDelay: 5 * time.Second,
		shell:     "sh",
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithField("component", "testrunner")
	return r
}

// Run executes command in workdir. An empty command is auto-detected.
func (r *Runner) Run(ctx context.Context, workdir, command string) (Result, error) {
	if strings.TrimSpace(command) == "" {
		detected, err := Detect(workdir)
		if err != nil {
			return Result{}, err
		}
		command = detected
	}

	log := r.log.WithFields(logrus.Fields{"workdir": workdir, "command": command})
	log.Info("running tests")

	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	cmd.Dir = workdir
	cmd.Env = append(os.Environ(), "CI=true")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = r.waitDelay
	killProcessGroup(cmd)

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Command:  command,
		Output:   out.String(),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		return res, fmt.Errorf("test run interrupted: %w", ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, fmt.Errorf("failed to start %q: %w", command, err)
		}
		log.WithFields(logrus.Fields{
			"exit_code": exitErr.ExitCode(),
			"duration":  res.Duration,
		}).Info("tests failed")
		return res, nil
	}

	res.Passed = true
	log.WithField("duration", res.Duration).Info("tests passed")
	return res, nil
}

// Detect infers the test command from marker files in workdir.
// Order: go.mod, Python project files, package.json, Cargo.toml, Makefile test target.
func Detect(workdir string) (string, error) {
	if data, err := os.ReadFile(filepath.Join(workdir, "go.mod")); err == nil {
		if _, err := modfile.ParseLax("go.mod", data, nil); err != nil {
			return "", fmt.Errorf("go.mod is not parseable: %w", err)
		}
		return "go test ./...", nil
	}

	for _, marker := range []string{"pyproject.toml", "pytest.ini", "setup.py", "setup.cfg"} {
		if exists(filepath.Join(workdir, marker)) {
			return "pytest", nil
		}
	}
	if exists(filepath.Join(workdir, "package.json")) {
		return "npm test", nil
	}
	if exists(filepath.Join(workdir, "Cargo.toml")) {
		return "cargo test", nil
	}
	if hasMakeTarget(filepath.Join(workdir, "Makefile"), "test") {
		return "make test", nil
	}
	return "", ErrNoTestCommand
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func hasMakeTarget(path, target string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, target+":") || strings.HasPrefix(line, target+" :") {
			return true
		}
	}
	return false
}
