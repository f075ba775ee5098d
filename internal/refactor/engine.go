// Package refactor turns debt targets into replacement source text using a
// text-generation service, and re-attempts fixes from test failure output.
package refactor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mohtion/mohtion/internal/types"
)

// ErrEmptyCandidate is returned when the generated response contains no usable code
var ErrEmptyCandidate = errors.New("generated response contains no code")

// Generator is a stateless request/response text-generation service
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Proposal is one candidate replacement for a target span
type Proposal struct {
	Code    string
	Summary string
}

// Engine builds prompts, calls the generator and parses its answers
type Engine struct {
	gen Generator
	log logrus.FieldLogger
}

// NewEngine creates a remediation engine
func NewEngine(gen Generator, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{gen: gen, log: log.WithField("component", "refactor")}
}

// Propose asks for a refactoring of the target's snippet
func (e *Engine) Propose(ctx context.Context, target types.DebtTarget) (Proposal, error) {
	log := e.log.WithField("target", target.Location())
	log.Info("requesting refactor")

	start := time.Now()
	resp, err := e.gen.Generate(ctx, buildProposePrompt(target))
	if err != nil {
		return Proposal{}, fmt.Errorf("generating refactor for %s: %w", target.Location(), err)
	}

	code, summary := ParseResponse(resp)
	if code == "" {
		return Proposal{}, fmt.Errorf("refactor for %s: %w", target.Location(), ErrEmptyCandidate)
	}

	log.WithFields(logrus.Fields{
		"lines":    countLines(code),
		"duration": time.Since(start),
	}).Debug("refactor candidate received")
	return Proposal{Code: code, Summary: summary}, nil
}

// Heal asks for a corrected candidate given the original code, the failing
// candidate and the test output
func (e *Engine) Heal(ctx context.Context, original, failed, testOutput string) (Proposal, error) {
	e.log.Info("requesting self-heal")

	resp, err := e.gen.Generate(ctx, buildHealPrompt(original, failed, testOutput))
	if err != nil {
		return Proposal{}, fmt.Errorf("generating self-heal: %w", err)
	}

	code, explanation := ParseResponse(resp)
	if code == "" {
		return Proposal{}, fmt.Errorf("self-heal: %w", ErrEmptyCandidate)
	}
	return Proposal{Code: code, Summary: "Self-heal: " + explanation}, nil
}

func countLines(s string) int {
	n := 1
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			n++
		}
	}
	return n
}
