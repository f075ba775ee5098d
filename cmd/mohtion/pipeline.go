package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/mohtion/mohtion/internal/ai"
	"github.com/mohtion/mohtion/internal/config"
	"github.com/mohtion/mohtion/internal/git"
	"github.com/mohtion/mohtion/internal/notify"
	"github.com/mohtion/mohtion/internal/orchestrator"
	"github.com/mohtion/mohtion/internal/refactor"
	"github.com/mohtion/mohtion/internal/storage"
	"github.com/mohtion/mohtion/internal/testrunner"
	"github.com/mohtion/mohtion/internal/types"
	"github.com/mohtion/mohtion/internal/vcs"
	"github.com/mohtion/mohtion/internal/worker"
)

// buildOrchestrator wires the production collaborators (git and gh, Anthropic, sh)
func buildOrchestrator(ctx context.Context, s config.Settings, recorder orchestrator.Recorder, observer orchestrator.Observer, keepWorkdir bool) (*orchestrator.Orchestrator, error) {
	client, err := ai.NewClient(&ai.Config{
		APIKey: s.AnthropicAPIKey,
		Model:  s.Model,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}

	g, err := git.NewGit(ctx)
	if err != nil {
		return nil, err
	}
	gh, err := vcs.NewGitHub(vcs.Config{
		Host:          s.GitHubHost,
		WorkspaceRoot: s.WorkspaceRoot,
		Git:           g,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	return orchestrator.New(orchestrator.Config{
		VCS:         gh,
		Tests:       testrunner.New(testrunner.WithLogger(logger)),
		Remediator:  refactor.NewEngine(client, logger),
		Recorder:    recorder,
		Observer:    observer,
		KeepWorkdir: keepWorkdir,
		Logger:      logger,
	})
}

func openStore(ctx context.Context, s config.Settings) (storage.Storage, error) {
	store, err := storage.NewStorage(ctx, &storage.Config{Path: s.DBPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open bounty history: %w", err)
	}
	return store, nil
}

// buildNotifier picks MQTT when a broker is configured, the log otherwise
func buildNotifier(s config.Settings) (worker.Notifier, func(), error) {
	if s.MQTTBroker == "" {
		return notify.NewLogNotifier(logger), func() {}, nil
	}
	n, err := notify.NewMQTTNotifier(notify.MQTTConfig{
		Broker: s.MQTTBroker,
		Topic:  s.MQTTTopic,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return n, n.Close, nil
}

// printTransition reports each status change of a bounty on the terminal
func printTransition(out io.Writer) orchestrator.Observer {
	return func(b types.BountyResult) {
		line := fmt.Sprintf("%s %-11s %s", types.StatusIcon(b.Status), b.Status, b.Target.Location())
		if b.Status == types.StatusRetrying {
			line += fmt.Sprintf(" (self-heal %d)", b.RetryCount)
		}
		fmt.Fprintln(out, statusColor(b.Status)(line))
	}
}

func statusColor(s types.BountyStatus) func(a ...interface{}) string {
	switch s {
	case types.StatusSuccess:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	case types.StatusFailed:
		return color.New(color.FgRed).SprintFunc()
	case types.StatusAbandoned:
		return color.New(color.FgYellow).SprintFunc()
	case types.StatusPending:
		return color.New(color.FgHiBlack).SprintFunc()
	default:
		return color.New(color.FgCyan).SprintFunc()
	}
}

func severityColor(sev float64) func(a ...interface{}) string {
	switch {
	case sev >= 0.7:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case sev >= 0.4:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgGreen).SprintFunc()
	}
}
