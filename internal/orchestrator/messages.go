package orchestrator

import (
	"fmt"
	"path"
	"strings"

	"github.com/mohtion/mohtion/internal/config"
	"github.com/mohtion/mohtion/internal/types"
)

// branchName is unique per bounty: mohtion/<kind>-<id prefix>
func branchName(t types.DebtTarget, id string) string {
	short := strings.ReplaceAll(id, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("mohtion/%s-%s", strings.ReplaceAll(string(t.Kind), "_", "-"), short)
}

func subject(t types.DebtTarget) string {
	if t.FunctionName == "" {
		return path.Base(t.FilePath)
	}
	if t.TypeName != "" {
		return t.TypeName + "." + t.FunctionName
	}
	return t.FunctionName
}

func prTitle(t types.DebtTarget) string {
	switch t.Kind {
	case types.DebtComplexity:
		return fmt.Sprintf("[Mohtion] Reduce complexity of %s", subject(t))
	case types.DebtDuplicateLogic:
		return fmt.Sprintf("[Mohtion] Extract duplicated logic in %s", subject(t))
	case types.DebtMissingTypes:
		return fmt.Sprintf("[Mohtion] Add type annotations to %s", subject(t))
	case types.DebtDeprecatedUsage:
		return fmt.Sprintf("[Mohtion] Replace deprecated API usage in %s", subject(t))
	}
	return fmt.Sprintf("[Mohtion] Refactor %s", subject(t))
}

func commitMessage(b *types.BountyResult) string {
	var msg strings.Builder
	fmt.Fprintf(&msg, "refactor(%s): %s\n\n", path.Base(b.Target.FilePath), strings.TrimPrefix(prTitle(b.Target), "[Mohtion] "))
	msg.WriteString(b.Target.Description)
	msg.WriteString("\n")
	return msg.String()
}

func prBody(b *types.BountyResult, cfg *config.RepoConfig) string {
	t := b.Target
	var body strings.Builder

	body.WriteString("## Tech debt bounty\n\n")
	fmt.Fprintf(&body, "**Location:** `%s`\n", t.Location())
	fmt.Fprintf(&body, "**Issue:** %s\n", t.Description)
	fmt.Fprintf(&body, "**Severity:** %.2f\n\n", t.Severity)

	body.WriteString("## Changes\n\n")
	body.WriteString(b.Summary)
	body.WriteString("\n\n")

	body.WriteString("## Verification\n\n")
	command := cfg.TestCommand
	if command == "" {
		command = "auto-detected test command"
	}
	fmt.Fprintf(&body, "Tests pass (`%s`)", command)
	if b.RetryCount > 0 {
		fmt.Fprintf(&body, " after %d self-heal attempt(s)", b.RetryCount)
	}
	body.WriteString(".\n\n---\n_Opened by Mohtion, the tech-debt bounty hunter. Close the PR to decline the change._\n")
	return body.String()
}
