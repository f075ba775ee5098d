package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mohtion/mohtion/internal/types"
)

var (
	huntOwner  string
	huntRepo   string
	huntBranch string
	huntKeep   bool
)

var huntCmd = &cobra.Command{
	Use:   "hunt",
	Short: "Run one bounty against a GitHub repository",
	Long: `Clone the repository, fix its most valuable tech debt target, run its
tests (self-healing failed attempts), and open a pull request on success.

Requires ANTHROPIC_API_KEY, and gh authenticated for the target host.`,
	Example: `  mohtion hunt --owner acme --repo calc
  mohtion hunt --owner acme --repo calc --branch develop --keep`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, settings.JobTimeout)
		defer cancel()

		store, err := openStore(ctx, settings)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		out := cmd.OutOrStdout()
		orch, err := buildOrchestrator(ctx, settings, store, printTransition(out), huntKeep)
		if err != nil {
			return err
		}

		b, err := orch.Run(ctx, huntOwner, huntRepo, huntBranch)
		if err != nil {
			return err
		}
		if b == nil {
			fmt.Fprintf(out, "%s\n", color.GreenString("No tech debt found in %s/%s", huntOwner, huntRepo))
			return nil
		}
		printBounty(out, b)
		if b.Status != types.StatusSuccess {
			return fmt.Errorf("bounty %s: %s", b.ID, b.Status)
		}
		return nil
	},
}

func init() {
	huntCmd.Flags().StringVar(&huntOwner, "owner", "", "Repository owner")
	huntCmd.Flags().StringVar(&huntRepo, "repo", "", "Repository name")
	huntCmd.Flags().StringVar(&huntBranch, "branch", "main", "Branch to scan")
	huntCmd.Flags().BoolVar(&huntKeep, "keep", false, "Keep the working copy on disk")
	_ = huntCmd.MarkFlagRequired("owner")
	_ = huntCmd.MarkFlagRequired("repo")
	rootCmd.AddCommand(huntCmd)
}

func printBounty(out io.Writer, b *types.BountyResult) {
	paint := statusColor(b.Status)
	fmt.Fprintf(out, "\n%s\n", paint(fmt.Sprintf("%s Bounty %s", types.StatusIcon(b.Status), b.Status)))
	fmt.Fprintf(out, "  ID:       %s\n", b.ID)
	fmt.Fprintf(out, "  Target:   %s\n", b.Target.Location())
	fmt.Fprintf(out, "  Issue:    %s\n", b.Target.Description)
	fmt.Fprintf(out, "  Retries:  %d\n", b.RetryCount)
	fmt.Fprintf(out, "  Duration: %s\n", b.Duration().Round(time.Millisecond))
	if b.PRURL != "" {
		fmt.Fprintf(out, "  PR:       %s\n", b.PRURL)
	}
	if b.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:    %s\n", color.RedString("%s", b.ErrorMessage))
	}
}
