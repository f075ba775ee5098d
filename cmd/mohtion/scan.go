package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mohtion/mohtion/internal/config"
	"github.com/mohtion/mohtion/internal/scanner"
	"github.com/mohtion/mohtion/internal/types"
)

var (
	scanJSON       bool
	scanLimit      int
	scanRepoConfig string
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Scan a local checkout for tech debt",
	Long: `Run the analyzers over a local directory and list the debt targets,
most valuable first. Nothing is modified.

The scan policy comes from <path>/.mohtion.yaml unless --repo-config is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) > 0 {
			root = args[0]
		}

		cfg, err := loadScanConfig(root)
		if err != nil {
			return err
		}
		s, err := scanner.New(cfg, scanner.WithLogger(logger))
		if err != nil {
			return err
		}
		targets, stats, err := s.ScanWithStats(cmd.Context(), root)
		if err != nil {
			return err
		}
		types.SortBySeverity(targets)
		if scanLimit > 0 && len(targets) > scanLimit {
			targets = targets[:scanLimit]
		}

		if scanJSON {
			if targets == nil {
				targets = []types.DebtTarget{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Targets []types.DebtTarget `json:"targets"`
				Stats   scanner.Stats      `json:"stats"`
			}{targets, stats})
		}
		printTargets(cmd.OutOrStdout(), targets, stats)
		return nil
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print targets as JSON")
	scanCmd.Flags().IntVarP(&scanLimit, "limit", "n", 0, "Show at most n targets (0 = all)")
	scanCmd.Flags().StringVar(&scanRepoConfig, "repo-config", "", "Scan policy file to use instead of <path>/.mohtion.yaml")
	rootCmd.AddCommand(scanCmd)
}

func loadScanConfig(root string) (*config.RepoConfig, error) {
	if scanRepoConfig != "" {
		return config.LoadRepoConfigFile(scanRepoConfig)
	}
	return config.LoadRepoConfig(root)
}

func printTargets(out io.Writer, targets []types.DebtTarget, stats scanner.Stats) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(out, "\n%s\n\n", cyan("=== Tech Debt Targets ==="))
	if len(targets) == 0 {
		fmt.Fprintf(out, "  %s\n", gray("No tech debt found"))
	}
	for i, t := range targets {
		fmt.Fprintf(out, "%3d. %s  %-22s %s\n", i+1, severityColor(t.Severity)(fmt.Sprintf("%.2f", t.Severity)), t.Kind, t.Location())
		fmt.Fprintf(out, "     %s\n", gray(t.Description))
	}
	fmt.Fprintf(out, "\n%s\n", gray(fmt.Sprintf("%d files analyzed, %d skipped, %d directories pruned in %s",
		stats.FilesAnalyzed, stats.FilesSkipped, stats.DirsPruned, stats.Duration.Round(time.Millisecond))))
}
