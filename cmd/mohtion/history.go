package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mohtion/mohtion/internal/storage"
	"github.com/mohtion/mohtion/internal/types"
)

var (
	historyOwner  string
	historyRepo   string
	historyStatus string
	historyLimit  int
	historyJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past bounties",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status := types.BountyStatus(historyStatus)
		if status != "" && !status.IsValid() {
			return fmt.Errorf("unknown status %q", historyStatus)
		}

		ctx := cmd.Context()
		store, err := openStore(ctx, settings)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		bounties, err := store.ListBounties(ctx, storage.Filter{
			Owner:  historyOwner,
			Repo:   historyRepo,
			Status: status,
			Limit:  historyLimit,
		})
		if err != nil {
			return err
		}

		if historyJSON {
			if bounties == nil {
				bounties = []*types.BountyResult{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(bounties)
		}
		printHistory(cmd.OutOrStdout(), bounties)
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyOwner, "owner", "", "Only bounties for this owner")
	historyCmd.Flags().StringVar(&historyRepo, "repo", "", "Only bounties for this repository")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Only bounties in this status")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Show at most n bounties (0 = all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print bounties as JSON")
	rootCmd.AddCommand(historyCmd)
}

func printHistory(out io.Writer, bounties []*types.BountyResult) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	if len(bounties) == 0 {
		fmt.Fprintf(out, "%s\n", gray("No bounties recorded"))
		return
	}
	for _, b := range bounties {
		paint := statusColor(b.Status)
		fmt.Fprintf(out, "%s %s %s/%s %s\n",
			gray(b.StartedAt.Local().Format("2006-01-02 15:04")),
			paint(fmt.Sprintf("%s %-11s", types.StatusIcon(b.Status), b.Status)),
			b.Owner, b.Repo, b.Target.Location())
		switch {
		case b.PRURL != "":
			fmt.Fprintf(out, "    %s\n", b.PRURL)
		case b.ErrorMessage != "":
			fmt.Fprintf(out, "    %s\n", gray(b.ErrorMessage))
		}
		if b.RetryCount > 0 {
			fmt.Fprintf(out, "    %s\n", gray(fmt.Sprintf("%d self-heal attempt(s)", b.RetryCount)))
		}
	}
}
