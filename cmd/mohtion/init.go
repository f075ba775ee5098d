package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mohtion/mohtion/internal/config"
)

var initForce bool

const configHeader = `# Mohtion scan policy. Keys left out keep their defaults.
# test_command is auto-detected (go.mod, package.json, pyproject.toml, ...) when unset.
`

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a default .mohtion.yaml",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		path := filepath.Join(dir, config.RepoConfigFile)

		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		data, err := config.DefaultRepoConfig().Marshal()
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, append([]byte(configHeader), data...), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", green("✓"), path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
	rootCmd.AddCommand(initCmd)
}
