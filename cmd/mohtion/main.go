// Command mohtion finds tech debt in a repository, fixes one instance, and
// opens a pull request once the repository's tests pass.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mohtion/mohtion/internal/config"
)

var (
	envFile  string
	logLevel string
	dbPath   string

	settings config.Settings
	logger   *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mohtion",
	Short: "Autonomous tech debt bounty hunter",
	Long: `Mohtion scans repositories for tech debt (complex functions, duplicated
logic), asks a language model to fix the most valuable target, verifies the
fix against the repository's own tests, and opens a pull request.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&envFile, "config", "c", ".env", "Settings file in dotenv format; real environment variables win")
	pf.StringVar(&logLevel, "log-level", "", "Log level (overrides MOHTION_LOG_LEVEL)")
	pf.StringVar(&dbPath, "db", "", "Bounty history database (overrides MOHTION_DB_PATH)")
}

func setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	s, err := config.SettingsFromEnv()
	if err != nil {
		return err
	}
	if logLevel != "" {
		s.LogLevel = logLevel
	}
	if dbPath != "" {
		s.DBPath = dbPath
	}
	if err := s.Validate(); err != nil {
		return err
	}

	l, err := newLogger(s.LogLevel, s.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	settings = s
	logger = l
	return nil
}

// newLogger builds the process logger; output goes to stderr so stdout stays parseable
func newLogger(level, format string, out io.Writer) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l.SetLevel(lvl)

	switch format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
