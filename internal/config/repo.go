package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RepoConfigFile is the per-repository config file name, looked up in the repository root
const RepoConfigFile = ".mohtion.yaml"

// Thresholds holds the analyzer limits
type Thresholds struct {
	// CyclomaticComplexity is the ceiling above which a function is reported
	// Default: 10
	CyclomaticComplexity int `yaml:"cyclomatic_complexity" json:"cyclomatic_complexity"`

	// FunctionLength is the maximum function length in lines
	// Default: 50
	FunctionLength int `yaml:"function_length" json:"function_length"`

	// NestingDepth is the maximum block nesting depth
	// Default: 4
	NestingDepth int `yaml:"nesting_depth" json:"nesting_depth"`
}

// RepoConfig is the scan policy for one repository.
// It is loaded once per scan and treated as immutable afterwards.
type RepoConfig struct {
	ScanInterval string     `yaml:"scan_interval" json:"scan_interval"`
	MaxPRsPerDay int        `yaml:"max_prs_per_day" json:"max_prs_per_day"`
	TestCommand  string     `yaml:"test_command,omitempty" json:"test_command,omitempty"`
	Analyzers    []string   `yaml:"analyzers" json:"analyzers"`
	Thresholds   Thresholds `yaml:"thresholds" json:"thresholds"`
	IgnorePaths  []string   `yaml:"ignore_paths" json:"ignore_paths"`

	// MaxRetries bounds the self-heal attempts of one bounty
	// Default: 3
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
}

// DefaultRepoConfig returns the configuration used when no .mohtion.yaml exists
func DefaultRepoConfig() *RepoConfig {
	return &RepoConfig{
		ScanInterval: "24h",
		MaxPRsPerDay: 3,
		Analyzers:    []string{"complexity", "type_hints", "duplicates"},
		Thresholds: Thresholds{
			CyclomaticComplexity: 10,
			FunctionLength:       50,
			NestingDepth:         4,
		},
		IgnorePaths: []string{
			"**/node_modules/**",
			"**/.venv/**",
			"**/vendor/**",
		},
		MaxRetries: 3,
	}
}

// LoadRepoConfig reads .mohtion.yaml from a repository root.
// A missing file yields the defaults; keys missing from the file keep their defaults.
func LoadRepoConfig(repoRoot string) (*RepoConfig, error) {
	return LoadRepoConfigFile(filepath.Join(repoRoot, RepoConfigFile))
}

// LoadRepoConfigFile reads a repo config from an explicit path
func LoadRepoConfigFile(path string) (*RepoConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultRepoConfig(), nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseRepoConfig(data)
}

// ParseRepoConfig decodes YAML over the defaults, expanding ${VAR} and ${VAR:-default} first
func ParseRepoConfig(data []byte) (*RepoConfig, error) {
	cfg := DefaultRepoConfig()

	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", RepoConfigFile, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", RepoConfigFile, err)
	}
	return cfg, nil
}

// Validate checks if the configuration has valid values
func (c *RepoConfig) Validate() error {
	if c.Thresholds.CyclomaticComplexity <= 0 {
		return fmt.Errorf("thresholds.cyclomatic_complexity must be positive (got %d)", c.Thresholds.CyclomaticComplexity)
	}
	if c.Thresholds.FunctionLength <= 0 {
		return fmt.Errorf("thresholds.function_length must be positive (got %d)", c.Thresholds.FunctionLength)
	}
	if c.Thresholds.NestingDepth <= 0 {
		return fmt.Errorf("thresholds.nesting_depth must be positive (got %d)", c.Thresholds.NestingDepth)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative (got %d)", c.MaxRetries)
	}
	if c.MaxPRsPerDay < 0 {
		return fmt.Errorf("max_prs_per_day must be non-negative (got %d)", c.MaxPRsPerDay)
	}
	if _, err := c.ScanEvery(); err != nil {
		return err
	}
	for i, p := range c.IgnorePaths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("ignore_paths[%d] is empty", i)
		}
	}
	return nil
}

// ScanEvery parses ScanInterval ("24h", "90m", ...)
func (c *RepoConfig) ScanEvery() (time.Duration, error) {
	d, err := time.ParseDuration(c.ScanInterval)
	if err != nil {
		return 0, fmt.Errorf("scan_interval %q: %w", c.ScanInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("scan_interval must be positive (got %s)", c.ScanInterval)
	}
	return d, nil
}

// Marshal renders the config as YAML (used by `mohtion init`)
func (c *RepoConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

var envVarPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)(?::-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} with its value (empty if unset)
// and ${VAR:-default} with its value or the default
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		if val, ok := os.LookupEnv(sub[1]); ok {
			return val
		}
		if len(sub) >= 3 {
			return sub[2]
		}
		return ""
	})
}
