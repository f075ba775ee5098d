package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRepoConfig(t *testing.T) {
	cfg := DefaultRepoConfig()

	assert.Equal(t, "24h", cfg.ScanInterval)
	assert.Equal(t, 3, cfg.MaxPRsPerDay)
	assert.Empty(t, cfg.TestCommand)
	assert.Equal(t, []string{"complexity", "type_hints", "duplicates"}, cfg.Analyzers)
	assert.Equal(t, Thresholds{CyclomaticComplexity: 10, FunctionLength: 50, NestingDepth: 4}, cfg.Thresholds)
	assert.Equal(t, []string{"**/node_modules/**", "**/.venv/**", "**/vendor/**"}, cfg.IgnorePaths)
	assert.Equal(t, 3, cfg.MaxRetries)
	require.NoError(t, cfg.Validate())
}

func TestLoadRepoConfigMissingFile(t *testing.T) {
	cfg, err := LoadRepoConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultRepoConfig(), cfg)
}

func TestLoadRepoConfigPartialFile(t *testing.T) {
	dir := t.TempDir()
	content := `
test_command: make check
thresholds:
  cyclomatic_complexity: 15
ignore_paths:
  - "gen/**"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, RepoConfigFile), []byte(content), 0644))

	cfg, err := LoadRepoConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "make check", cfg.TestCommand)
	assert.Equal(t, 15, cfg.Thresholds.CyclomaticComplexity)
	assert.Equal(t, 50, cfg.Thresholds.FunctionLength, "unset threshold keeps its default")
	assert.Equal(t, 4, cfg.Thresholds.NestingDepth)
	assert.Equal(t, []string{"gen/**"}, cfg.IgnorePaths)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "24h", cfg.ScanInterval)
}

func TestParseRepoConfigEnvExpansion(t *testing.T) {
	t.Setenv("MOHTION_TEST_CMD", "go test -race ./...")

	cfg, err := ParseRepoConfig([]byte(`
test_command: ${MOHTION_TEST_CMD}
max_retries: ${MOHTION_UNSET_RETRIES:-5}
`))
	require.NoError(t, err)
	assert.Equal(t, "go test -race ./...", cfg.TestCommand)
	assert.Equal(t, 5, cfg.MaxRetries)
}

func TestParseRepoConfigInvalid(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{"zero ceiling", "thresholds:\n  cyclomatic_complexity: 0\n", "cyclomatic_complexity"},
		{"negative retries", "max_retries: -1\n", "max_retries"},
		{"bad interval", "scan_interval: daily\n", "scan_interval"},
		{"empty ignore glob", "ignore_paths: ['']\n", "ignore_paths[0]"},
		{"not yaml", "thresholds: [1, 2\n", "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRepoConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestScanEvery(t *testing.T) {
	cfg := DefaultRepoConfig()
	d, err := cfg.ScanEvery()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)
}

func TestRepoConfigMarshalRoundTrip(t *testing.T) {
	data, err := DefaultRepoConfig().Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "cyclomatic_complexity: 10")

	cfg, err := ParseRepoConfig(data)
	require.NoError(t, err)
	assert.Equal(t, DefaultRepoConfig(), cfg)
}
