package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohtion/mohtion/internal/config"
	"github.com/mohtion/mohtion/internal/types"
)

func branchy(name string, branches int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "func %s(x int) int {\n", name)
	for i := 0; i < branches; i++ {
		fmt.Fprintf(&sb, "\tif x == %d {\n\t\treturn %d\n\t}\n", i, i+1)
	}
	sb.WriteString("\treturn x\n}\n")
	return sb.String()
}

func writeFile(t *testing.T, root, rel string, content []byte) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, content, 0644))
}

// fixtureRepo lays out a small repository with one hotspot per interesting location
func fixtureRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "main.go", []byte("package main\n\n"+branchy("route", 12)))
	writeFile(t, root, "internal/calc/calc.go", []byte("package calc\n\n"+branchy("eval", 15)+"\n"+branchy("small", 1)))
	writeFile(t, root, "vendor/dep/dep.go", []byte("package dep\n\n"+branchy("vendored", 20)))
	writeFile(t, root, "web/node_modules/x/x.go", []byte("package x\n\n"+branchy("ignored", 20)))
	writeFile(t, root, ".git/hooks/h.go", []byte("package h\n\n"+branchy("hook", 20)))
	writeFile(t, root, "broken.go", []byte("package broken\nfunc {"))
	writeFile(t, root, "README.md", []byte("# readme\n"))
	writeFile(t, root, "bin/blob.go", []byte("package blob\x00\x01\x02"))
	writeFile(t, root, "latin1.go", []byte("package latin\n// caf\xe9\n"+branchy("latin", 20)))
	return root
}

func newScanner(t *testing.T, opts ...Option) *Scanner {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s, err := New(config.DefaultRepoConfig(), append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	return s
}

func TestScanFindsHotspots(t *testing.T) {
	root := fixtureRepo(t)
	targets, stats, err := newScanner(t).ScanWithStats(context.Background(), root)
	require.NoError(t, err)

	var locations []string
	for _, tg := range targets {
		require.NoError(t, tg.Validate())
		locations = append(locations, tg.FilePath+":"+tg.FunctionName)
	}
	assert.Equal(t, []string{"internal/calc/calc.go:eval", "main.go:route"}, locations)

	assert.Equal(t, int64(3), stats.DirsPruned, ".git, vendor and node_modules")
	// main.go, calc.go and broken.go; parse failures still count as analyzed
	assert.Equal(t, int64(3), stats.FilesAnalyzed)
	assert.Equal(t, 2, stats.Targets)
}

func TestScanSkipsBinaryAndInvalidUTF8(t *testing.T) {
	root := fixtureRepo(t)
	_, stats, err := newScanner(t).ScanWithStats(context.Background(), root)
	require.NoError(t, err)
	// README.md has no analyzer, blob.go has NUL bytes, latin1.go is not UTF-8
	assert.Equal(t, int64(3), stats.FilesSkipped)
}

func TestScanIdempotent(t *testing.T) {
	root := fixtureRepo(t)
	s := newScanner(t, WithConcurrency(4))

	first, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := s.Scan(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestScanOrderIndependentOfConcurrency(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 30; i++ {
		writeFile(t, root, fmt.Sprintf("pkg%02d/f.go", i), []byte(fmt.Sprintf("package p%d\n\n%s", i, branchy("f", 11+i%5))))
	}

	serial, err := newScanner(t, WithConcurrency(1)).Scan(context.Background(), root)
	require.NoError(t, err)
	parallel, err := newScanner(t, WithConcurrency(16)).Scan(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, serial, 30)
	assert.Equal(t, serial, parallel)
}

func TestScanEmptyRepository(t *testing.T) {
	targets, err := newScanner(t).Scan(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestScanCustomIgnore(t *testing.T) {
	root := fixtureRepo(t)
	cfg := config.DefaultRepoConfig()
	cfg.IgnorePaths = append(cfg.IgnorePaths, "internal/**")

	s, err := New(cfg)
	require.NoError(t, err)
	targets, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "main.go", targets[0].FilePath)
}

func TestScanThresholdFromConfig(t *testing.T) {
	root := fixtureRepo(t)
	cfg := config.DefaultRepoConfig()
	cfg.Thresholds.CyclomaticComplexity = 14

	s, err := New(cfg)
	require.NoError(t, err)
	targets, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "eval", targets[0].FunctionName)
	assert.Equal(t, types.DebtComplexity, targets[0].Kind)
}

func TestScanCancelled(t *testing.T) {
	root := fixtureRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newScanner(t).Scan(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanMissingRoot(t *testing.T) {
	_, err := newScanner(t).Scan(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestIsBinary(t *testing.T) {
	assert.False(t, isBinary([]byte("package x\n")))
	assert.False(t, isBinary(nil))
	assert.True(t, isBinary([]byte{'a', 0, 'b'}))
	assert.True(t, isBinary([]byte{0xff, 0xfe}))
}
