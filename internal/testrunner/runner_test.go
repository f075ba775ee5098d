package testrunner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner() *Runner {
	logger, _ := test.NewNullLogger()
	return New(WithLogger(logger), WithWaitDelay(time.Second))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestRunPassing(t *testing.T) {
	dir := t.TempDir()
	res, err := newTestRunner().Run(context.Background(), dir, "echo all good")
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, "all good\n", res.Output)
	assert.Equal(t, "echo all good", res.Command)
}

func TestRunFailingIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	res, err := newTestRunner().Run(context.Background(), dir, "echo FAIL: TestEval >&2; exit 3")
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Output, "FAIL: TestEval")
}

func TestRunUsesWorkdir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "marker.txt", "here")
	res, err := newTestRunner().Run(context.Background(), dir, "cat marker.txt")
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, "here", res.Output)
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := newTestRunner().Run(ctx, dir, "sleep 30 & sleep 30; wait")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, res.Passed)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunNoCommandDetected(t *testing.T) {
	_, err := newTestRunner().Run(context.Background(), t.TempDir(), "  ")
	assert.ErrorIs(t, err, ErrNoTestCommand)
}

func TestRunDetectedCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Makefile", "test:\n\t@echo make-tests-ran\n")
	if _, err := os.Stat("/usr/bin/make"); err != nil {
		t.Skip("make not installed")
	}
	res, err := newTestRunner().Run(context.Background(), dir, "")
	require.NoError(t, err)
	assert.Equal(t, "make test", res.Command)
	assert.True(t, res.Passed)
	assert.Contains(t, res.Output, "make-tests-ran")
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{"go module", map[string]string{"go.mod": "module example.com/x\n\ngo 1.22\n"}, "go test ./..."},
		{"go wins over node", map[string]string{"go.mod": "module example.com/x\n", "package.json": "{}"}, "go test ./..."},
		{"pyproject", map[string]string{"pyproject.toml": "[project]\n"}, "pytest"},
		{"pytest ini", map[string]string{"pytest.ini": "[pytest]\n"}, "pytest"},
		{"setup.py", map[string]string{"setup.py": ""}, "pytest"},
		{"node", map[string]string{"package.json": "{}"}, "npm test"},
		{"rust", map[string]string{"Cargo.toml": "[package]\n"}, "cargo test"},
		{"makefile", map[string]string{"Makefile": "build:\n\tgo build\n\ntest:\n\tgo test\n"}, "make test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
			}
			got, err := Detect(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Makefile", "build:\n\tgo build\n")
	writeFile(t, dir, "README.md", "# hi\n")
	_, err := Detect(dir)
	assert.ErrorIs(t, err, ErrNoTestCommand)
}

func TestDetectBrokenGoMod(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "go.mod", "module\n")
	_, err := Detect(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "go.mod")
}
