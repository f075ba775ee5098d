package refactor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mohtion/mohtion/internal/types"
)

// ApplyCandidate replaces lines StartLine..EndLine of the target file under
// root with code. The file keeps its mode; nothing outside the span changes.
// It returns the previous file content so callers can roll back.
func ApplyCandidate(root string, target types.DebtTarget, code string) (previous []byte, err error) {
	path, err := resolveInRoot(root, target.FilePath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", target.FilePath, err)
	}
	previous, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", target.FilePath, err)
	}

	updated, err := replaceSpan(string(previous), target.StartLine, target.EndLine, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", target.FilePath, err)
	}
	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		// a short write may have truncated the file
		_ = os.WriteFile(path, previous, info.Mode().Perm())
		return nil, fmt.Errorf("writing %s: %w", target.FilePath, err)
	}
	return previous, nil
}

// Restore writes back content captured by ApplyCandidate
func Restore(root, relPath string, content []byte) error {
	path, err := resolveInRoot(root, relPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", relPath, err)
	}
	return os.WriteFile(path, content, info.Mode().Perm())
}

// replaceSpan swaps 1-based inclusive lines start..end of content for code
func replaceSpan(content string, start, end int, code string) (string, error) {
	lines := strings.Split(content, "\n")
	if start < 1 || start > end {
		return "", fmt.Errorf("invalid span %d-%d", start, end)
	}
	if end > len(lines) {
		return "", fmt.Errorf("span %d-%d is beyond end of file (%d lines)", start, end, len(lines))
	}

	out := make([]string, 0, len(lines)-(end-start+1)+strings.Count(code, "\n")+1)
	out = append(out, lines[:start-1]...)
	out = append(out, strings.Split(code, "\n")...)
	out = append(out, lines[end:]...)
	return strings.Join(out, "\n"), nil
}

func resolveInRoot(root, relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("path %q must be relative to the working copy", relPath)
	}
	path := filepath.Join(root, filepath.FromSlash(relPath))
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the working copy", relPath)
	}
	return path, nil
}
