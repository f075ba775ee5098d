// Package analyzer turns one source file into debt targets.
//
// Analyzers are strategies keyed by source language: the scanner detects a
// file's language and runs only the analyzers declaring that language.
// Adding a language means adding analyzers, not changing existing ones.
package analyzer

import (
	"context"
	"path"
	"strings"

	"github.com/mohtion/mohtion/internal/types"
)

// Language identifies a source language front-end
type Language string

const (
	LanguageUnknown    Language = ""
	LanguageGo         Language = "go"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageRust       Language = "rust"
	LanguageJava       Language = "java"
)

var extensions = map[string]Language{
	".go":   LanguageGo,
	".py":   LanguagePython,
	".pyi":  LanguagePython,
	".js":   LanguageJavaScript,
	".mjs":  LanguageJavaScript,
	".cjs":  LanguageJavaScript,
	".jsx":  LanguageJavaScript,
	".ts":   LanguageTypeScript,
	".tsx":  LanguageTypeScript,
	".rs":   LanguageRust,
	".java": LanguageJava,
}

// DetectLanguage maps a file path to its language by extension
func DetectLanguage(filePath string) Language {
	return extensions[strings.ToLower(path.Ext(filePath))]
}

// Analyzer produces debt targets from a single file.
// Implementations must be stateless across files: results may not depend on scan order.
type Analyzer interface {
	// Name is the config name that enables the analyzer (e.g. "complexity")
	Name() string

	// Language is the source language the analyzer understands
	Language() Language

	// ShouldAnalyze is a cheap pre-parse filter on the repo-relative path
	ShouldAnalyze(relPath string) bool

	// AnalyzeFile returns the findings for one file. Unparsable input yields
	// no findings and no error; errors are reserved for cancellation.
	AnalyzeFile(ctx context.Context, relPath string, content []byte) ([]types.DebtTarget, error)
}

// base carries the path filter shared by the built-in analyzers
type base struct {
	filter *PathFilter
	lang   Language
}

func (b base) Language() Language {
	return b.lang
}

func (b base) ShouldAnalyze(relPath string) bool {
	if b.filter != nil && b.filter.Match(relPath) {
		return false
	}
	return DetectLanguage(relPath) == b.lang
}
