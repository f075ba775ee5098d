package analyzer

import (
	"fmt"
	"regexp"
	"strings"
)

// PathFilter matches repo-relative paths against ignore globs.
//
// Globs use shell-style (fnmatch) semantics against the whole path: '*'
// matches any run of characters including '/', '?' matches one character and
// '[...]' is a character class ('[!...]' negates). A leading "**/" may also
// match zero directories, so "**/vendor/**" ignores both "vendor/x" and
// "a/vendor/x".
type PathFilter struct {
	patterns []string
	compiled []*regexp.Regexp

	// subset of compiled whose glob ends in '*' and so covers a whole subtree
	prunable []*regexp.Regexp
}

// NewPathFilter compiles the ignore globs
func NewPathFilter(patterns []string) (*PathFilter, error) {
	f := &PathFilter{patterns: append([]string(nil), patterns...)}
	for _, p := range patterns {
		variants := []string{p}
		if rest, ok := strings.CutPrefix(p, "**/"); ok && rest != "" {
			variants = append(variants, rest)
		}
		for _, v := range variants {
			re, err := regexp.Compile(translateGlob(v))
			if err != nil {
				return nil, fmt.Errorf("ignore pattern %q: %w", p, err)
			}
			f.compiled = append(f.compiled, re)
			if strings.HasSuffix(v, "*") {
				f.prunable = append(f.prunable, re)
			}
		}
	}
	return f, nil
}

// Patterns returns the source globs
func (f *PathFilter) Patterns() []string {
	return f.patterns
}

// Match reports whether a file path is ignored
func (f *PathFilter) Match(relPath string) bool {
	relPath = strings.TrimPrefix(relPath, "./")
	for _, re := range f.compiled {
		if re.MatchString(relPath) {
			return true
		}
	}
	return false
}

// MatchDir reports whether everything under a directory is ignored,
// letting the walker prune it instead of testing each file. Only globs ending
// in '*' can cover a subtree; "build?" matches "build/" but not "build/x.go".
func (f *PathFilter) MatchDir(relDir string) bool {
	relDir = strings.TrimSuffix(strings.TrimPrefix(relDir, "./"), "/") + "/"
	for _, re := range f.prunable {
		if re.MatchString(relDir) {
			return true
		}
	}
	return false
}

// translateGlob converts an fnmatch pattern into an anchored regular expression.
// An unterminated '[' is taken literally.
func translateGlob(pattern string) string {
	var sb strings.Builder
	sb.WriteString(`(?s)^`)

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			sb.WriteString(`.*`)
		case '?':
			sb.WriteString(`.`)
		case '[':
			j := i + 1
			if j < len(runes) && runes[j] == '!' {
				j++
			}
			if j < len(runes) && runes[j] == ']' {
				j++
			}
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			if j >= len(runes) {
				sb.WriteString(`\[`)
				continue
			}
			class := string(runes[i+1 : j])
			class = strings.ReplaceAll(class, `\`, `\\`)
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			} else if strings.HasPrefix(class, "^") {
				class = `\` + class
			}
			sb.WriteString("[" + class + "]")
			i = j
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	sb.WriteString(`$`)
	return sb.String()
}
