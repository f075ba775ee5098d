package refactor

import (
	"strings"
)

const (
	// DefaultSummary is used when a fenced response carries no prose
	DefaultSummary = "Code refactored to reduce complexity."

	// UnfencedSummary is used when the response has no code fence at all
	UnfencedSummary = "Code refactored."
)

const fence = "```"

var summaryLabels = []string{"Summary:", "Explanation:"}

// ParseResponse splits free-form model output into candidate code and a summary.
//
// The first fenced block is the candidate. Its opening fence may carry a
// single-token info string (a language tag), which is dropped; a multi-token
// info string is kept as the first line of code. A known language tag alone
// on the first code line is dropped as well. Prose after the first block
// and outside any later block becomes the summary. An unclosed fence makes
// the rest of the text the candidate. Without any fence the whole trimmed
// text is the candidate. ParseResponse never fails; callers must reject an
// empty candidate.
func ParseResponse(text string) (code, summary string) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	open := -1
	for i, line := range lines {
		if isFence(line) {
			open = i
			break
		}
	}
	if open < 0 {
		return strings.TrimSpace(text), UnfencedSummary
	}

	var codeLines []string
	if info := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(lines[open]), "`")); info != "" && len(strings.Fields(info)) > 1 {
		codeLines = append(codeLines, info)
	}

	closeAt := -1
	for i := open + 1; i < len(lines); i++ {
		if isFence(lines[i]) {
			closeAt = i
			break
		}
		codeLines = append(codeLines, lines[i])
	}
	code = dropTagLine(trimBlankLines(codeLines))

	if closeAt < 0 {
		return code, DefaultSummary
	}

	var prose []string
	inFence := false
	for _, line := range lines[closeAt+1:] {
		if isFence(line) {
			inFence = !inFence
			continue
		}
		if !inFence {
			prose = append(prose, line)
		}
	}
	summary = stripLabel(strings.TrimSpace(strings.Join(prose, "\n")))
	if summary == "" {
		summary = DefaultSummary
	}
	return code, summary
}

var languageTags = map[string]bool{
	"go": true, "golang": true,
	"python": true, "py": true,
	"javascript": true, "js": true, "jsx": true,
	"typescript": true, "ts": true, "tsx": true,
	"rust": true, "rs": true,
	"java": true,
}

// dropTagLine removes a leading line holding only a language tag
func dropTagLine(code string) string {
	first, rest, _ := strings.Cut(code, "\n")
	if !languageTags[strings.ToLower(strings.TrimSpace(first))] {
		return code
	}
	return trimBlankLines(strings.Split(rest, "\n"))
}

func isFence(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), fence)
}

// trimBlankLines drops leading and trailing blank lines, keeping indentation
func trimBlankLines(lines []string) string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

func stripLabel(s string) string {
	for _, label := range summaryLabels {
		if rest, ok := strings.CutPrefix(s, label); ok {
			return strings.TrimSpace(rest)
		}
	}
	return s
}
