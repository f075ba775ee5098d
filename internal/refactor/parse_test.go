package refactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantCode    string
		wantSummary string
	}{
		{
			name:        "language tag and summary",
			input:       "Here you go:\n```go\nfunc a() int {\n\treturn 1\n}\n```\nSummary: Extracted a helper.",
			wantCode:    "func a() int {\n\treturn 1\n}",
			wantSummary: "Extracted a helper.",
		},
		{
			name:        "untagged fence",
			input:       "```\nx := 1\n```\nSimplified.",
			wantCode:    "x := 1",
			wantSummary: "Simplified.",
		},
		{
			name:        "language tag on its own line",
			input:       "```\ngo\nfunc x() {}\n```\nDone.",
			wantCode:    "func x() {}",
			wantSummary: "Done.",
		},
		{
			name:        "tag line after blank line",
			input:       "```\n\n  Python\n\ndef f():\n    pass\n```",
			wantCode:    "def f():\n    pass",
			wantSummary: DefaultSummary,
		},
		{
			name:        "bare identifier that is not a tag is code",
			input:       "```\nreturn\n```",
			wantCode:    "return",
			wantSummary: DefaultSummary,
		},
		{
			name:        "no prose after block",
			input:       "```python\ndef f():\n    return 1\n```",
			wantCode:    "def f():\n    return 1",
			wantSummary: DefaultSummary,
		},
		{
			name:        "only first block is authoritative",
			input:       "```go\nfirst()\n```\nUsed first.\n```go\nsecond()\n```\nMore notes.",
			wantCode:    "first()",
			wantSummary: "Used first.\nMore notes.",
		},
		{
			name:        "prose before the block is not summary",
			input:       "I refactored it.\n```go\nrun()\n```\nExplanation: Flattened the loop.",
			wantCode:    "run()",
			wantSummary: "Flattened the loop.",
		},
		{
			name:        "unclosed fence",
			input:       "```go\nfunc a() {\n\tb()\n}\n",
			wantCode:    "func a() {\n\tb()\n}",
			wantSummary: DefaultSummary,
		},
		{
			name:        "no fence",
			input:       "  func a() {}\n\n",
			wantCode:    "func a() {}",
			wantSummary: UnfencedSummary,
		},
		{
			name:        "empty response",
			input:       "",
			wantCode:    "",
			wantSummary: UnfencedSummary,
		},
		{
			name:        "empty block",
			input:       "```go\n```\nNothing to change.",
			wantCode:    "",
			wantSummary: "Nothing to change.",
		},
		{
			name:        "multi-token info string is code",
			input:       "```x := compute()\ny := x\n```",
			wantCode:    "x := compute()\ny := x",
			wantSummary: DefaultSummary,
		},
		{
			name:        "indentation preserved and blank edges trimmed",
			input:       "```go\n\n\tindented()\n\n```\n",
			wantCode:    "\tindented()",
			wantSummary: DefaultSummary,
		},
		{
			name:        "crlf line endings",
			input:       "```go\r\na()\r\n```\r\nDone.\r\n",
			wantCode:    "a()",
			wantSummary: "Done.",
		},
		{
			name:        "indented fences",
			input:       "  ```go\n  a()\n  ```\n ok",
			wantCode:    "  a()",
			wantSummary: "ok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, summary := ParseResponse(tt.input)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantSummary, summary)
		})
	}
}

func TestTailTruncate(t *testing.T) {
	assert.Equal(t, "short", tailTruncate("short", 10))

	long := "line one\nline two\nline three\nFAIL: TestX\n"
	got := tailTruncate(long, 20)
	assert.Contains(t, got, "FAIL: TestX")
	assert.Contains(t, got, "bytes truncated")
	assert.NotContains(t, got, "line one")
}
