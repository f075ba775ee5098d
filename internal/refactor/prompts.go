package refactor

import (
	"fmt"
	"strings"

	"github.com/mohtion/mohtion/internal/analyzer"
	"github.com/mohtion/mohtion/internal/types"
)

// maxTestOutput bounds the test log sent back for self-healing; the tail is kept
// since failures are reported last
const maxTestOutput = 12000

func fenceTag(filePath string) string {
	return string(analyzer.DetectLanguage(filePath))
}

func buildProposePrompt(target types.DebtTarget) string {
	var context strings.Builder
	fmt.Fprintf(&context, "File: %s", target.FilePath)
	if target.TypeName != "" {
		fmt.Fprintf(&context, "\nType: %s", target.TypeName)
	}
	if target.FunctionName != "" {
		fmt.Fprintf(&context, "\nFunction: %s", target.FunctionName)
	}
	fmt.Fprintf(&context, "\nLines: %d-%d", target.StartLine, target.EndLine)

	tag := fenceTag(target.FilePath)

	return fmt.Sprintf(`You are an expert code refactoring assistant. Your task is to refactor the following code to address the identified technical debt.

%s

## Technical Debt Issue
%s

## Original Code
`+"```%s\n%s\n```"+`

## Requirements
1. Refactor the code to fix the identified issue
2. Preserve the exact same external behavior and API
3. Do not change function signatures or return types
4. Improve readability and maintainability
5. Keep the refactoring minimal and focused
6. Return the complete replacement for the original code: it is substituted for lines %d-%d verbatim, so include any new helper functions in the same block

## Response Format
Provide the refactored code in a single code block, followed by a brief summary of changes.

`+"```%s\n// Your refactored code here\n```"+`

Summary: Briefly describe what you changed and why.
`,
		context.String(),
		target.Description,
		tag, target.Snippet,
		target.StartLine, target.EndLine,
		tag,
	)
}

func buildHealPrompt(original, failed, testOutput string) string {
	return fmt.Sprintf(`You are an expert debugging assistant. A code refactoring caused tests to fail. Analyze the error and fix the refactored code.

## Original Code (working)
`+"```\n%s\n```"+`

## Refactored Code (broken)
`+"```\n%s\n```"+`

## Test Failure Output
`+"```\n%s\n```"+`

## Task
1. Analyze why the refactored code broke the tests
2. Fix the refactored code while still addressing the original tech debt
3. Ensure the fix maintains the same behavior as the original

## Response Format
Provide the fixed code in a single code block, followed by an explanation.

`+"```\n// Your fixed code here\n```"+`

Explanation: What was wrong and how you fixed it.
`,
		original, failed, tailTruncate(testOutput, maxTestOutput))
}

// tailTruncate keeps the last maxLen bytes of s, marking the cut
func tailTruncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := len(s) - maxLen
	// don't split a line
	if nl := strings.IndexByte(s[cut:], '\n'); nl >= 0 && nl < maxLen/2 {
		cut += nl + 1
	}
	return fmt.Sprintf("... [%d bytes truncated] ...\n%s", cut, s[cut:])
}
