package analyzer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohtion/mohtion/internal/types"
)

const duplicateFixture = `package p

func scale(x int) int {
	y := x * 2
	if y > 10 {
		return y
	}
	return 0
}

// scaleAgain is the same logic with different formatting.
func scaleAgain(x int) int {
	y := x*2 // doubled
	if y > 10 { return y }


	return 0
}

func unrelated(x int) int {
	y := x + 2
	if y > 10 {
		return y
	}
	return 1
}
`

func analyzeDuplicates(t *testing.T, src string) []types.DebtTarget {
	t.Helper()
	targets, err := NewDuplicateAnalyzer(nil, nil).AnalyzeFile(context.Background(), "p.go", []byte(src))
	require.NoError(t, err)
	for _, tg := range targets {
		require.NoError(t, tg.Validate())
	}
	return targets
}

func TestDuplicateAnalyzerFormattingInsensitive(t *testing.T) {
	targets := analyzeDuplicates(t, duplicateFixture)
	require.Len(t, targets, 2)

	assert.Equal(t, "scale", targets[0].FunctionName)
	assert.Equal(t, 3, targets[0].StartLine)
	assert.Equal(t, 9, targets[0].EndLine)
	assert.Equal(t, "scaleAgain", targets[1].FunctionName)
	assert.Equal(t, 12, targets[1].StartLine)

	assert.Equal(t, "Duplicate code logic found. Identical to scaleAgain (line 12).", targets[0].Description)
	assert.Equal(t, "Duplicate code logic found. Identical to scale (line 3).", targets[1].Description)

	for _, tg := range targets {
		assert.Equal(t, types.DebtDuplicateLogic, tg.Kind)
		assert.Equal(t, 2.0, tg.MetricValue())
		// 4 counted lines (the closing brace is skipped): min(1, 4/20) * 1.1
		assert.InDelta(t, 0.22, tg.Severity, 1e-9)
	}
}

func TestDuplicateAnalyzerGroupOfN(t *testing.T) {
	body := "{\n\ttotal := 0\n\tfor _, v := range vs {\n\t\ttotal += v\n\t}\n\treturn total\n}\n"
	for n := 2; n <= 5; n++ {
		var src strings.Builder
		src.WriteString("package p\n\n")
		for i := 0; i < n; i++ {
			fmt.Fprintf(&src, "func sum%d(vs []int) int %s\n", i, body)
		}
		targets := analyzeDuplicates(t, src.String())
		require.Len(t, targets, n, "group size %d", n)
		for i, tg := range targets {
			assert.Equal(t, fmt.Sprintf("sum%d", i), tg.FunctionName)
			assert.Equal(t, float64(n), tg.MetricValue())
			// every other member is named, never itself
			assert.Equal(t, n-1, strings.Count(tg.Description, "(line "))
			assert.NotContains(t, tg.Description, fmt.Sprintf("sum%d (", i))
		}
	}
}

func TestDuplicateAnalyzerShortBodiesIgnored(t *testing.T) {
	var src strings.Builder
	src.WriteString("package p\n\ntype T struct{ v int }\n\n")
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&src, "func (t *T) Get%d() int {\n\tx := t.v\n\treturn x\n}\n\n", i)
		fmt.Fprintf(&src, "func noop%d() {}\n\n", i)
	}
	assert.Empty(t, analyzeDuplicates(t, src.String()))
}

func TestDuplicateAnalyzerClosingBracesNotCounted(t *testing.T) {
	src := `package p

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func mustOK(err error) {
	if err != nil {
		panic(err)
	}
}
`
	assert.Empty(t, analyzeDuplicates(t, src))
	assert.Equal(t, 2, countLines("if err != nil {\n\tpanic(err)\n}"))
	assert.Equal(t, 3, countLines("x := f(\n\ta,\n)\nreturn x"))
}

func TestDuplicateAnalyzerLeadingStringStatementStripped(t *testing.T) {
	src := `package p

func a(x int) int {
	"documented"
	x++
	x *= 2
	return x
}

func b(x int) int {
	x++
	x *= 2
	return x
}
`
	targets := analyzeDuplicates(t, src)
	require.Len(t, targets, 2)
}

func TestDuplicateAnalyzerRenamedVariablesDiffer(t *testing.T) {
	src := `package p

func a(x int) int {
	y := x + 1
	y *= 2
	return y
}

func b(x int) int {
	z := x + 1
	z *= 2
	return z
}
`
	assert.Empty(t, analyzeDuplicates(t, src))
}

func TestDuplicateAnalyzerMethodNames(t *testing.T) {
	src := `package p

type A struct{}
type B struct{}

func (A) Run(n int) int {
	n++
	n *= 3
	return n
}

func (*B) Run(n int) int {
	n++
	n *= 3
	return n
}
`
	targets := analyzeDuplicates(t, src)
	require.Len(t, targets, 2)
	assert.Equal(t, "A", targets[0].TypeName)
	assert.Contains(t, targets[0].Description, "B.Run (line 12)")
	assert.Contains(t, targets[1].Description, "A.Run (line 6)")
}

func TestDuplicateAnalyzerIdempotent(t *testing.T) {
	first := analyzeDuplicates(t, duplicateFixture)
	second := analyzeDuplicates(t, duplicateFixture)
	assert.Equal(t, first, second)
}

func TestDuplicateAnalyzerParseFailure(t *testing.T) {
	assert.Empty(t, analyzeDuplicates(t, "package p\nfunc a( {"))
}

func TestDuplicateSeverity(t *testing.T) {
	assert.InDelta(t, 0.165, DuplicateSeverity(3, 2), 1e-9)
	assert.InDelta(t, 0.6, DuplicateSeverity(10, 3), 1e-9)
	assert.Equal(t, 1.0, DuplicateSeverity(40, 2))
	assert.Equal(t, 1.0, DuplicateSeverity(19, 6))
}
