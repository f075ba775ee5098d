package analyzer

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/mohtion/mohtion/internal/types"
)

// ComplexityAnalyzer reports functions whose cyclomatic complexity exceeds a ceiling
type ComplexityAnalyzer struct {
	base
	ceiling int
	log     logrus.FieldLogger
}

// NewComplexityAnalyzer creates a Go complexity analyzer
func NewComplexityAnalyzer(ceiling int, filter *PathFilter, log logrus.FieldLogger) *ComplexityAnalyzer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ComplexityAnalyzer{
		base:    base{filter: filter, lang: LanguageGo},
		ceiling: ceiling,
		log:     log.WithField("analyzer", "complexity"),
	}
}

func (a *ComplexityAnalyzer) Name() string {
	return "complexity"
}

// AnalyzeFile implements Analyzer
func (a *ComplexityAnalyzer) AnalyzeFile(ctx context.Context, relPath string, content []byte) ([]types.DebtTarget, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if DetectLanguage(relPath) != LanguageGo {
		return nil, nil
	}

	src, err := parseGo(relPath, content)
	if err != nil {
		a.log.WithError(err).WithField("file", relPath).Warn("skipping unparsable file")
		return nil, nil
	}

	var targets []types.DebtTarget
	for _, fn := range src.funcs() {
		c := Complexity(fn.decl)
		if c <= a.ceiling {
			continue
		}
		targets = append(targets, types.DebtTarget{
			FilePath:     relPath,
			StartLine:    fn.startLine,
			EndLine:      fn.endLine,
			Kind:         types.DebtComplexity,
			Severity:     ComplexitySeverity(c, a.ceiling),
			Description:  fmt.Sprintf("High cyclomatic complexity: %d (threshold: %d)", c, a.ceiling),
			Snippet:      src.snippet(fn.startLine, fn.endLine),
			FunctionName: fn.name,
			TypeName:     fn.typeName,
			Metric:       types.Float64Ptr(float64(c)),
		})
	}
	return targets, nil
}

// ComplexitySeverity scales the excess over the ceiling into [0,1]:
// 0 at the ceiling, 1 at ten or more above it
func ComplexitySeverity(complexity, ceiling int) float64 {
	s := float64(complexity-ceiling) / 10
	return math.Max(0, math.Min(1, s))
}

// Complexity computes 1 + the number of decision points in a function.
//
// Decision points: if, for/range, each non-default case of a switch, type
// switch or select, each && and || operator, and each recover() call.
// Function literals count toward the enclosing function.
func Complexity(fn *ast.FuncDecl) int {
	if fn.Body == nil {
		return 1
	}
	return 1 + decisionPoints(fn.Body)
}

func decisionPoints(node ast.Node) int {
	count := 0
	ast.Inspect(node, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
			count++
		case *ast.CaseClause:
			if x.List != nil {
				count++
			}
		case *ast.CommClause:
			if x.Comm != nil {
				count++
			}
		case *ast.BinaryExpr:
			if x.Op == token.LAND || x.Op == token.LOR {
				count++
			}
		case *ast.CallExpr:
			if id, ok := x.Fun.(*ast.Ident); ok && id.Name == "recover" {
				count++
			}
		}
		return true
	})
	return count
}
