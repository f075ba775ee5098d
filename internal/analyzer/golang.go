package analyzer

import (
	"bytes"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"reflect"
	"strings"
)

// goFunc is one function or method declaration with a body
type goFunc struct {
	decl      *ast.FuncDecl
	name      string
	typeName  string // receiver type for methods
	startLine int
	endLine   int
}

func (f goFunc) displayName() string {
	if f.typeName != "" {
		return f.typeName + "." + f.name
	}
	return f.name
}

// goSource is a parsed Go file plus its raw lines for snippet extraction
type goSource struct {
	fset  *token.FileSet
	file  *ast.File
	lines []string
}

func parseGo(relPath string, content []byte) (*goSource, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, relPath, content, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}
	return &goSource{
		fset:  fset,
		file:  file,
		lines: strings.Split(string(content), "\n"),
	}, nil
}

// funcs lists the top-level function declarations in source order
func (s *goSource) funcs() []goFunc {
	var out []goFunc
	for _, decl := range s.file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		out = append(out, goFunc{
			decl:      fn,
			name:      fn.Name.Name,
			typeName:  receiverTypeName(fn),
			startLine: s.fset.Position(fn.Pos()).Line,
			endLine:   s.fset.Position(fn.End()).Line,
		})
	}
	return out
}

// snippet returns the exact source lines start..end (1-based, inclusive)
func (s *goSource) snippet(start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(s.lines) {
		end = len(s.lines)
	}
	return strings.Join(s.lines[start-1:end], "\n")
}

func receiverTypeName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return ""
	}
	expr := fn.Recv.List[0].Type
	for {
		switch t := expr.(type) {
		case *ast.StarExpr:
			expr = t.X
		case *ast.ParenExpr:
			expr = t.X
		case *ast.IndexExpr:
			expr = t.X
		case *ast.IndexListExpr:
			expr = t.X
		case *ast.Ident:
			return t.Name
		default:
			return ""
		}
	}
}

var posType = reflect.TypeOf(token.NoPos)

// clearPositions zeroes every token.Pos in the subtree so go/printer lays
// the code out from structure alone. The subtree is modified in place.
func clearPositions(node ast.Node) {
	ast.Inspect(node, func(n ast.Node) bool {
		if n == nil {
			return false
		}
		v := reflect.ValueOf(n)
		if v.Kind() != reflect.Pointer || v.IsNil() {
			return true
		}
		v = v.Elem()
		if v.Kind() != reflect.Struct {
			return true
		}
		for i := 0; i < v.NumField(); i++ {
			f := v.Field(i)
			if f.Type() == posType && f.CanSet() {
				f.SetInt(int64(token.NoPos))
			}
		}
		return true
	})
}

var canonicalPrinter = printer.Config{Mode: printer.UseSpaces, Tabwidth: 4}

// canonicalBody renders a function body independent of its original
// formatting and comments. A leading bare string literal statement is
// treated as documentation and dropped.
func canonicalBody(body *ast.BlockStmt) (string, error) {
	stmts := body.List
	if len(stmts) > 0 {
		if es, ok := stmts[0].(*ast.ExprStmt); ok {
			if lit, ok := es.X.(*ast.BasicLit); ok && lit.Kind == token.STRING {
				stmts = stmts[1:]
			}
		}
	}

	fset := token.NewFileSet()
	var lines []string
	for _, stmt := range stmts {
		clearPositions(stmt)
		var buf bytes.Buffer
		if err := canonicalPrinter.Fprint(&buf, fset, stmt); err != nil {
			return "", err
		}
		for _, line := range strings.Split(buf.String(), "\n") {
			if strings.TrimSpace(line) != "" {
				lines = append(lines, strings.TrimRight(line, " \t"))
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
