package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mohtion/mohtion/internal/types"
)

// MinDuplicateLines is the normalized body length below which functions are
// never reported as duplicates (getters and thin wrappers). Closing braces
// do not count toward it.
const MinDuplicateLines = 3

// DuplicateAnalyzer groups functions in a file whose canonical bodies are identical
type DuplicateAnalyzer struct {
	base
	log logrus.FieldLogger
}

// NewDuplicateAnalyzer creates a Go duplicate-logic analyzer
func NewDuplicateAnalyzer(filter *PathFilter, log logrus.FieldLogger) *DuplicateAnalyzer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DuplicateAnalyzer{
		base: base{filter: filter, lang: LanguageGo},
		log:  log.WithField("analyzer", "duplicates"),
	}
}

func (a *DuplicateAnalyzer) Name() string {
	return "duplicates"
}

type bodyInfo struct {
	fn    goFunc
	lines int
}

// AnalyzeFile implements Analyzer
func (a *DuplicateAnalyzer) AnalyzeFile(ctx context.Context, relPath string, content []byte) ([]types.DebtTarget, error) {
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

	// positions are captured by funcs() before canonicalization clears them
	groups := make(map[string][]bodyInfo)
	var order []string
	for _, fn := range src.funcs() {
		canon, err := canonicalBody(fn.decl.Body)
		if err != nil {
			a.log.WithError(err).WithField("function", fn.displayName()).Debug("cannot canonicalize body")
			continue
		}
		n := countLines(canon)
		if n < MinDuplicateLines {
			continue
		}
		sum := sha256.Sum256([]byte(canon))
		key := hex.EncodeToString(sum[:])
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], bodyInfo{fn: fn, lines: n})
	}

	var targets []types.DebtTarget
	for _, key := range order {
		members := groups[key]
		if len(members) < 2 {
			continue
		}
		for i, m := range members {
			var others []string
			for j, o := range members {
				if j != i {
					others = append(others, fmt.Sprintf("%s (line %d)", o.fn.displayName(), o.fn.startLine))
				}
			}
			targets = append(targets, types.DebtTarget{
				FilePath:     relPath,
				StartLine:    m.fn.startLine,
				EndLine:      m.fn.endLine,
				Kind:         types.DebtDuplicateLogic,
				Severity:     DuplicateSeverity(m.lines, len(members)),
				Description:  fmt.Sprintf("Duplicate code logic found. Identical to %s.", strings.Join(others, ", ")),
				Snippet:      src.snippet(m.fn.startLine, m.fn.endLine),
				FunctionName: m.fn.name,
				TypeName:     m.fn.typeName,
				Metric:       types.Float64Ptr(float64(len(members))),
			})
		}
	}
	return targets, nil
}

// DuplicateSeverity grows with body length (saturating at 20 lines) and
// with group size (+10% per extra copy), clamped to 1
func DuplicateSeverity(lines, groupSize int) float64 {
	base := math.Min(1, float64(lines)/20)
	multiplier := 1 + 0.1*float64(groupSize-1)
	return math.Min(1, base*multiplier)
}

// countLines counts canonical lines, skipping lines that only close a block
func countLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" && strings.Trim(t, "})]") != "" {
			n++
		}
	}
	return n
}
