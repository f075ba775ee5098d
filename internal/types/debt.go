package types

import (
	"fmt"
	"sort"
	"strings"
)

// DebtKind classifies a piece of technical debt
type DebtKind string

const (
	DebtComplexity      DebtKind = "complexity"              // High cyclomatic complexity
	DebtMissingTypes    DebtKind = "missing_type_annotation" // Missing type annotations
	DebtDuplicateLogic  DebtKind = "duplicate_logic"         // Duplicate function bodies
	DebtDeprecatedUsage DebtKind = "deprecated_api_usage"    // Deprecated API usage
)

// IsValid checks if the debt kind value is valid
func (k DebtKind) IsValid() bool {
	switch k {
	case DebtComplexity, DebtMissingTypes, DebtDuplicateLogic, DebtDeprecatedUsage:
		return true
	}
	return false
}

// DebtTarget is a located, classified, severity-scored finding.
// Targets are created by an analyzer during a scan and are never mutated afterwards.
type DebtTarget struct {
	FilePath    string   `json:"file_path"` // Repo-relative, slash-separated
	StartLine   int      `json:"start_line"`
	EndLine     int      `json:"end_line"`
	Kind        DebtKind `json:"kind"`
	Severity    float64  `json:"severity"` // 0.0 to 1.0, higher = more valuable to fix
	Description string   `json:"description"`
	Snippet     string   `json:"snippet"` // Exact source spanning StartLine..EndLine

	FunctionName string   `json:"function_name,omitempty"`
	TypeName     string   `json:"type_name,omitempty"` // Enclosing type (method receiver)
	Metric       *float64 `json:"metric,omitempty"`    // e.g. cyclomatic count, duplicate group size
}

// Validate checks the structural invariants of a target
func (t DebtTarget) Validate() error {
	if t.FilePath == "" {
		return fmt.Errorf("file_path is required")
	}
	if t.StartLine < 1 {
		return fmt.Errorf("start_line must be >= 1 (got %d)", t.StartLine)
	}
	if t.StartLine > t.EndLine {
		return fmt.Errorf("start_line %d is after end_line %d", t.StartLine, t.EndLine)
	}
	if t.Severity < 0 || t.Severity > 1 {
		return fmt.Errorf("severity must be between 0 and 1 (got %v)", t.Severity)
	}
	if !t.Kind.IsValid() {
		return fmt.Errorf("invalid debt kind: %s", t.Kind)
	}
	if got, want := strings.Count(t.Snippet, "\n")+1, t.EndLine-t.StartLine+1; got != want {
		return fmt.Errorf("snippet has %d lines, span covers %d", got, want)
	}
	return nil
}

// Location renders a human-readable location, e.g. "pkg/a.go:Server:Handle (lines 10-42)"
func (t DebtTarget) Location() string {
	parts := []string{t.FilePath}
	if t.TypeName != "" {
		parts = append(parts, t.TypeName)
	}
	if t.FunctionName != "" {
		parts = append(parts, t.FunctionName)
	}
	return fmt.Sprintf("%s (lines %d-%d)", strings.Join(parts, ":"), t.StartLine, t.EndLine)
}

func (t DebtTarget) String() string {
	return fmt.Sprintf("[%s] %s: %s", t.Kind, t.Location(), t.Description)
}

// MetricValue returns the raw metric, or 0 if none was recorded
func (t DebtTarget) MetricValue() float64 {
	if t.Metric == nil {
		return 0
	}
	return *t.Metric
}

// Float64Ptr is a small helper for populating optional metric fields
func Float64Ptr(v float64) *float64 {
	return &v
}

// SelectTarget picks the single target to remediate: highest severity first,
// ties broken by earliest file path, then earliest start line.
// Returns false if targets is empty.
func SelectTarget(targets []DebtTarget) (DebtTarget, bool) {
	if len(targets) == 0 {
		return DebtTarget{}, false
	}
	ranked := make([]DebtTarget, len(targets))
	copy(ranked, targets)
	SortBySeverity(ranked)
	return ranked[0], true
}

// SortBySeverity orders targets in remediation priority order (in place)
func SortBySeverity(targets []DebtTarget) {
	sort.SliceStable(targets, func(i, j int) bool {
		a, b := targets[i], targets[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.StartLine < b.StartLine
	})
}
