package analyzer

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/mohtion/mohtion/internal/config"
)

// Factory builds one analyzer from the repo config
type Factory func(cfg *config.RepoConfig, filter *PathFilter, log logrus.FieldLogger) Analyzer

var builtin = map[string]Factory{
	"complexity": func(cfg *config.RepoConfig, filter *PathFilter, log logrus.FieldLogger) Analyzer {
		return NewComplexityAnalyzer(cfg.Thresholds.CyclomaticComplexity, filter, log)
	},
	"duplicates": func(_ *config.RepoConfig, filter *PathFilter, log logrus.FieldLogger) Analyzer {
		return NewDuplicateAnalyzer(filter, log)
	},
}

var aliases = map[string]string{
	"duplicate_logic": "duplicates",
}

// Registry holds the analyzers enabled for one scan
type Registry struct {
	analyzers []Analyzer
	byLang    map[Language][]Analyzer
	filter    *PathFilter
}

// NewRegistry builds the enabled analyzer set from the repo config.
// Unknown analyzer names are logged and ignored; each analyzer is enabled at most once.
func NewRegistry(cfg *config.RepoConfig, log logrus.FieldLogger) (*Registry, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	filter, err := NewPathFilter(cfg.IgnorePaths)
	if err != nil {
		return nil, err
	}

	r := &Registry{byLang: make(map[Language][]Analyzer), filter: filter}
	enabled := make(map[string]bool)
	for _, name := range cfg.Analyzers {
		if canonical, ok := aliases[name]; ok {
			name = canonical
		}
		factory, ok := builtin[name]
		if !ok {
			log.WithField("analyzer", name).Debug("analyzer not available, ignoring")
			continue
		}
		if enabled[name] {
			continue
		}
		enabled[name] = true
		r.Register(factory(cfg, filter, log))
	}
	return r, nil
}

// Register adds an analyzer (used for extra language front-ends and tests)
func (r *Registry) Register(a Analyzer) {
	r.analyzers = append(r.analyzers, a)
	r.byLang[a.Language()] = append(r.byLang[a.Language()], a)
}

// Analyzers returns every enabled analyzer in registration order
func (r *Registry) Analyzers() []Analyzer {
	return r.analyzers
}

// For returns the analyzers handling a language
func (r *Registry) For(lang Language) []Analyzer {
	return r.byLang[lang]
}

// Filter returns the ignore-path filter shared by the analyzers
func (r *Registry) Filter() *PathFilter {
	return r.filter
}

// Names lists the enabled analyzer names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.analyzers))
	for _, a := range r.analyzers {
		names = append(names, a.Name())
	}
	sort.Strings(names)
	return names
}

// Available lists every analyzer name the registry understands
func Available() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) String() string {
	return fmt.Sprintf("Registry{analyzers: %v}", r.Names())
}
