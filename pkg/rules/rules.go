// Package rules loads dispatch rules from YAML or JSON files into a catalog's
// dispatch chain.
//
//	rules:
//	  - name: csv
//	    type: csv
//	    match: {ext: [csv]}
//	  - name: remote-geojson
//	    type: geojson
//	    match: {expr: 'scheme == "https" && ext == ".geojson"'}
//	  - name: sniff
//	    type: binary
//	    requiresLoad: true
package rules

import (
	"fmt"
	"os"
	"strings"

	strata "github.com/goliatone/go-strata"
	"github.com/goliatone/go-strata/internal/hydrate"
)

// File is the decoded form of a rules file.
type File struct {
	Rules []Rule `json:"rules"`
}

// Rule is one dispatch rule entry.
type Rule struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Match        Match  `json:"match"`
	RequiresLoad bool   `json:"requiresLoad"`
}

// Match selects at most one matcher. An empty Match accepts every URL.
type Match struct {
	Glob   string   `json:"glob,omitempty"`
	Ext    []string `json:"ext,omitempty"`
	Regexp string   `json:"regexp,omitempty"`
	Expr   string   `json:"expr,omitempty"`
}

func (m Match) kinds() []string {
	var out []string
	if m.Glob != "" {
		out = append(out, "glob")
	}
	if len(m.Ext) > 0 {
		out = append(out, "ext")
	}
	if m.Regexp != "" {
		out = append(out, "regexp")
	}
	if m.Expr != "" {
		out = append(out, "expr")
	}
	return out
}

// Parse decodes a rules file without touching any catalog.
func Parse(source string, raw []byte) (File, error) {
	decoder := hydrate.NewDecoder[File](
		hydrate.WithDisallowUnknownFields[File](),
		hydrate.WithPostHook[File](validate),
	)
	return decoder.DecodeBytes(hydrate.Context{Source: source}, raw)
}

func validate(_ hydrate.Context, file *File) error {
	for i, rule := range file.Rules {
		if strings.TrimSpace(rule.Type) == "" {
			return fmt.Errorf("rule %d: type is required", i)
		}
		if kinds := rule.Match.kinds(); len(kinds) > 1 {
			return fmt.Errorf("rule %d (%s): match sets %s, expected one", i, rule.Type, strings.Join(kinds, " and "))
		}
	}
	return nil
}

// Load parses raw and appends its rules to c's dispatch chain, in file order.
// Nothing is registered when any rule fails to compile.
func Load(c *strata.Catalog, source string, raw []byte) (int, error) {
	file, err := Parse(source, raw)
	if err != nil {
		return 0, err
	}
	compiled := make([]strata.DispatchRule, 0, len(file.Rules))
	for i, rule := range file.Rules {
		matcher, err := buildMatcher(c, rule)
		if err != nil {
			return 0, fmt.Errorf("rules: %s: rule %d (%s): %w", source, i, rule.Type, err)
		}
		compiled = append(compiled, strata.DispatchRule{
			Name:          rule.Name,
			Matcher:       matcher,
			CandidateType: rule.Type,
			RequiresLoad:  rule.RequiresLoad,
		})
	}
	for _, rule := range compiled {
		if err := c.Chain().RegisterRule(rule); err != nil {
			return 0, err
		}
	}
	c.Logger().Debug("dispatch rules loaded", "source", source, "count", len(compiled))
	return len(compiled), nil
}

// LoadFile reads path and loads it with Load.
func LoadFile(c *strata.Catalog, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("rules: read %s: %w", path, err)
	}
	return Load(c, path, raw)
}

func buildMatcher(c *strata.Catalog, rule Rule) (strata.Matcher, error) {
	match := rule.Match
	switch {
	case match.Glob != "":
		return strata.MatchGlob(match.Glob)
	case len(match.Ext) > 0:
		return strata.MatchExtensions(match.Ext...), nil
	case match.Regexp != "":
		return strata.MatchRegexp(match.Regexp)
	case match.Expr != "":
		label := rule.Name
		if label == "" {
			label = rule.Type
		}
		return c.ExpressionMatcher(match.Expr, label)
	default:
		return strata.MatchAll(), nil
	}
}
