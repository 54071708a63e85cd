package strata

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher is a predicate over URL-like dispatch inputs.
type Matcher interface {
	Match(url string) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(url string) bool

// Match implements Matcher.
func (fn MatcherFunc) Match(url string) bool {
	return fn != nil && fn(url)
}

// MatchAll accepts every input.
func MatchAll() Matcher {
	return MatcherFunc(func(string) bool { return true })
}

// MatchExtensions accepts inputs whose path ends in one of exts. Extensions
// compare case-insensitively, with or without the leading dot.
func MatchExtensions(exts ...string) Matcher {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return MatcherFunc(func(url string) bool {
		ext, _ := URLBindings(url)["ext"].(string)
		_, ok := set[ext]
		return ok
	})
}

// MatchGlob accepts inputs matching a doublestar pattern. Patterns holding a
// scheme separator are matched against the whole input, patterns with a
// slash against the path, and bare patterns such as "*.csv" against the
// file name.
func MatchGlob(pattern string) (Matcher, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("strata: invalid glob pattern %q", pattern)
	}
	binding := "base"
	switch {
	case strings.Contains(pattern, "://"):
		binding = "url"
	case strings.Contains(pattern, "/"):
		binding = "path"
	}
	return MatcherFunc(func(url string) bool {
		subject, _ := URLBindings(url)[binding].(string)
		ok, err := doublestar.Match(pattern, subject)
		return err == nil && ok
	}), nil
}

// MatchRegexp accepts inputs matching pattern anywhere in the string.
func MatchRegexp(pattern string) (Matcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("strata: invalid matcher pattern %q: %w", pattern, err)
	}
	return MatcherFunc(re.MatchString), nil
}

// ExpressionOption configures an expression matcher.
type ExpressionOption func(*expressionMatcher)

// ExpressionLabel names the rule in errors and evaluator logs.
func ExpressionLabel(label string) ExpressionOption {
	return func(m *expressionMatcher) {
		m.label = label
	}
}

// ExpressionLogger records each evaluation of the matcher.
func ExpressionLogger(logger EvaluatorLogger) ExpressionOption {
	return func(m *expressionMatcher) {
		if logger != nil {
			m.logger = logger
		}
	}
}

type expressionMatcher struct {
	engine     string
	expression string
	label      string
	rule       CompiledRule
	logger     EvaluatorLogger
}

// MatchExpression compiles expression with evaluator into a matcher. The
// expression sees the URL bindings (url, scheme, host, path, base, ext,
// query) and must produce true to match. Evaluation errors count as no match
// and are reported to the evaluator logger.
func MatchExpression(evaluator Evaluator, expression string, opts ...ExpressionOption) (Matcher, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("strata: expression matcher requires an evaluator")
	}
	m := &expressionMatcher{
		engine:     evaluatorEngineName(evaluator),
		expression: expression,
		logger:     noopEvaluatorLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	rule, err := evaluator.Compile(expression)
	if err != nil {
		return nil, annotateEvaluation(m.engine, PhaseCompile, expression, m.label, err)
	}
	m.rule = rule
	return m, nil
}

func (m *expressionMatcher) Match(url string) bool {
	ctx := NewRuleContext(url)
	ctx.Label = m.label
	start := time.Now()
	value, err := m.rule.Evaluate(ctx)
	err = evaluateError(m.engine, m.expression, ctx.label(), err)
	matched, _ := value.(bool)
	matched = matched && err == nil
	m.logger.LogEvaluation(EvaluatorLogEvent{
		Engine:   m.engine,
		Expr:     m.expression,
		Label:    ctx.label(),
		URL:      url,
		Matched:  matched,
		Duration: time.Since(start),
		Err:      err,
	})
	return matched
}

// ExpressionMatcher compiles expression with the catalog's evaluator and
// evaluator logger.
func (c *Catalog) ExpressionMatcher(expression, label string) (Matcher, error) {
	return MatchExpression(c.evaluator, expression,
		ExpressionLabel(label),
		ExpressionLogger(c.cfg.evaluatorLogger),
	)
}
