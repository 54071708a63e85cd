package strata

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// Evaluator runs matcher expressions against a RuleContext.
type Evaluator interface {
	Evaluate(ctx RuleContext, expression string) (any, error)
	Compile(expression string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule is an expression prepared once and evaluated per URL.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption is reserved for evaluator specific compile settings.
type CompileOption func(*compileConfig)

type compileConfig struct{}

// RuleContext carries the inputs of a matcher expression. Bindings hold the
// decomposed URL (url, scheme, host, path, base, ext, query) and are exposed
// to expressions as top level variables.
type RuleContext struct {
	URL      string
	Bindings map[string]any
	Now      *time.Time
	Metadata map[string]any
	// Label names the rule being evaluated, for errors and logs.
	Label string
}

// NewRuleContext decomposes rawURL into expression bindings.
func NewRuleContext(rawURL string) RuleContext {
	return RuleContext{
		URL:      rawURL,
		Bindings: URLBindings(rawURL),
	}
}

// URLBindings splits rawURL into the variables visible to matcher
// expressions. Inputs that do not parse as URLs are treated as plain paths.
func URLBindings(rawURL string) map[string]any {
	bindings := map[string]any{
		"url":    rawURL,
		"scheme": "",
		"host":   "",
		"path":   rawURL,
		"query":  map[string]any{},
	}
	if parsed, err := url.Parse(rawURL); err == nil {
		bindings["scheme"] = strings.ToLower(parsed.Scheme)
		bindings["host"] = strings.ToLower(parsed.Host)
		if parsed.Path != "" || parsed.Opaque == "" {
			bindings["path"] = parsed.Path
		} else {
			bindings["path"] = parsed.Opaque
		}
		query := map[string]any{}
		for key, values := range parsed.Query() {
			if len(values) > 0 {
				query[key] = values[0]
			}
		}
		bindings["query"] = query
	}
	p, _ := bindings["path"].(string)
	base := path.Base(p)
	if p == "" || base == "." || base == "/" {
		base = ""
	}
	bindings["base"] = base
	bindings["ext"] = strings.ToLower(path.Ext(base))
	return bindings
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Bindings == nil {
		ctx.Bindings = URLBindings(ctx.URL)
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

func (ctx RuleContext) label() string {
	if ctx.Label != "" {
		return ctx.Label
	}
	if ctx.URL != "" {
		return ctx.URL
	}
	return "unknown"
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	if named, ok := e.(interface{ Engine() string }); ok {
		return named.Engine()
	}
	return fmt.Sprintf("%T", e)
}
