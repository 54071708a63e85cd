//go:build js_eval

package strata

import (
	"fmt"

	"github.com/dop251/goja"
)

// jsEvaluator runs matcher expressions in a fresh goja runtime per
// evaluation. Compiled programs are shared; runtimes are not.
type jsEvaluator struct {
	engineConfig
}

// NewJSEvaluator constructs an Evaluator backed by goja.
func NewJSEvaluator(opts ...EngineOption) Evaluator {
	return &jsEvaluator{engineConfig: newEngineConfig(opts)}
}

func (e *jsEvaluator) Engine() string { return EngineJS }

func (e *jsEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	rule, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return rule.Evaluate(ctx)
}

func (e *jsEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if expression == "" {
		return nil, emptyExpression(EngineJS)
	}
	program, err := loadProgram(e.cache, EngineJS, expression, func(expression string) (*goja.Program, error) {
		return goja.Compile("", fmt.Sprintf("(function(){ return (%s); })()", expression), false)
	})
	if err != nil {
		return nil, compileError(EngineJS, expression, err)
	}
	return &jsCompiledRule{evaluator: e, program: program, expression: expression}, nil
}

type jsCompiledRule struct {
	evaluator  *jsEvaluator
	program    *goja.Program
	expression string
}

func (r *jsCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	ctx = ctx.withDefaults()
	vm := goja.New()
	_ = vm.Set("now", ctx.timestamp())
	_ = vm.Set("metadata", ctx.Metadata)
	for key, value := range ctx.Bindings {
		_ = vm.Set(key, value)
	}
	for name, fn := range r.evaluator.functions() {
		_ = vm.Set(name, fn)
	}
	value, err := vm.RunProgram(r.program)
	if err != nil {
		return nil, evaluateError(EngineJS, r.expression, ctx.label(), err)
	}
	return value.Export(), nil
}
