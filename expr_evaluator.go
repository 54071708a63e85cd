package strata

import (
	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// exprEvaluator runs matcher expressions with github.com/expr-lang/expr.
// Registry functions are bound at compile time; URL bindings are supplied as
// the run environment.
type exprEvaluator struct {
	engineConfig
}

// NewExprEvaluator constructs the default matcher engine.
func NewExprEvaluator(opts ...EngineOption) Evaluator {
	return &exprEvaluator{engineConfig: newEngineConfig(opts)}
}

func (e *exprEvaluator) Engine() string { return EngineExpr }

func (e *exprEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	rule, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return rule.Evaluate(ctx)
}

func (e *exprEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if expression == "" {
		return nil, emptyExpression(EngineExpr)
	}
	program, err := loadProgram(e.cache, EngineExpr, expression, e.compile)
	if err != nil {
		return nil, compileError(EngineExpr, expression, err)
	}
	return &exprCompiledRule{program: program, expression: expression}, nil
}

func (e *exprEvaluator) compile(expression string) (*exprvm.Program, error) {
	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	for name, fn := range e.functions() {
		options = append(options, exprlang.Function(name, fn))
	}
	return exprlang.Compile(expression, options...)
}

type exprCompiledRule struct {
	program    *exprvm.Program
	expression string
}

func (r *exprCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	ctx = ctx.withDefaults()
	env := map[string]any{
		"now":      ctx.timestamp(),
		"metadata": ctx.Metadata,
	}
	for key, value := range ctx.Bindings {
		env[key] = value
	}
	result, err := exprlang.Run(r.program, env)
	if err != nil {
		return nil, evaluateError(EngineExpr, r.expression, ctx.label(), err)
	}
	return result, nil
}
