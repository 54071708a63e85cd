package strata

import (
	"fmt"
	"sort"
	"strings"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/functions"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// maxCELArity bounds the overloads declared for registry functions, since
// CEL has no variadic functions.
const maxCELArity = 4

// celEvaluator runs matcher expressions with cel-go. Every binding is
// declared as a dyn variable, so query values are read as query["layer"].
type celEvaluator struct {
	engineConfig
}

// NewCELEvaluator constructs an Evaluator backed by cel-go.
func NewCELEvaluator(opts ...EngineOption) Evaluator {
	return &celEvaluator{engineConfig: newEngineConfig(opts)}
}

func (e *celEvaluator) Engine() string { return EngineCEL }

func (e *celEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	ctx = ctx.withDefaults()
	rule, err := e.compileWith(expression, ctx.Bindings)
	if err != nil {
		return nil, err
	}
	return rule.Evaluate(ctx)
}

func (e *celEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	return e.compileWith(expression, URLBindings(""))
}

func (e *celEvaluator) compileWith(expression string, bindings map[string]any) (CompiledRule, error) {
	if expression == "" {
		return nil, emptyExpression(EngineCEL)
	}
	names := make([]string, 0, len(bindings))
	for key := range bindings {
		names = append(names, key)
	}
	sort.Strings(names)
	// Programs depend on the declared variables, so they are part of the key.
	cacheEngine := EngineCEL + "[" + strings.Join(names, ",") + "]"
	program, err := loadProgram(e.cache, cacheEngine, expression, func(expression string) (celgo.Program, error) {
		return e.compile(expression, names)
	})
	if err != nil {
		return nil, compileError(EngineCEL, expression, err)
	}
	return &celCompiledRule{program: program, expression: expression}, nil
}

func (e *celEvaluator) compile(expression string, variables []string) (celgo.Program, error) {
	env, err := e.environment(variables)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	return env.Program(ast)
}

func (e *celEvaluator) environment(variables []string) (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.Variable("now", celgo.TimestampType),
		celgo.Variable("metadata", celgo.DynType),
	}
	for _, name := range variables {
		opts = append(opts, celgo.Variable(name, celgo.DynType))
	}
	for name, fn := range e.functions() {
		minArity := 0
		if name == "call" {
			minArity = 1
		}
		opts = append(opts, celFunction(name, fn, minArity))
	}
	return celgo.NewEnv(opts...)
}

// celFunction declares name with one dyn overload per arity from minArity to
// maxCELArity, all bound to fn.
func celFunction(name string, fn Function, minArity int) celgo.EnvOption {
	binding := celBinding(fn)
	var overloads []celgo.FunctionOpt
	for arity := minArity; arity <= maxCELArity; arity++ {
		args := make([]*celgo.Type, arity)
		for i := range args {
			args[i] = celgo.DynType
		}
		overloads = append(overloads, celgo.Overload(
			fmt.Sprintf("%s_dyn_%d", name, arity),
			args,
			celgo.DynType,
			celgo.FunctionBinding(binding),
		))
	}
	return celgo.Function(name, overloads...)
}

func celBinding(fn Function) functions.FunctionOp {
	return func(values ...ref.Val) ref.Val {
		args := make([]any, 0, len(values))
		for _, val := range values {
			args = append(args, val.Value())
		}
		result, err := fn(args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}

type celCompiledRule struct {
	program    celgo.Program
	expression string
}

func (r *celCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	ctx = ctx.withDefaults()
	activation := map[string]any{
		"now":      ctx.timestamp(),
		"metadata": ctx.Metadata,
	}
	for key, value := range ctx.Bindings {
		activation[key] = value
	}
	out, _, err := r.program.Eval(activation)
	if err != nil {
		return nil, evaluateError(EngineCEL, r.expression, ctx.label(), err)
	}
	return out.Value(), nil
}
