package strata

import (
	"fmt"
	"strings"
)

// Engine names accepted by NewEvaluator.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

// EngineOption configures one of the built-in expression engines.
type EngineOption func(*engineConfig)

type engineConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// EngineProgramCache shares compiled programs through cache. Entries are
// keyed per engine, so one cache can back several engines.
func EngineProgramCache(cache ProgramCache) EngineOption {
	return func(cfg *engineConfig) {
		cfg.cache = cache
	}
}

// EngineFunctions exposes the functions of registry to expressions, both by
// name and through call(name, args...). The registry is copied.
func EngineFunctions(registry *FunctionRegistry) EngineOption {
	return func(cfg *engineConfig) {
		if registry != nil {
			cfg.registry = registry.Clone()
		}
	}
}

func newEngineConfig(opts []EngineOption) engineConfig {
	cfg := engineConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// NewEvaluator returns the engine registered under name. The js engine is
// only available in builds tagged js_eval.
func NewEvaluator(name string, opts ...EngineOption) (Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EngineExpr:
		return NewExprEvaluator(opts...), nil
	case EngineCEL:
		return NewCELEvaluator(opts...), nil
	case EngineJS:
		if evaluator := NewJSEvaluator(opts...); evaluator != nil {
			return evaluator, nil
		}
		return nil, fmt.Errorf("strata: js engine requires the js_eval build tag")
	default:
		return nil, fmt.Errorf("strata: unknown expression engine %q", name)
	}
}

// loadProgram returns the program compiled for expression, consulting cache
// first when one is configured.
func loadProgram[P any](cache ProgramCache, engine, expression string, compile func(string) (P, error)) (P, error) {
	key := engine + ":" + expression
	if cache != nil {
		if cached, ok := cache.Get(key); ok {
			if program, ok := cached.(P); ok {
				return program, nil
			}
		}
	}
	program, err := compile(expression)
	if err != nil {
		var zero P
		return zero, err
	}
	if cache != nil {
		cache.Set(key, program)
	}
	return program, nil
}

// callFunction backs the call(name, args...) helper shared by the engines.
func (cfg engineConfig) callFunction(args ...any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("strata: call requires a function name")
	}
	name, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("strata: call name must be a string, got %T", args[0])
	}
	return cfg.registry.Call(name, args[1:]...)
}

// functions lists the callables to expose, call included, or nil when no
// registry is configured.
func (cfg engineConfig) functions() map[string]Function {
	if cfg.registry == nil {
		return nil
	}
	out := map[string]Function{"call": cfg.callFunction}
	for _, name := range cfg.registry.Names() {
		fn := name
		out[fn] = func(args ...any) (any, error) {
			return cfg.registry.Call(fn, args...)
		}
	}
	return out
}

func emptyExpression(engine string) error {
	return &EvaluationError{Engine: engine, Phase: PhaseCompile, Err: fmt.Errorf("expression must not be empty")}
}
