package strata

import (
	"github.com/goliatone/go-strata/pkg/activity"
	"github.com/google/uuid"
)

// Option configures a Catalog.
type Option func(*catalogConfig)

type catalogConfig struct {
	logger          Logger
	loader          MetadataLoader
	order           *StratumOrder
	registry        *SchemaRegistry
	chain           *DispatchChain
	idGenerator     func() string
	activityHooks   activity.Hooks
	activityConfig  *activity.Config
	evaluator       Evaluator
	engine          string
	evaluatorLogger EvaluatorLogger
	programCache    ProgramCache
	functions       *FunctionRegistry
	schemaGenerator SchemaGenerator
}

func defaultCatalogConfig() catalogConfig {
	return catalogConfig{
		logger:      noopLogger{},
		idGenerator: uuid.NewString,
	}
}

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger Logger) Option {
	return func(cfg *catalogConfig) {
		if logger == nil {
			cfg.logger = noopLogger{}
			return
		}
		cfg.logger = logger
	}
}

// WithLoader sets the metadata loader consulted when a model kind does not
// provide its own loadMetadata method.
func WithLoader(loader MetadataLoader) Option {
	return func(cfg *catalogConfig) {
		cfg.loader = loader
	}
}

// WithStratumOrder shares a stratum order between catalogs.
func WithStratumOrder(order *StratumOrder) Option {
	return func(cfg *catalogConfig) {
		cfg.order = order
	}
}

// WithSchemaRegistry shares a schema registry between catalogs.
func WithSchemaRegistry(registry *SchemaRegistry) Option {
	return func(cfg *catalogConfig) {
		cfg.registry = registry
	}
}

// WithDispatchChain sets the URL dispatch chain.
func WithDispatchChain(chain *DispatchChain) Option {
	return func(cfg *catalogConfig) {
		cfg.chain = chain
	}
}

// WithIDGenerator overrides the generator used for models created without an
// id. The default generates random UUIDs.
func WithIDGenerator(fn func() string) Option {
	return func(cfg *catalogConfig) {
		if fn != nil {
			cfg.idGenerator = fn
		}
	}
}

// WithActivityConfig controls activity emission. Without it, emission is
// enabled whenever hooks are configured.
func WithActivityConfig(config activity.Config) Option {
	return func(cfg *catalogConfig) {
		copied := config
		cfg.activityConfig = &copied
	}
}

// WithEvaluator sets the engine used by ExpressionMatcher. The default is
// the expr engine.
func WithEvaluator(evaluator Evaluator) Option {
	return func(cfg *catalogConfig) {
		cfg.evaluator = evaluator
	}
}

// WithEngine selects a built-in expression engine by name (expr, cel or
// js). WithEvaluator takes precedence.
func WithEngine(name string) Option {
	return func(cfg *catalogConfig) {
		cfg.engine = name
	}
}

// WithEvaluatorLogger records matcher expression evaluations.
func WithEvaluatorLogger(logger EvaluatorLogger) Option {
	return func(cfg *catalogConfig) {
		if logger == nil {
			cfg.evaluatorLogger = noopEvaluatorLogger{}
			return
		}
		cfg.evaluatorLogger = logger
	}
}

// WithProgramCache shares compiled matcher programs between evaluators.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *catalogConfig) {
		cfg.programCache = cache
	}
}

// WithFunctionRegistry replaces the functions available to matcher
// expressions.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *catalogConfig) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithCustomFunction registers fn under name alongside the default
// functions.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *catalogConfig) {
		if cfg.functions == nil {
			cfg.functions = DefaultFunctions()
		}
		_ = cfg.functions.Register(name, fn)
	}
}

// WithSchemaGenerator sets the generator used by Catalog.Schema.
func WithSchemaGenerator(generator SchemaGenerator) Option {
	return func(cfg *catalogConfig) {
		cfg.schemaGenerator = generator
	}
}
