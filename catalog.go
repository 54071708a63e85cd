package strata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-strata/pkg/activity"
)

// BrokenType is the type tag of the inert models that stand in for members
// whose type is unknown or whose load failed.
const BrokenType = "broken"

// TraitError holds the failure description of a broken model.
const TraitError = "error"

// Catalog is the process-wide context that owns the stratum order, the schema
// registry, the dispatch chain and the table of live models.
type Catalog struct {
	cfg       catalogConfig
	emitter   *activity.Emitter
	evaluator Evaluator

	mu     sync.RWMutex
	models map[string]*Model
}

// New builds a Catalog. Unless shared through options, each catalog gets its
// own stratum order, schema registry and dispatch chain.
func New(opts ...Option) (*Catalog, error) {
	cfg := defaultCatalogConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.order == nil {
		cfg.order = NewStratumOrder()
	}
	if cfg.registry == nil {
		cfg.registry = NewSchemaRegistry()
	}
	if cfg.chain == nil {
		cfg.chain = NewDispatchChain()
	}
	if cfg.functions == nil {
		cfg.functions = DefaultFunctions()
	}
	if cfg.programCache == nil {
		cfg.programCache = NewProgramCache()
	}
	if cfg.evaluatorLogger == nil {
		cfg.evaluatorLogger = EvaluatorLoggerFrom(cfg.logger)
	}
	if cfg.schemaGenerator == nil {
		cfg.schemaGenerator = DefaultSchemaGenerator()
	}

	c := &Catalog{
		cfg:     cfg,
		emitter: newActivityEmitter(cfg),
		models:  map[string]*Model{},
	}
	c.evaluator = cfg.evaluator
	if c.evaluator == nil {
		evaluator, err := NewEvaluator(cfg.engine,
			EngineProgramCache(cfg.programCache),
			EngineFunctions(cfg.functions),
		)
		if err != nil {
			return nil, err
		}
		c.evaluator = evaluator
	}

	if _, ok := cfg.registry.Kind(BrokenType); !ok {
		_, err := cfg.registry.Compose(Definition{
			Type:   BrokenType,
			Traits: []TraitDescriptor{Primitive(TraitError, "Why the member could not be created or loaded.")},
		}, CatalogMember(), URL())
		if err != nil {
			return nil, fmt.Errorf("strata: register broken kind: %w", err)
		}
	}
	return c, nil
}

// Order returns the stratum order used by the catalog.
func (c *Catalog) Order() *StratumOrder {
	return c.cfg.order
}

// Registry returns the schema registry used by the catalog.
func (c *Catalog) Registry() *SchemaRegistry {
	return c.cfg.registry
}

// Chain returns the URL dispatch chain used by the catalog.
func (c *Catalog) Chain() *DispatchChain {
	return c.cfg.chain
}

// Logger returns the configured logger.
func (c *Catalog) Logger() Logger {
	return c.logger()
}

func (c *Catalog) logger() Logger {
	if c == nil || c.cfg.logger == nil {
		return noopLogger{}
	}
	return c.cfg.logger
}

// RegisterKind composes and registers a model kind.
func (c *Catalog) RegisterKind(base Definition, capabilities ...Capability) (*Kind, error) {
	kind, err := c.cfg.registry.Compose(base, capabilities...)
	if err != nil {
		return nil, err
	}
	c.logger().Debug("kind registered", "type", kind.Type(), "capabilities", kind.Capabilities(), "traits", kind.Schema().Len())
	return kind, nil
}

// CreateCatalogMember constructs an empty model of typeTag without adding it
// to the catalog. It returns nil when typeTag is not registered. An empty id
// is replaced by a generated one.
func (c *Catalog) CreateCatalogMember(typeTag, id string, source *Model) *Model {
	kind, ok := c.cfg.registry.Kind(typeTag)
	if !ok {
		return nil
	}
	if strings.TrimSpace(id) == "" {
		id = c.cfg.idGenerator()
	}
	return newModel(c, kind, id, source)
}

// NewModel constructs a model of typeTag and adds it to the catalog.
func (c *Catalog) NewModel(typeTag, id string) (*Model, error) {
	m := c.CreateCatalogMember(typeTag, id, nil)
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, typeTag)
	}
	if err := c.Add(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Add registers a live model built by this catalog.
func (c *Catalog) Add(m *Model) error {
	if m == nil {
		return fmt.Errorf("strata: model is nil")
	}
	if m.catalog != c {
		return fmt.Errorf("strata: model %q belongs to another catalog", m.ID())
	}
	if !m.IsLive() {
		return fmt.Errorf("%w: %s", ErrModelDestroyed, m.ID())
	}
	c.mu.Lock()
	if _, exists := c.models[m.id]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateModelID, m.id)
	}
	c.models[m.id] = m
	c.mu.Unlock()

	c.emit(context.Background(), activity.BuildModelAddedEvent(activity.CatalogEventInput{
		ModelID:   m.id,
		ModelType: m.Type(),
	}))
	return nil
}

// Get returns the live model registered under id.
func (c *Catalog) Get(id string) *Model {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.models[id]
}

// Remove drops the model from the catalog and destroys it. In-flight
// resolutions for the model complete but their results are discarded.
func (c *Catalog) Remove(ctx context.Context, id string) bool {
	c.mu.Lock()
	m, ok := c.models[id]
	if ok {
		delete(c.models, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	typeTag := m.Type()
	m.destroy()
	c.emit(ctx, activity.BuildModelRemovedEvent(activity.CatalogEventInput{
		ModelID:   id,
		ModelType: typeTag,
	}))
	return true
}

// Models returns the live models sorted by id.
func (c *Catalog) Models() []*Model {
	c.mu.RLock()
	out := make([]*Model, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len returns the number of live models.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

// NewBrokenModel builds an inert stand-in for a member that could not be
// created or loaded. The description of the failure lands in the underride
// stratum so any definition values still win. The model is not added to the
// catalog.
func (c *Catalog) NewBrokenModel(id, url string, cause error) *Model {
	m := c.CreateCatalogMember(BrokenType, id, nil)
	if m == nil {
		return nil
	}
	values := map[string]any{TraitName: m.ID()}
	if url != "" {
		values[TraitName] = url
		values[TraitURL] = url
	}
	if cause != nil {
		values[TraitError] = cause.Error()
	}
	if err := m.SetTraits(StratumUnderride, values); err != nil {
		c.logger().Warn("broken model traits rejected", "model", m.ID(), "error", err)
	}
	c.logger().Warn("catalog member broken", "model", m.ID(), "url", url, "error", cause)
	return m
}

// IsBroken reports whether m stands in for a failed member.
func IsBroken(m *Model) bool {
	return m != nil && m.Type() == BrokenType
}
