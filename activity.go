package strata

import (
	"context"

	"github.com/goliatone/go-strata/pkg/activity"
)

// WithActivityHooks attaches activity hooks to the catalog. Hooks are cloned
// and nil entries dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *catalogConfig) {
		cfg.activityHooks = normalized
	}
}

// ActivityHooks returns a cloned slice of the catalog's activity hooks.
func (c *Catalog) ActivityHooks() activity.Hooks {
	if c == nil {
		return nil
	}
	return cloneActivityHooks(c.cfg.activityHooks)
}

func newActivityEmitter(cfg catalogConfig) *activity.Emitter {
	config := activity.Config{Enabled: len(cfg.activityHooks) > 0}
	if cfg.activityConfig != nil {
		config = *cfg.activityConfig
	}
	return activity.NewEmitter(cfg.activityHooks, config)
}

// emit forwards event to the activity hooks. Hook failures are logged and
// never fail the catalog operation that produced the event.
func (c *Catalog) emit(ctx context.Context, event activity.Event) {
	if c == nil || !c.emitter.Enabled() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.emitter.Emit(ctx, event); err != nil {
		c.logger().Warn("activity hook failed", "verb", event.Verb, "subject", event.Subject(), "error", err)
	}
}

func (c *Catalog) emitStratumUpdated(m *Model, stratum string, traits ...string) {
	if c == nil || !c.emitter.Enabled() {
		return
	}
	entry, _ := c.Order().Lookup(stratum)
	input := activity.CatalogEventInput{
		ModelID:   m.ID(),
		ModelType: m.Type(),
		Stratum: activity.StratumContext{
			Name:     entry.Name,
			Role:     entry.Role.String(),
			Priority: entry.Priority,
		},
		Traits: traits,
	}
	if source := m.SourceReference(); source != nil {
		input.ParentID = source.ID()
	}
	c.emit(context.Background(), activity.BuildStratumUpdatedEvent(input))
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}
