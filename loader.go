package strata

import (
	"context"
	"fmt"
)

// MetadataLoader populates a model from its url or source. Implementations
// own their timeout policy; the catalog imposes none.
type MetadataLoader interface {
	LoadMetadata(ctx context.Context, m *Model) error
}

// LoaderFunc adapts a function to MetadataLoader.
type LoaderFunc func(ctx context.Context, m *Model) error

// LoadMetadata implements MetadataLoader.
func (fn LoaderFunc) LoadMetadata(ctx context.Context, m *Model) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, m)
}

// LoadMetadata loads m with the kind's loadMetadata method, falling back to
// the catalog loader. Kinds with neither load trivially. Failures are
// returned as *LoadError.
func (c *Catalog) LoadMetadata(ctx context.Context, m *Model) error {
	if m == nil {
		return fmt.Errorf("strata: model is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !m.IsLive() {
		return fmt.Errorf("%w: %s", ErrModelDestroyed, m.ID())
	}

	var err error
	switch method, ok := m.Kind().Method(MethodLoadMetadata); {
	case ok:
		_, err = method(ctx, m)
	case c.cfg.loader != nil:
		err = c.cfg.loader.LoadMetadata(ctx, m)
	default:
		return nil
	}
	if err != nil {
		loadErr := &LoadError{ModelID: m.ID(), Type: m.Type(), URL: m.GetString(TraitURL), Err: err}
		c.logger().Debug("metadata load failed", "model", m.ID(), "type", m.Type(), "error", err)
		return loadErr
	}
	return nil
}
