package strata

import "sync"

// ProgramCache stores compiled expression programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// NewProgramCache returns a ProgramCache safe for concurrent use.
func NewProgramCache() ProgramCache {
	return &programCache{entries: map[string]any{}}
}

type programCache struct {
	mu      sync.RWMutex
	entries map[string]any
}

func (c *programCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.entries[key]
	return value, ok
}

func (c *programCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}
