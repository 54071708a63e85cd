package strata

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Function represents a callable registered against evaluators.
type Function func(args ...any) (any, error)

// FunctionRegistry stores custom functions keyed by name.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]Function),
	}
}

// Register stores fn under name guarding against duplicates.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("strata: function %q is nil", name)
	}
	if name == "" {
		return fmt.Errorf("strata: function name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	key := strings.ToLower(name)
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("strata: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{
		functions: make(map[string]Function, len(r.functions)),
	}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call executes the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("strata: function registry is nil")
	}
	r.mu.RLock()
	fn := r.functions[strings.ToLower(name)]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("strata: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultFunctions returns a registry holding the URL helpers available to
// matcher expressions:
//
//	glob(pattern, value)   doublestar match, e.g. glob("**/*.csv", path)
//	hasext(value, ext...)  case-insensitive suffix check on the extension
func DefaultFunctions() *FunctionRegistry {
	registry := NewFunctionRegistry()
	_ = registry.Register("glob", globFunction)
	_ = registry.Register("hasext", hasExtFunction)
	return registry
}

func globFunction(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("strata: glob expects 2 arguments, got %d", len(args))
	}
	pattern, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("strata: glob pattern must be a string")
	}
	value, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("strata: glob value must be a string")
	}
	return doublestar.Match(pattern, value)
}

func hasExtFunction(args ...any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("strata: hasext expects a value and at least one extension")
	}
	value, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("strata: hasext value must be a string")
	}
	ext, _ := URLBindings(value)["ext"].(string)
	for _, raw := range args[1:] {
		candidate, ok := raw.(string)
		if !ok {
			continue
		}
		candidate = strings.ToLower(candidate)
		if !strings.HasPrefix(candidate, ".") {
			candidate = "." + candidate
		}
		if ext == candidate {
			return true, nil
		}
	}
	return false, nil
}
