package activity

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"time"
)

// Event is a catalog lifecycle occurrence fanned out to hooks. ModelID names
// the model concerned; dispatch events raised before any model exists carry
// only URL. ParentID is the reference or group the model belongs to.
type Event struct {
	Verb       string
	ActorID    string
	TenantID   string
	ModelID    string
	ModelType  string
	ParentID   string
	URL        string
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Subject returns the model id, or the URL for events without a model.
func (e Event) Subject() string {
	if e.ModelID != "" {
		return e.ModelID
	}
	return e.URL
}

// Valid reports whether the event has a verb and a subject.
func (e Event) Valid() bool {
	return e.Verb != "" && e.Subject() != ""
}

// ActivityHook receives normalized activity events.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc allows plain functions to satisfy ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

// Notify dispatches to the underlying function.
func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Only wraps hook so it sees just the listed verbs.
func Only(hook ActivityHook, verbs ...string) ActivityHook {
	return HookFunc(func(ctx context.Context, event Event) error {
		if hook == nil || !slices.Contains(verbs, event.Verb) {
			return nil
		}
		return hook.Notify(ctx, event)
	})
}

// Hooks fans out events to zero or more hooks.
type Hooks []ActivityHook

// Enabled reports whether there are any hooks to notify.
func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify normalizes the event and forwards it to every hook. Invalid events
// are dropped. A failing hook does not stop the others; failures are joined.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}
	normalized := NormalizeEvent(event)
	if !normalized.Valid() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for _, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, normalized); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NormalizeEvent trims identifiers, copies metadata and stamps OccurredAt.
func NormalizeEvent(event Event) Event {
	for _, field := range []*string{
		&event.Verb, &event.ActorID, &event.TenantID, &event.ModelID,
		&event.ModelType, &event.ParentID, &event.URL, &event.Channel,
	} {
		*field = strings.TrimSpace(*field)
	}
	if len(event.Metadata) == 0 {
		event.Metadata = nil
	} else {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	return event
}
