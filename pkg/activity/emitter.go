package activity

import (
	"context"
	"strings"
)

// DefaultChannel is applied to events emitted without a channel.
const DefaultChannel = "catalog"

// Config controls activity emission.
type Config struct {
	Enabled bool
	Channel string
	// Actor and Tenant are stamped on events that do not carry their own.
	Actor  string
	Tenant string
}

// Emitter fans out events to hooks while applying configured defaults.
type Emitter struct {
	hooks   Hooks
	enabled bool
	channel string
	actor   string
	tenant  string
}

// NewEmitter constructs an emitter from hooks and configuration.
func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	normalized := compactHooks(hooks)
	return &Emitter{
		hooks:   normalized,
		enabled: cfg.Enabled && len(normalized) > 0,
		channel: channel,
		actor:   strings.TrimSpace(cfg.Actor),
		tenant:  strings.TrimSpace(cfg.Tenant),
	}
}

// Enabled reports whether emissions should be attempted.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled
}

// Emit forwards the event to all hooks after filling defaults.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	if strings.TrimSpace(event.ActorID) == "" {
		event.ActorID = e.actor
	}
	if strings.TrimSpace(event.TenantID) == "" {
		event.TenantID = e.tenant
	}
	return e.hooks.Notify(ctx, event)
}

func compactHooks(hooks Hooks) Hooks {
	var out Hooks
	for _, hook := range hooks {
		if hook != nil {
			out = append(out, hook)
		}
	}
	return out
}
