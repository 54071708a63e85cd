package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	strata "github.com/goliatone/go-strata"
	"github.com/goliatone/go-strata/pkg/activity"
	"github.com/goliatone/go-strata/pkg/logging"
	"github.com/goliatone/go-strata/pkg/references"
	"github.com/goliatone/go-strata/pkg/rules"
	"github.com/goliatone/go-strata/schema/openapi"
)

// GroupType is the kind registered for definitions that hold members.
const GroupType = "group"

type session struct {
	catalog *strata.Catalog
	logger  *logging.Logger
}

func (s *session) Close() {
	s.logger.Sync()
}

// openSession builds a catalog with the group and url-reference kinds, one
// plain kind per type named in the rules file, and the rules themselves.
func openSession(opts *rootOptions) (*session, error) {
	logger, err := logging.New(opts.logMode, opts.logLevel)
	if err != nil {
		return nil, err
	}
	catalogOpts := []strata.Option{
		strata.WithLogger(logger),
		strata.WithEngine(opts.engine),
		strata.WithLoader(httpLoader{client: &http.Client{Timeout: opts.timeout}}),
		openapi.Option(openapi.WithInfo("catalogctl", "1.0.0", "Catalog member trait schemas")),
	}
	if opts.trace {
		catalogOpts = append(catalogOpts, strata.WithActivityHooks(activity.Hooks{traceHook(logger)}))
	}
	c, err := strata.New(catalogOpts...)
	if err != nil {
		return nil, err
	}
	if _, err := c.RegisterKind(strata.Definition{Type: GroupType}, strata.CatalogMember(), strata.Group()); err != nil {
		return nil, err
	}
	if _, err := references.RegisterURLReference(c); err != nil {
		return nil, err
	}

	if opts.rulesPath != "" {
		raw, err := os.ReadFile(opts.rulesPath)
		if err != nil {
			return nil, fmt.Errorf("read rules: %w", err)
		}
		file, err := rules.Parse(opts.rulesPath, raw)
		if err != nil {
			return nil, err
		}
		for _, rule := range file.Rules {
			if _, ok := c.Registry().Kind(rule.Type); ok {
				continue
			}
			if _, err := c.RegisterKind(strata.Definition{Type: rule.Type}, strata.CatalogMember(), strata.URL()); err != nil {
				return nil, err
			}
		}
		if _, err := rules.Load(c, opts.rulesPath, raw); err != nil {
			return nil, err
		}
	}
	return &session{catalog: c, logger: logger}, nil
}

func traceHook(logger *logging.Logger) activity.ActivityHook {
	return activity.HookFunc(func(_ context.Context, event activity.Event) error {
		logger.Info("catalog activity",
			"verb", event.Verb,
			"model_id", event.ModelID,
			"model_type", event.ModelType,
			"url", event.URL,
			"metadata", event.Metadata,
		)
		return nil
	})
}

// httpLoader performs trial loads by issuing a HEAD request to the model url.
type httpLoader struct {
	client *http.Client
}

func (l httpLoader) LoadMetadata(ctx context.Context, m *strata.Model) error {
	url := m.GetString(strata.TraitURL)
	if url == "" {
		return fmt.Errorf("model %q has no url", m.ID())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("HEAD %s: %s", url, resp.Status)
	}
	return nil
}

// describeModel returns the resolved traits of m keyed by name, plus its
// identity and the strata it holds.
func describeModel(m *strata.Model) map[string]any {
	traits := map[string]any{}
	for _, name := range m.Kind().Schema().Names() {
		if value, ok := m.Resolve(name); ok {
			traits[name] = value
		}
	}
	out := map[string]any{
		"id":     m.ID(),
		"type":   m.Type(),
		"strata": m.StratumNames(),
		"traits": traits,
	}
	if m.IsReference() {
		out["status"] = m.ReferenceStatus().String()
		if target := m.Target(); target != nil {
			out["target"] = describeModel(target)
		}
		if err := m.ReferenceError(); err != nil {
			out["error"] = err.Error()
		}
	}
	return out
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
