package strata

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-strata/pkg/activity"
)

// DispatchRule maps URLs accepted by Matcher to CandidateType. Rules with
// RequiresLoad only match when a trial metadata load succeeds.
type DispatchRule struct {
	Name          string
	Matcher       Matcher
	CandidateType string
	RequiresLoad  bool
}

// DispatchChain is an ordered, append-only list of dispatch rules consulted
// in registration order.
type DispatchChain struct {
	mu    sync.RWMutex
	rules []DispatchRule
}

// NewDispatchChain returns an empty chain.
func NewDispatchChain() *DispatchChain {
	return &DispatchChain{}
}

// Register appends a rule. A nil matcher accepts every input.
func (d *DispatchChain) Register(matcher Matcher, candidateType string, requiresLoad bool) error {
	return d.RegisterRule(DispatchRule{
		Matcher:       matcher,
		CandidateType: candidateType,
		RequiresLoad:  requiresLoad,
	})
}

// RegisterRule appends rule.
func (d *DispatchChain) RegisterRule(rule DispatchRule) error {
	rule.CandidateType = strings.TrimSpace(rule.CandidateType)
	if rule.CandidateType == "" {
		return fmt.Errorf("strata: dispatch rule candidate type must be provided")
	}
	if rule.Matcher == nil {
		rule.Matcher = MatchAll()
	}
	if rule.Name == "" {
		rule.Name = rule.CandidateType
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules = append(d.rules, rule)
	return nil
}

// Rules returns the registered rules in order.
func (d *DispatchChain) Rules() []DispatchRule {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]DispatchRule, len(d.rules))
	copy(out, d.rules)
	return out
}

// Len returns the number of registered rules.
func (d *DispatchChain) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rules)
}

// DispatchOption configures a single Dispatch call.
type DispatchOption func(*dispatchConfig)

type dispatchConfig struct {
	id     string
	source *Model
}

// WithDispatchID sets the id given to candidate models.
func WithDispatchID(id string) DispatchOption {
	return func(cfg *dispatchConfig) {
		cfg.id = id
	}
}

// WithDispatchSource records the reference candidates are produced for.
func WithDispatchSource(source *Model) DispatchOption {
	return func(cfg *dispatchConfig) {
		cfg.source = source
	}
}

// Dispatch walks the chain and returns the first candidate model for url.
// Each surviving candidate receives the url-record stratum {name: url,
// url: url}. Rules requiring a load are skipped unless allowTrialLoad is set;
// otherwise the candidate is loaded and discarded on failure. Trial loads run
// one at a time. The returned model is not added to the catalog. When the
// chain is exhausted Dispatch returns a *DispatchError matching
// ErrNoCandidate.
func (c *Catalog) Dispatch(ctx context.Context, url string, allowTrialLoad bool, opts ...DispatchOption) (*Model, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := dispatchConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	var attempts []error
	for _, rule := range c.Chain().Rules() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !rule.Matcher.Match(url) {
			continue
		}
		if rule.RequiresLoad && !allowTrialLoad {
			continue
		}

		candidate := c.CreateCatalogMember(rule.CandidateType, cfg.id, cfg.source)
		if candidate == nil {
			attempts = append(attempts, fmt.Errorf("%w: %s (rule %s)", ErrUnknownKind, rule.CandidateType, rule.Name))
			continue
		}
		if err := candidate.SetTraits(StratumURLRecord, urlRecord(candidate, url)); err != nil {
			candidate.destroy()
			attempts = append(attempts, fmt.Errorf("strata: rule %s: %w", rule.Name, err))
			continue
		}
		if rule.RequiresLoad {
			if err := c.LoadMetadata(ctx, candidate); err != nil {
				candidate.destroy()
				attempts = append(attempts, err)
				c.logger().Debug("dispatch trial load failed", "url", url, "rule", rule.Name, "error", err)
				continue
			}
		}

		c.logger().Debug("dispatch matched", "url", url, "rule", rule.Name, "type", rule.CandidateType)
		input := activity.CatalogEventInput{
			ModelID:   candidate.ID(),
			ModelType: candidate.Type(),
			URL:       url,
			Candidate: rule.Name,
		}
		if cfg.source != nil {
			input.ParentID = cfg.source.ID()
		}
		c.emit(ctx, activity.BuildDispatchMatchedEvent(input))
		return candidate, nil
	}

	err := &DispatchError{URL: url, Attempts: attempts}
	c.emit(ctx, activity.BuildDispatchExhaustedEvent(activity.CatalogEventInput{
		URL: url,
		Err: err,
	}))
	return nil, err
}

func urlRecord(m *Model, url string) map[string]any {
	values := map[string]any{}
	schema := m.Kind().Schema()
	if _, ok := schema.Trait(TraitName); ok {
		values[TraitName] = url
	}
	if _, ok := schema.Trait(TraitURL); ok {
		values[TraitURL] = url
	}
	return values
}
