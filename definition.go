package strata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-strata/internal/hydrate"
)

// Definition keys that describe the member rather than its traits.
const (
	definitionKeyID      = "id"
	definitionKeyType    = "type"
	definitionKeyMembers = "members"
)

// MemberDefinition is a declarative catalog member: its id, type tag, trait
// values and, for groups, nested member definitions.
type MemberDefinition struct {
	ID      string             `json:"id,omitempty"`
	Type    string             `json:"type"`
	Traits  map[string]any     `json:"traits,omitempty"`
	Members []MemberDefinition `json:"members,omitempty"`
}

// ParseDefinitionStratum converts a JSON or YAML description into stratum
// content. The id and type keys are dropped; every other key is a trait.
func ParseDefinitionStratum(raw []byte) (map[string]any, error) {
	payload, _, err := hydrate.Parse(raw)
	if err != nil {
		return nil, err
	}
	delete(payload, definitionKeyID)
	delete(payload, definitionKeyType)
	return payload, nil
}

// ParseDefinition decodes a JSON or YAML member description. Keys other than
// id, type and members become traits; members holding objects are parsed as
// nested definitions.
func ParseDefinition(raw []byte) (MemberDefinition, error) {
	decoder := hydrate.NewDecoder[MemberDefinition](
		hydrate.WithCustomDecoder[MemberDefinition](func(ctx hydrate.Context, payload map[string]any) (MemberDefinition, error) {
			return decodeMemberDefinition(payload, "")
		}),
	)
	return decoder.DecodeBytes(hydrate.Context{Source: "definition"}, raw)
}

func decodeMemberDefinition(payload map[string]any, path string) (MemberDefinition, error) {
	def := MemberDefinition{Traits: map[string]any{}}
	if id, ok := payload[definitionKeyID]; ok {
		s, ok := id.(string)
		if !ok {
			return MemberDefinition{}, fmt.Errorf("strata: definition %s: id must be a string", describePath(path))
		}
		def.ID = s
	}
	if typeTag, ok := payload[definitionKeyType].(string); ok {
		def.Type = strings.TrimSpace(typeTag)
	}
	if def.Type == "" {
		return MemberDefinition{}, fmt.Errorf("strata: definition %s: type must be provided", describePath(path))
	}

	for key, value := range payload {
		switch key {
		case definitionKeyID, definitionKeyType:
			continue
		case definitionKeyMembers:
			items, ok := value.([]any)
			if !ok {
				def.Traits[key] = value
				continue
			}
			nested := false
			for i, item := range items {
				child, ok := item.(map[string]any)
				if !ok {
					continue
				}
				nested = true
				childDef, err := decodeMemberDefinition(child, fmt.Sprintf("%s/members[%d]", path, i))
				if err != nil {
					return MemberDefinition{}, err
				}
				def.Members = append(def.Members, childDef)
			}
			if !nested {
				def.Traits[key] = value
			}
		default:
			def.Traits[key] = value
		}
	}
	return def, nil
}

func describePath(path string) string {
	if path == "" {
		return "root"
	}
	return strings.TrimPrefix(path, "/")
}

// ApplyDefinition writes def and its nested members into stratum, creating
// models that do not exist yet. Members of an unknown type become broken
// models. Groups get the ids of their nested members written to members.
// Every failure is collected and returned together; the models that could
// be applied stay applied.
func (c *Catalog) ApplyDefinition(ctx context.Context, stratum string, def MemberDefinition) (*Model, error) {
	if _, ok := c.Order().Lookup(stratum); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStratum, stratum)
	}
	var errs []error
	root := c.applyMember(ctx, stratum, def, &errs)
	return root, errors.Join(errs...)
}

func (c *Catalog) applyMember(ctx context.Context, stratum string, def MemberDefinition, errs *[]error) *Model {
	if err := ctx.Err(); err != nil {
		*errs = append(*errs, err)
		return nil
	}

	m := c.Get(def.ID)
	switch {
	case IsBroken(m) && def.Type != BrokenType:
		// Reported when the broken model was created.
		return m
	case m != nil && m.Type() != def.Type:
		*errs = append(*errs, fmt.Errorf("strata: definition %q: type %q conflicts with existing %q", def.ID, def.Type, m.Type()))
		return m
	case m == nil:
		m = c.CreateCatalogMember(def.Type, def.ID, nil)
		if m == nil {
			url, _ := def.Traits[TraitURL].(string)
			err := fmt.Errorf("%w: %s", ErrUnknownKind, def.Type)
			*errs = append(*errs, fmt.Errorf("strata: definition %q: %w", def.ID, err))
			m = c.NewBrokenModel(def.ID, url, err)
		}
		if err := c.Add(m); err != nil {
			*errs = append(*errs, err)
			return nil
		}
	}
	if IsBroken(m) && def.Type != BrokenType {
		return m
	}

	names := make([]string, 0, len(def.Traits))
	for name := range def.Traits {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := m.SetTrait(stratum, name, def.Traits[name]); err != nil {
			*errs = append(*errs, fmt.Errorf("strata: definition %q: %w", m.ID(), err))
		}
	}

	if len(def.Members) == 0 {
		return m
	}
	ids := make([]any, 0, len(def.Members))
	for _, childDef := range def.Members {
		child := c.applyMember(ctx, stratum, childDef, errs)
		if child != nil {
			ids = append(ids, child.ID())
		}
	}
	if !m.HasCapability(CapabilityGroup) {
		*errs = append(*errs, fmt.Errorf("strata: definition %q: %s members on a kind without the %s capability", m.ID(), m.Type(), CapabilityGroup))
		return m
	}
	if err := m.SetTrait(stratum, TraitMembers, ids); err != nil {
		*errs = append(*errs, fmt.Errorf("strata: definition %q: %w", m.ID(), err))
	}
	return m
}
