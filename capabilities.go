package strata

import "context"

// Built-in capability names.
const (
	CapabilityCatalogMember = "catalog-member"
	CapabilityURL           = "url"
	CapabilityReference     = "reference"
	CapabilityGroup         = "group"
)

// Method names with meaning to the catalog.
const (
	MethodLoadMetadata  = "loadMetadata"
	MethodLoadReference = "loadReference"
)

// Trait names contributed by the built-in capabilities.
const (
	TraitName        = "name"
	TraitDescription = "description"
	TraitInfo        = "info"
	TraitURL         = "url"
	TraitAllowLoad   = "allowLoad"
	TraitIsOpen      = "isOpen"
	TraitMembers     = "members"
)

// CatalogMember is the capability every catalog entry carries.
func CatalogMember() Capability {
	return Capability{
		Name: CapabilityCatalogMember,
		Traits: []TraitDescriptor{
			Primitive(TraitName, "The name of the catalog member."),
			Primitive(TraitDescription, "A description of the catalog member."),
			Object(TraitInfo, "Additional information sections keyed by heading."),
		},
	}
}

// URL adds the url trait.
func URL() Capability {
	return Capability{
		Name:   CapabilityURL,
		Traits: []TraitDescriptor{Primitive(TraitURL, "The URL of the data source.")},
	}
}

// Group adds ordered membership. Members from every stratum are concatenated
// so user added members survive definition reloads.
func Group() Capability {
	return Capability{
		Name:     CapabilityGroup,
		Requires: []string{CapabilityCatalogMember},
		Traits: []TraitDescriptor{
			Primitive(TraitIsOpen, "Whether the group is expanded.").WithDefault(false),
			ModelReferenceArray(TraitMembers, "The ids of the group members.").Concatenable(nil),
		},
	}
}

// ReferenceLoader produces the target model of a reference. previous is the
// target of the last successful resolution, if any. Returning a nil model
// without an error fails the resolution with ErrNoTarget.
type ReferenceLoader func(ctx context.Context, ref *Model, previous *Model) (*Model, error)

// Reference makes a kind a placeholder that resolves into a target model
// produced by loader.
func Reference(loader ReferenceLoader) Capability {
	methods := map[string]Method{}
	if loader != nil {
		methods[MethodLoadReference] = func(ctx context.Context, m *Model, args ...any) (any, error) {
			var previous *Model
			if len(args) > 0 {
				previous, _ = args[0].(*Model)
			}
			target, err := loader(ctx, m, previous)
			if err != nil {
				return nil, err
			}
			if target == nil {
				return nil, nil
			}
			return target, nil
		}
	}
	return Capability{
		Name: CapabilityReference,
		Traits: []TraitDescriptor{
			Primitive(TraitAllowLoad, "Whether resolving may load candidates to test them.").WithDefault(false),
		},
		Methods: methods,
	}
}
