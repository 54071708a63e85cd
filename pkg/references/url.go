package references

import (
	"context"

	strata "github.com/goliatone/go-strata"
)

// URLReferenceType is the type tag of url references.
const URLReferenceType = "url-reference"

// RegisterURLReference registers the url-reference kind on c. Resolving a
// url reference dispatches its url through the catalog's chain; trial loads
// are only attempted when the allowLoad trait is true. The target shares the
// reference's id.
func RegisterURLReference(c *strata.Catalog) (*strata.Kind, error) {
	return c.RegisterKind(
		strata.Definition{Type: URLReferenceType},
		strata.CatalogMember(),
		strata.URL(),
		strata.Reference(loadURLReference),
	)
}

func loadURLReference(ctx context.Context, ref *strata.Model, _ *strata.Model) (*strata.Model, error) {
	url := ref.GetString(strata.TraitURL)
	if url == "" {
		return nil, nil
	}
	return ref.Catalog().Dispatch(ctx, url, ref.GetBool(strata.TraitAllowLoad),
		strata.WithDispatchID(ref.ID()),
		strata.WithDispatchSource(ref),
	)
}
