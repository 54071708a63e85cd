package references

import (
	"context"
	"errors"
	"fmt"

	strata "github.com/goliatone/go-strata"
)

const (
	// DatasetItemType is the type tag of dataset items.
	DatasetItemType = "dataset-item"
	// StratumDataset is the load stratum carrying the dataset's name and url.
	StratumDataset = "dataset"
	// TraitDataset holds the dataset description of an item.
	TraitDataset = "dataset"
)

// Dataset describes one dataset inside a container service.
type Dataset struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// RegisterDatasetItem registers the dataset-item kind on c. Items always
// resolve to a new model of containerType. Before the target is returned the
// dataset stratum is written on both the item and the target.
func RegisterDatasetItem(c *strata.Catalog, containerType string) (*strata.Kind, error) {
	if containerType == "" {
		return nil, errors.New("references: dataset item container type must be provided")
	}
	if _, ok := c.Order().Lookup(StratumDataset); !ok {
		if _, err := c.Order().AddLoadStratum(StratumDataset); err != nil {
			return nil, fmt.Errorf("references: register %s stratum: %w", StratumDataset, err)
		}
	}
	return c.RegisterKind(
		strata.Definition{
			Type: DatasetItemType,
			Traits: []strata.TraitDescriptor{
				strata.Object(TraitDataset, "The dataset this item points at inside its container."),
			},
		},
		strata.CatalogMember(),
		strata.URL(),
		strata.Reference(datasetItemLoader(containerType)),
	)
}

// SetDataset records dataset on item in stratum.
func SetDataset(item *strata.Model, stratum string, dataset Dataset) error {
	return item.SetTrait(stratum, TraitDataset, dataset)
}

// ItemDataset returns the dataset resolved on item.
func ItemDataset(item *strata.Model) (Dataset, bool) {
	value, ok := strata.Value[map[string]any](item, TraitDataset)
	if !ok {
		return Dataset{}, false
	}
	name, _ := value["name"].(string)
	url, _ := value["url"].(string)
	if name == "" && url == "" {
		return Dataset{}, false
	}
	return Dataset{Name: name, URL: url}, true
}

func datasetItemLoader(containerType string) strata.ReferenceLoader {
	return func(_ context.Context, ref *strata.Model, _ *strata.Model) (*strata.Model, error) {
		dataset, hasDataset := ItemDataset(ref)
		if hasDataset {
			if err := overlayDataset(ref, dataset); err != nil {
				return nil, err
			}
		}

		target := ref.Catalog().CreateCatalogMember(containerType, ref.ID(), ref)
		if target == nil {
			return nil, fmt.Errorf("%w: %s", strata.ErrUnknownKind, containerType)
		}
		if hasDataset {
			if err := overlayDataset(target, dataset); err != nil {
				return nil, err
			}
		}
		return target, nil
	}
}

// overlayDataset writes the dataset stratum on m unless m already holds it.
func overlayDataset(m *strata.Model, dataset Dataset) error {
	if m.HasStratum(StratumDataset) {
		return nil
	}
	schema := m.Kind().Schema()
	values := map[string]any{}
	if _, ok := schema.Trait(strata.TraitName); ok && dataset.Name != "" {
		values[strata.TraitName] = dataset.Name
	}
	if _, ok := schema.Trait(strata.TraitURL); ok && dataset.URL != "" {
		values[strata.TraitURL] = dataset.URL
	}
	if len(values) == 0 {
		return nil
	}
	return m.SetTraits(StratumDataset, values)
}
