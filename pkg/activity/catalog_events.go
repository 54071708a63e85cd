package activity

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Catalog lifecycle verbs.
const (
	VerbModelAdded        = "model.added"
	VerbModelRemoved      = "model.removed"
	VerbStratumUpdated    = "stratum.updated"
	VerbReferenceResolved = "reference.resolved"
	VerbReferenceFailed   = "reference.failed"
	VerbDispatchMatched   = "dispatch.matched"
	VerbDispatchExhausted = "dispatch.exhausted"
)

// StratumContext describes the stratum an event concerns.
type StratumContext struct {
	Name     string
	Role     string
	Priority int
}

// CatalogEventInput carries the fields shared by catalog events.
type CatalogEventInput struct {
	ModelID    string
	ModelType  string
	ParentID   string
	Stratum    StratumContext
	Traits     []string
	URL        string
	Candidate  string
	Err        error
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildModelAddedEvent records a model entering the catalog.
func BuildModelAddedEvent(input CatalogEventInput) Event {
	return buildCatalogEvent(VerbModelAdded, input)
}

// BuildModelRemovedEvent records a model leaving the catalog.
func BuildModelRemovedEvent(input CatalogEventInput) Event {
	return buildCatalogEvent(VerbModelRemoved, input)
}

// BuildStratumUpdatedEvent records writes into one stratum of a model.
func BuildStratumUpdatedEvent(input CatalogEventInput) Event {
	return buildCatalogEvent(VerbStratumUpdated, input)
}

// BuildReferenceResolvedEvent records a reference producing a target. The
// target id is carried in metadata; the reference is the object.
func BuildReferenceResolvedEvent(input CatalogEventInput) Event {
	return buildCatalogEvent(VerbReferenceResolved, input)
}

// BuildReferenceFailedEvent records a failed reference resolution.
func BuildReferenceFailedEvent(input CatalogEventInput) Event {
	return buildCatalogEvent(VerbReferenceFailed, input)
}

// BuildDispatchMatchedEvent records the dispatch chain picking a candidate.
func BuildDispatchMatchedEvent(input CatalogEventInput) Event {
	return buildCatalogEvent(VerbDispatchMatched, input)
}

// BuildDispatchExhaustedEvent records a dispatch with no surviving candidate.
func BuildDispatchExhaustedEvent(input CatalogEventInput) Event {
	return buildCatalogEvent(VerbDispatchExhausted, input)
}

func buildCatalogEvent(verb string, input CatalogEventInput) Event {
	var metadata map[string]any
	if len(input.Metadata) > 0 {
		metadata = maps.Clone(input.Metadata)
	}
	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}
	if input.Stratum.Name != "" {
		set("stratum", input.Stratum.Name)
		set("stratum_priority", input.Stratum.Priority)
		if input.Stratum.Role != "" {
			set("stratum_role", input.Stratum.Role)
		}
	}
	if len(input.Traits) > 0 {
		set("traits", slices.Clone(input.Traits))
	}
	if input.Candidate != "" {
		set("candidate", input.Candidate)
	}
	if input.Err != nil {
		set("error", input.Err.Error())
	}

	return Event{
		Verb:       verb,
		ModelID:    strings.TrimSpace(input.ModelID),
		ModelType:  strings.TrimSpace(input.ModelType),
		ParentID:   strings.TrimSpace(input.ParentID),
		URL:        strings.TrimSpace(input.URL),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}
