// Package usersink forwards catalog activity to a go-users ActivitySink.
package usersink

import (
	"context"
	"maps"
	"strings"

	"github.com/goliatone/go-strata/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Object types written on records.
const (
	ObjectModel = "catalog_model"
	ObjectURL   = "catalog_url"
)

// Hook adapts catalog activity events to a go-users ActivitySink.
type Hook struct {
	Sink usertypes.ActivitySink
}

// Notify maps event into an ActivityRecord. Model events are recorded
// against the model id; dispatch events without a model against the URL.
// A "user_id" metadata entry that parses as a UUID becomes the record's
// UserID. Identifiers that are not UUIDs are recorded as uuid.Nil.
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}
	event = activity.NormalizeEvent(event)
	if !event.Valid() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	record := usertypes.ActivityRecord{
		ActorID:    parseUUID(event.ActorID),
		TenantID:   parseUUID(event.TenantID),
		Verb:       event.Verb,
		ObjectType: ObjectModel,
		ObjectID:   event.ModelID,
		Channel:    event.Channel,
		Data:       recordData(event),
		OccurredAt: event.OccurredAt,
	}
	if event.ModelID == "" {
		record.ObjectType = ObjectURL
		record.ObjectID = event.URL
	}
	if raw, ok := event.Metadata["user_id"].(string); ok {
		record.UserID = parseUUID(raw)
	}
	return h.Sink.Log(ctx, record)
}

func recordData(event activity.Event) map[string]any {
	data := maps.Clone(event.Metadata)
	if data == nil {
		data = map[string]any{}
	}
	for key, value := range map[string]string{
		"model_type": event.ModelType,
		"parent_id":  event.ParentID,
		"url":        event.URL,
	} {
		if value != "" {
			data[key] = value
		}
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

func parseUUID(input string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.Nil
	}
	return id
}
