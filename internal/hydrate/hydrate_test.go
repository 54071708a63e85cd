package hydrate

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

type member struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Traits  map[string]any `json:"traits"`
	Members []member       `json:"members"`
}

func TestParseDetectsFormat(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		format Format
		want   map[string]any
	}{
		{
			name:   "json",
			raw:    ` {"name": "Roads", "opacity": 0.5, "layers": ["a", "b"]}`,
			format: FormatJSON,
			want:   map[string]any{"name": "Roads", "opacity": 0.5, "layers": []any{"a", "b"}},
		},
		{
			name:   "yaml",
			raw:    "name: Roads\nopacity: 0.5\ncount: 3\nlayers:\n  - a\n  - b\n",
			format: FormatYAML,
			want:   map[string]any{"name": "Roads", "opacity": 0.5, "count": float64(3), "layers": []any{"a", "b"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, format, err := Parse([]byte(tc.raw))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if format != tc.format {
				t.Fatalf("expected format %s, got %s", tc.format, format)
			}
			if !reflect.DeepEqual(tc.want, got) {
				t.Fatalf("payload mismatch:\nwant: %#v\n got: %#v", tc.want, got)
			}
		})
	}
}

func TestParseRejectsEmptyAndScalars(t *testing.T) {
	if _, _, err := Parse([]byte("   ")); err == nil {
		t.Fatalf("expected error for empty payload")
	}
	if _, _, err := Parse([]byte("- a\n- b\n")); err == nil {
		t.Fatalf("expected error for yaml sequence")
	}
	if _, _, err := Parse([]byte("{not json")); err == nil {
		t.Fatalf("expected error for broken json")
	}
}

func TestDecodeBytesNestedYAML(t *testing.T) {
	raw := `
id: root
type: group
traits:
  name: Root
members:
  - id: roads
    type: csv
    traits:
      url: https://example.com/roads.csv
`
	decoder := NewDecoder[member]()
	got, err := decoder.DecodeBytes(Context{Source: "catalog.yaml"}, []byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "root" || len(got.Members) != 1 || got.Members[0].Traits["url"] != "https://example.com/roads.csv" {
		t.Fatalf("unexpected decode result: %#v", got)
	}
}

func TestDecoderHooksRunInOrder(t *testing.T) {
	var seen []string
	decoder := NewDecoder[member](
		WithPreHook[member](func(ctx Context, payload map[string]any) (map[string]any, error) {
			seen = append(seen, "pre:"+ctx.Source)
			if _, ok := payload["type"]; !ok {
				payload["type"] = "group"
			}
			return payload, nil
		}),
		WithPostHook[member](func(ctx Context, m *member) error {
			seen = append(seen, "post:"+string(ctx.Format))
			if m.ID == "" {
				m.ID = ctx.Source
			}
			return nil
		}),
	)

	got, err := decoder.DecodeBytes(Context{Source: "root"}, []byte(`{"traits": {"name": "Root"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != "group" || got.ID != "root" {
		t.Fatalf("expected hooks to fill defaults, got %#v", got)
	}
	if !reflect.DeepEqual(seen, []string{"pre:root", "post:json"}) {
		t.Fatalf("unexpected hook order %v", seen)
	}
}

func TestDecoderErrorsNameSource(t *testing.T) {
	boom := errors.New("boom")
	decoder := NewDecoder[member](WithPostHook[member](func(Context, *member) error { return boom }))
	_, err := decoder.Decode(Context{Source: "catalog.json"}, map[string]any{"id": "x"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped hook error, got %v", err)
	}
	if !strings.Contains(err.Error(), `"catalog.json"`) {
		t.Fatalf("expected source in error, got %v", err)
	}

	strict := NewDecoder[member](WithDisallowUnknownFields[member]())
	if _, err := strict.Decode(Context{}, map[string]any{"id": "x", "bogus": true}); err == nil {
		t.Fatalf("expected unknown field error")
	}
	if _, err := strict.Decode(Context{}, nil); err == nil {
		t.Fatalf("expected nil payload error")
	}
}

func TestCustomDecoder(t *testing.T) {
	decoder := NewDecoder[member](WithCustomDecoder[member](func(_ Context, payload map[string]any) (member, error) {
		id, _ := payload["key"].(string)
		return member{ID: strings.ToUpper(id)}, nil
	}))
	got, err := decoder.Decode(Context{}, map[string]any{"key": "abc"})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "ABC" {
		t.Fatalf("expected custom decoder result, got %#v", got)
	}
}
