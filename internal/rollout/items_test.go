package rollout

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestExtractItems(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []any
	}{
		{"nil", nil, []any{}},
		{"empty array", []any{}, []any{}},
		{"bare array", []any{float64(5)}, []any{float64(5)}},
		{"items field", map[string]any{"items": []any{float64(1)}}, []any{float64(1)}},
		{"data field", map[string]any{"data": []any{float64(2)}}, []any{float64(2)}},
		{"credentials field", map[string]any{"credentials": []any{"c"}}, []any{"c"}},
		{"results field", map[string]any{"results": []any{float64(3)}}, []any{float64(3)}},
		{"unknown array field", map[string]any{"foo": []any{float64(4)}}, []any{float64(4)}},
		{"empty object", map[string]any{}, []any{}},
		{"scalar", "nope", []any{}},
		{"object without arrays", map[string]any{"a": "x", "b": float64(1)}, []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractItems(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractItems(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractItemsPriorityOrder(t *testing.T) {
	// items wins over data, data over results, regardless of key order
	in := map[string]any{
		"results": []any{"r"},
		"data":    []any{"d"},
		"items":   []any{"i"},
	}
	if got := ExtractItems(in); !reflect.DeepEqual(got, []any{"i"}) {
		t.Errorf("expected items field to win, got %v", got)
	}

	delete(in, "items")
	if got := ExtractItems(in); !reflect.DeepEqual(got, []any{"d"}) {
		t.Errorf("expected data field to win, got %v", got)
	}
}

func TestExtractItemsFromDecodedJSON(t *testing.T) {
	var v any
	if err := json.Unmarshal([]byte(`{"_metadata":{"next":"abc"},"notes":[{"id":"n1"}]}`), &v); err != nil {
		t.Fatal(err)
	}
	got := ExtractItems(v)
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %v", got)
	}
	note, ok := got[0].(map[string]any)
	if !ok || note["id"] != "n1" {
		t.Errorf("unexpected item %v", got[0])
	}
}
