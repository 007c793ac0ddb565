package rollout

import "sort"

// preferred list-field names, checked in priority order
var itemKeys = []string{"items", "data", "credentials", "results"}

// ExtractItems normalizes the upstream's list-response shapes (bare array,
// {items}, {data}, {credentials}, {results}, or any other array-valued field)
// into a flat slice. Total over all JSON-shaped inputs; never panics.
func ExtractItems(data any) []any {
	switch v := data.(type) {
	case nil:
		return []any{}
	case []any:
		return v
	case map[string]any:
		for _, key := range itemKeys {
			if arr, ok := v[key].([]any); ok {
				return arr
			}
		}
		// fall back to the first array-valued field; sort the keys so the
		// choice is deterministic across map iterations
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if arr, ok := v[k].([]any); ok {
				return arr
			}
		}
	}
	return []any{}
}
