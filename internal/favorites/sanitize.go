package favorites

import (
	"encoding/json"
	"fmt"
)

// SanitizeItem converts an arbitrary item into a plain JSON object with
// every null field removed, recursively. Items round-trip through JSON so
// whatever struct the caller holds ends up in wire shape before storage.
func SanitizeItem(item any) (map[string]any, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("favorites: sanitize: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("favorites: sanitize: item is not an object: %w", err)
	}
	stripNulls(m)
	return m, nil
}

func stripNulls(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			delete(m, k)
		case map[string]any:
			stripNulls(val)
		case []any:
			m[k] = stripNullsSlice(val)
		}
	}
}

func stripNullsSlice(s []any) []any {
	out := s[:0]
	for _, v := range s {
		switch val := v.(type) {
		case nil:
			continue
		case map[string]any:
			stripNulls(val)
		case []any:
			v = stripNullsSlice(val)
		}
		out = append(out, v)
	}
	return out
}
