package ir

// Clone returns a deep copy of a JSON-shaped value. Maps and slices are
// copied recursively; scalars and unknown types are returned as is.
func Clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Clone(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// CloneObject is Clone specialised to objects.
func CloneObject(obj map[string]any) map[string]any {
	if obj == nil {
		return nil
	}
	return Clone(obj).(map[string]any)
}
