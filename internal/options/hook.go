package options

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// HookKind tags the closed set of pseudo-column behaviours.
type HookKind string

const (
	HookPassthrough HookKind = "passthrough"
	HookOperations  HookKind = "operations"
	HookBlobToggle  HookKind = "blob_toggle"
	HookFindSimilar HookKind = "find_similar"
)

// ErrEmbeddingUnsupported is returned when a find-similar request asks for
// a text or image embedding. Only explicit vectors are accepted.
var ErrEmbeddingUnsupported = errors.New("find_similar: text and image embedding are not available; supply \"vector\"")

// Hook describes what an equality predicate on a pseudo column does to the
// native command. Only the fields relevant to Kind are set.
type Hook struct {
	Kind HookKind `json:"kind"`

	// Param is the body key written by passthrough hooks.
	Param string `json:"param,omitempty"`

	// Lowercase lower-cases string values written by passthrough hooks.
	Lowercase bool `json:"lowercase,omitempty"`

	// BlobColumn is the column that receives payloads for blob_toggle hooks.
	BlobColumn string `json:"blob_column,omitempty"`

	// OperationTypes lists the accepted "type" values for operations hooks.
	OperationTypes []string `json:"operation_types,omitempty"`

	// Dimensions is the descriptor set dimensionality for find_similar hooks.
	Dimensions int `json:"dimensions,omitempty"`
}

// Passthrough returns a hook copying the value to body[param].
func Passthrough(param string) *Hook {
	return &Hook{Kind: HookPassthrough, Param: param}
}

// BlobToggle returns a hook that sets "blobs" and attaches payloads to column.
func BlobToggle(column string) *Hook {
	return &Hook{Kind: HookBlobToggle, BlobColumn: column}
}

// Operations returns a hook validating an operation pipeline against types.
func Operations(types ...string) *Hook {
	sorted := slices.Clone(types)
	slices.Sort(sorted)
	return &Hook{Kind: HookOperations, OperationTypes: sorted}
}

// FindSimilar returns a find-similar hook for a set of the given dimensions.
func FindSimilar(dimensions int) *Hook {
	return &Hook{Kind: HookFindSimilar, Dimensions: dimensions}
}

// Validate checks that the fields required by Kind are present.
func (h *Hook) Validate() error {
	switch h.Kind {
	case HookPassthrough:
		if h.Param == "" {
			return fmt.Errorf("passthrough hook requires param")
		}
	case HookOperations:
		if len(h.OperationTypes) == 0 {
			return fmt.Errorf("operations hook requires operation_types")
		}
	case HookBlobToggle:
		if h.BlobColumn == "" {
			return fmt.Errorf("blob_toggle hook requires blob_column")
		}
	case HookFindSimilar:
		if h.Dimensions <= 0 {
			return fmt.Errorf("find_similar hook requires positive dimensions, got %d", h.Dimensions)
		}
	default:
		return fmt.Errorf("unknown hook kind %q", h.Kind)
	}
	return nil
}

// ModifyBody applies the hook to a command body for an equality predicate
// with the given value.
func (h *Hook) ModifyBody(value any, body map[string]any) error {
	switch h.Kind {
	case HookPassthrough:
		if h.Lowercase {
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("%s: expected string, got %T", h.Param, value)
			}
			value = strings.ToLower(s)
		}
		body[h.Param] = value
	case HookOperations:
		ops, err := h.parseOperations(value)
		if err != nil {
			return err
		}
		body["operations"] = ops
	case HookBlobToggle:
		flag, ok := value.(bool)
		if !ok {
			return fmt.Errorf("blobs flag: expected boolean, got %T", value)
		}
		body["blobs"] = flag
	case HookFindSimilar:
		req, err := parseJSONObject(value)
		if err != nil {
			return fmt.Errorf("find_similar: %w", err)
		}
		for _, key := range []string{"k_neighbors", "knn_first"} {
			if v, ok := req[key]; ok && v != nil {
				body[key] = v
			}
		}
	default:
		return fmt.Errorf("unknown hook kind %q", h.Kind)
	}
	return nil
}

// ExtraBlobs returns input blobs the hook contributes to the command batch.
// Only find_similar hooks supply blobs.
func (h *Hook) ExtraBlobs(value any) ([][]byte, error) {
	switch h.Kind {
	case HookPassthrough, HookOperations, HookBlobToggle:
		return nil, nil
	case HookFindSimilar:
		req, err := parseJSONObject(value)
		if err != nil {
			return nil, fmt.Errorf("find_similar: %w", err)
		}
		raw, ok := req["vector"]
		if !ok || raw == nil {
			if req["text"] != nil || req["image"] != nil {
				return nil, ErrEmbeddingUnsupported
			}
			return nil, fmt.Errorf("find_similar must have one of 'text', 'image', or 'vector'")
		}
		vec, err := h.packVector(raw)
		if err != nil {
			return nil, err
		}
		return [][]byte{vec}, nil
	default:
		return nil, fmt.Errorf("unknown hook kind %q", h.Kind)
	}
}

// AttachesBlob reports whether, for the given predicate value, the hook
// attaches result payloads to a blob column, and which column.
func (h *Hook) AttachesBlob(value any) (string, bool) {
	if h.Kind != HookBlobToggle {
		return "", false
	}
	flag, ok := value.(bool)
	return h.BlobColumn, ok && flag
}

func (h *Hook) parseOperations(value any) ([]any, error) {
	var ops []any
	switch v := value.(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &ops); err != nil {
			return nil, fmt.Errorf("operations must be an array: %w", err)
		}
	case []any:
		ops = v
	default:
		return nil, fmt.Errorf("operations must be an array, got %T", value)
	}
	for _, op := range ops {
		obj, ok := op.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid operation format: %v; expected an object", op)
		}
		typ, ok := obj["type"].(string)
		if !ok {
			return nil, fmt.Errorf("operation must have 'type' field: %v", op)
		}
		if !slices.Contains(h.OperationTypes, typ) {
			return nil, fmt.Errorf("invalid operation type %q; expected one of %v", typ, h.OperationTypes)
		}
	}
	return ops, nil
}

func (h *Hook) packVector(raw any) ([]byte, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("invalid vector type %T; expected array", raw)
	}
	if len(items) != h.Dimensions {
		return nil, fmt.Errorf("invalid vector length %d; expected %d", len(items), h.Dimensions)
	}
	out := make([]byte, 0, 4*len(items))
	for i, item := range items {
		f, ok := toFloat(item)
		if !ok {
			return nil, fmt.Errorf("invalid vector element %d: %v is not numeric", i, item)
		}
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(float32(f)))
	}
	return out, nil
}

func parseJSONObject(value any) (map[string]any, error) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case string:
		var obj map[string]any
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			return nil, fmt.Errorf("invalid JSON %q: %w", v, err)
		}
		if obj == nil {
			return nil, fmt.Errorf("expected an object, got %s", v)
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("expected an object, got %T", value)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
