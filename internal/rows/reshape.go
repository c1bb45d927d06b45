package rows

import (
	"fmt"

	"github.com/roach88/graphsql/internal/ir"
	"github.com/roach88/graphsql/internal/options"
)

// Reshape extracts raw objects from a result body.
type Reshape func(body map[string]any) ([]map[string]any, error)

// Flat returns the objects listed under field.
//
// When listed is false the command asked for no properties and the backend
// omits the field; "returned" then gives the number of objects, each
// represented by an empty object so payloads still line up.
func Flat(field string, listed bool) Reshape {
	return func(body map[string]any) ([]map[string]any, error) {
		raw, ok := body[field]
		if !ok {
			if listed {
				if n, ok := count(body["returned"]); ok && n == 0 {
					return nil, nil
				}
				return nil, fmt.Errorf("result has no %q field", field)
			}
			n, ok := count(body["returned"])
			if !ok {
				return nil, fmt.Errorf("result has no %q count", "returned")
			}
			out := make([]map[string]any, n)
			for i := range out {
				out[i] = map[string]any{}
			}
			return out, nil
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("result field %q is %T, want list", field, raw)
		}
		out := make([]map[string]any, len(list))
		for i, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("result %d is %T, want object", i, item)
			}
			out[i] = obj
		}
		return out, nil
	}
}

// GroupedPairs flattens a group_by_source result into endpoint pairs.
// Keys are the ids of the originating endpoint; members carry _uniqueid.
// When originIsSrc the key becomes _src and the member _dst, otherwise the
// reverse. Pairs are emitted in key order then member order.
func GroupedPairs(field string, originIsSrc bool) Reshape {
	keyCol, memberCol := options.ColSrc, options.ColDst
	if !originIsSrc {
		keyCol, memberCol = options.ColDst, options.ColSrc
	}
	return func(body map[string]any) ([]map[string]any, error) {
		raw, ok := body[field]
		if !ok {
			if n, ok := count(body["returned"]); ok && n == 0 {
				return nil, nil
			}
			return nil, fmt.Errorf("grouped result has no %q field", field)
		}
		groups, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("grouped result field %q is %T, want object", field, raw)
		}
		var out []map[string]any
		for _, key := range ir.SortedKeys(groups) {
			members, ok := groups[key].([]any)
			if !ok {
				return nil, fmt.Errorf("group %q is %T, want list", key, groups[key])
			}
			for _, m := range members {
				obj, ok := m.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("group %q member is %T, want object", key, m)
				}
				id, ok := obj[options.ColUniqueID].(string)
				if !ok {
					return nil, fmt.Errorf("group %q member has no %s", key, options.ColUniqueID)
				}
				out = append(out, map[string]any{keyCol: key, memberCol: id})
			}
		}
		return out, nil
	}
}

func count(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}
