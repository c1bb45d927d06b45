package connector

import (
	"context"
	"fmt"
)

// Connector executes native command batches.
//
// Implementations must be safe for use by one goroutine at a time. Pool hands
// each query exclusive use of one Connector for its duration.
type Connector interface {
	Execute(ctx context.Context, commands []map[string]any, blobs [][]byte) (*Response, error)
}

// Response is the result of executing a command batch.
type Response struct {
	// Status is 0 when all commands succeeded.
	Status int

	// JSON holds one {Verb: body} object per command, in command order.
	JSON []map[string]any

	// Blobs holds output payloads in result order.
	Blobs [][]byte
}

// Func adapts a function to the Connector interface.
type Func func(ctx context.Context, commands []map[string]any, blobs [][]byte) (*Response, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, commands []map[string]any, blobs [][]byte) (*Response, error) {
	return f(ctx, commands, blobs)
}

// Body returns the body of result i, checking that it answers verb.
func (r *Response) Body(i int, verb string) (map[string]any, error) {
	if i < 0 || i >= len(r.JSON) {
		return nil, fmt.Errorf("response has %d results, want index %d", len(r.JSON), i)
	}
	raw, ok := r.JSON[i][verb]
	if !ok {
		return nil, fmt.Errorf("result %d does not answer %s", i, verb)
	}
	body, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("result %d: %s body is %T, want object", i, verb, raw)
	}
	return body, nil
}

// CommandStatus returns the per-command status of a result body. A missing
// status counts as success.
func CommandStatus(body map[string]any) int {
	switch s := body["status"].(type) {
	case float64:
		return int(s)
	case int:
		return s
	case int64:
		return int(s)
	}
	return 0
}

// Verb returns the single key of a {Verb: body} object.
func Verb(obj map[string]any) (string, error) {
	if len(obj) != 1 {
		return "", fmt.Errorf("expected exactly one verb, got %d keys", len(obj))
	}
	for k := range obj {
		return k, nil
	}
	return "", nil
}
