package batch

import (
	"fmt"

	"github.com/roach88/graphsql/internal/ir"
)

// Ref is a symbolic command reference.
type Ref string

// Command is one native command before reference resolution.
type Command struct {
	Verb string
	Body map[string]any
}

// CommandBatch is an ordered list of commands plus the input blobs they
// consume and the position of the command whose results become rows.
type CommandBatch struct {
	Commands []Command

	// Blobs are input blobs in consumption order.
	Blobs [][]byte

	// ResultIndex is the command that carries result objects and the cursor.
	ResultIndex int

	// ResultField is the key in the result body holding objects.
	ResultField string

	// Cursor is nil when the result command has no batch clause.
	Cursor *Cursor
}

// Add appends a command and returns its index.
func (b *CommandBatch) Add(verb string, body map[string]any) int {
	b.Commands = append(b.Commands, Command{Verb: verb, Body: body})
	return len(b.Commands) - 1
}

// Result returns the result command.
func (b *CommandBatch) Result() Command {
	return b.Commands[b.ResultIndex]
}

// SetCursor installs a batch clause on the result command.
func (b *CommandBatch) SetCursor(size int) {
	b.Cursor = &Cursor{BatchSize: size}
	b.Result().Body["batch"] = b.Cursor.clause()
}

// Advance reads the cursor from the result body of the last page and, when
// more elements remain, moves the batch clause to the next page.
// It returns false when the previous page was the last.
//
// A result without a batch object is exhaustive.
func (b *CommandBatch) Advance(resultBody map[string]any) (bool, error) {
	if b.Cursor == nil {
		return false, nil
	}
	raw, ok := resultBody["batch"]
	if !ok {
		return false, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return false, fmt.Errorf("batch cursor is %T, want object", raw)
	}
	if err := b.Cursor.update(obj); err != nil {
		return false, err
	}
	if b.Cursor.Done() {
		return false, nil
	}
	b.Cursor.BatchID++
	b.Result().Body["batch"] = b.Cursor.clause()
	return true, nil
}

// Resolve assigns an integer to every "_ref" symbol in command order and
// replaces every use, returning wire-ready commands. The batch itself is
// not modified.
func (b *CommandBatch) Resolve() ([]map[string]any, error) {
	symbols := make(map[Ref]int)
	out := make([]map[string]any, len(b.Commands))
	for i, cmd := range b.Commands {
		body := ir.CloneObject(cmd.Body)
		if body == nil {
			body = map[string]any{}
		}

		// Uses resolve against symbols defined by earlier commands.
		for _, key := range []string{"src", "dst"} {
			if err := resolveUse(body, key, symbols, i); err != nil {
				return nil, err
			}
		}
		if ict, ok := body["is_connected_to"].(map[string]any); ok {
			if err := resolveUse(ict, "ref", symbols, i); err != nil {
				return nil, err
			}
		}

		if raw, ok := body["_ref"]; ok {
			sym, ok := raw.(Ref)
			if !ok {
				return nil, fmt.Errorf("command %d (%s): _ref must be symbolic, got %T", i, cmd.Verb, raw)
			}
			if _, dup := symbols[sym]; dup {
				return nil, fmt.Errorf("command %d (%s): ref %q defined twice", i, cmd.Verb, sym)
			}
			symbols[sym] = len(symbols) + 1
			body["_ref"] = symbols[sym]
		}
		out[i] = map[string]any{cmd.Verb: body}
	}
	return out, nil
}

func resolveUse(obj map[string]any, key string, symbols map[Ref]int, idx int) error {
	raw, ok := obj[key]
	if !ok {
		return nil
	}
	sym, ok := raw.(Ref)
	if !ok {
		return fmt.Errorf("command %d: %s must be a symbolic ref, got %T", idx, key, raw)
	}
	n, ok := symbols[sym]
	if !ok {
		return fmt.Errorf("command %d: %s uses undefined ref %q", idx, key, sym)
	}
	obj[key] = n
	return nil
}
