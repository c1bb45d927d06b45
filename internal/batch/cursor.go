package batch

import "fmt"

// Cursor tracks pagination of the result command.
type Cursor struct {
	BatchID   int
	BatchSize int

	// TotalElements and End are reported by the backend after each page.
	TotalElements int64
	End           int64

	seen bool
}

// Done reports whether the last reported page reached the end.
func (c *Cursor) Done() bool {
	return c.seen && c.End >= c.TotalElements
}

func (c *Cursor) clause() map[string]any {
	return map[string]any{"batch_id": c.BatchID, "batch_size": c.BatchSize}
}

func (c *Cursor) update(obj map[string]any) error {
	total, ok := asInt(obj["total_elements"])
	if !ok {
		return fmt.Errorf("batch cursor: missing total_elements")
	}
	end, ok := asInt(obj["end"])
	if !ok {
		return fmt.Errorf("batch cursor: missing end")
	}
	if c.seen && end <= c.End && end < total {
		return fmt.Errorf("batch cursor did not advance: end %d after %d", end, c.End)
	}
	c.TotalElements = total
	c.End = end
	c.seen = true
	return nil
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
