package queryir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseWhere parses a conjunction of comparisons such as
//
//	age >= 30 and name in ('Ann', "Bo") and nickname is not null
//
// Values may be quoted strings, numbers, true/false or a parenthesised or
// bracketed list for IN. Anything else is taken as a bare string.
func ParseWhere(filter string) ([]Predicate, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil, nil
	}
	var preds []Predicate
	for _, part := range splitByAnd(filter) {
		if part == "" {
			return nil, fmt.Errorf("empty term in %q", filter)
		}
		p, err := parseComparison(part)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// splitByAnd splits on " and " (any case) outside quotes.
func splitByAnd(filter string) []string {
	var parts []string
	var quote byte
	start := 0
	lower := strings.ToLower(filter)
	for i := 0; i < len(filter); i++ {
		c := filter[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case strings.HasPrefix(lower[i:], " and "):
			parts = append(parts, strings.TrimSpace(filter[start:i]))
			i += len(" and ") - 1
			start = i + 1
		}
	}
	return append(parts, strings.TrimSpace(filter[start:]))
}

// Keyword operators are tried before symbols so "not in" wins over "in".
var keywordOps = []string{"is not null", "is null", "not in", "in"}

var symbolOps = []string{"==", "!=", "<>", "<=", ">=", "=", "<", ">"}

func parseComparison(expr string) (Predicate, error) {
	end := 0
	for end < len(expr) && isFieldByte(expr[end]) {
		end++
	}
	field := expr[:end]
	if field == "" {
		return nil, fmt.Errorf("expected a column name in %q", expr)
	}
	rest := strings.TrimSpace(expr[end:])
	lower := strings.ToLower(rest)

	for _, kw := range keywordOps {
		if !strings.HasPrefix(lower, kw) {
			continue
		}
		tail := rest[len(kw):]
		if strings.HasSuffix(kw, "null") {
			if strings.TrimSpace(tail) != "" {
				return nil, fmt.Errorf("unexpected %q after %s", strings.TrimSpace(tail), kw)
			}
			return NewPredicate(field, kw, nil)
		}
		if tail != "" && tail[0] != ' ' && tail[0] != '(' && tail[0] != '[' {
			continue
		}
		values, err := parseList(strings.TrimSpace(tail))
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", field, kw, err)
		}
		return NewPredicate(field, kw, values)
	}

	for _, op := range symbolOps {
		if !strings.HasPrefix(rest, op) {
			continue
		}
		raw := strings.TrimSpace(rest[len(op):])
		if raw == "" {
			return nil, fmt.Errorf("missing value after %s %s", field, op)
		}
		return NewPredicate(field, op, parseLiteral(raw))
	}
	return nil, fmt.Errorf("unsupported expression %q", expr)
}

func isFieldByte(c byte) bool {
	return c == '_' || c == '.' || c == '@' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func parseList(s string) ([]any, error) {
	if len(s) < 2 {
		return nil, fmt.Errorf("expected a list, got %q", s)
	}
	open, closing := s[0], s[len(s)-1]
	if !(open == '(' && closing == ')') && !(open == '[' && closing == ']') {
		return nil, fmt.Errorf("expected a list, got %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	values := []any{}
	if body == "" {
		return values, nil
	}
	for _, item := range splitList(body) {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, fmt.Errorf("empty list item in %q", s)
		}
		values = append(values, parseLiteral(item))
	}
	return values, nil
}

// splitList splits on commas outside quotes.
func splitList(body string) []string {
	var items []string
	var quote byte
	start := 0
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ',':
			items = append(items, body[start:i])
			start = i + 1
		}
	}
	return append(items, body[start:])
}

func parseLiteral(raw string) any {
	if len(raw) >= 2 {
		if (raw[0] == '\'' && raw[len(raw)-1] == '\'') || (raw[0] == '"' && raw[len(raw)-1] == '"') {
			return raw[1 : len(raw)-1]
		}
	}
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	n := json.Number(raw)
	if _, err := n.Float64(); err == nil && json.Valid([]byte(raw)) {
		return n
	}
	return raw
}
