package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"relquery/internal/schema"
)

// ParseError reports a malformed filter shape.
type ParseError struct {
	Path string
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return "invalid filter: " + e.Msg
	}
	return fmt.Sprintf("invalid filter at %s: %s", e.Path, e.Msg)
}

func parseErrorf(path, format string, args ...any) *ParseError {
	return &ParseError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// Parse builds a filter tree for table from a decoded JSON object. Keys are
// processed in sorted order so the result is deterministic. Unknown keys are
// reported as *schema.Error wrapping schema.ErrUnknownField.
func Parse(table *schema.Table, raw map[string]any) (Node, error) {
	return parseObject(table, raw, "")
}

// ParseValue is Parse for an undecoded operand; nil yields a nil Node.
func ParseValue(table *schema.Table, raw any) (Node, error) {
	if raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, parseErrorf("", "filter must be an object, got %T", raw)
	}
	return Parse(table, obj)
}

func parseObject(table *schema.Table, raw map[string]any, path string) (Node, error) {
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	nodes := make([]Node, 0, len(keys))
	for _, key := range keys {
		node, err := parseEntry(table, key, raw[key], join(path, key))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return AndOf(nodes...), nil
}

func parseEntry(table *schema.Table, key string, value any, path string) (Node, error) {
	col, rel, err := table.Field(key)
	if err != nil {
		switch strings.ToUpper(key) {
		case "AND", "OR", "NOT":
			return parseCombinator(table, strings.ToUpper(key), value, path)
		}
		return nil, err
	}
	if col != nil {
		operand, err := parseOperand(value, path)
		if err != nil {
			return nil, err
		}
		return Condition{Field: col.Name, Operand: operand}, nil
	}
	return parseRelation(rel, value, path)
}

func parseCombinator(table *schema.Table, key string, value any, path string) (Node, error) {
	var items []any
	switch v := value.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return nil, parseErrorf(path, "%s expects an object or an array of objects, got %T", key, value)
	}
	if len(items) == 0 {
		return nil, parseErrorf(path, "%s requires at least one filter", key)
	}

	children := make([]Node, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, parseErrorf(fmt.Sprintf("%s[%d]", path, i), "expected an object, got %T", item)
		}
		child, err := parseObject(table, obj, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	switch key {
	case "OR":
		return OrOf(children...), nil
	case "NOT":
		inner := AndOf(children...)
		if inner == nil {
			return nil, parseErrorf(path, "NOT requires a non-empty filter")
		}
		return Not{Child: inner}, nil
	default:
		return AndOf(children...), nil
	}
}

var quantifierKeys = map[string]Quantifier{
	"some":  Some,
	"every": Every,
	"none":  None,
	"is":    Is,
}

func parseRelation(rel *schema.Relation, value any, path string) (Node, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, parseErrorf(path, "relation filter must be an object, got %T", value)
	}
	target := rel.TargetTable()

	// Quantifier keys only apply when they do not name a field of the target.
	quantified := make(map[string]any)
	rest := make(map[string]any)
	for key, v := range obj {
		if _, isQuantifier := quantifierKeys[key]; isQuantifier {
			if col, r, _ := target.Field(key); col == nil && r == nil {
				quantified[key] = v
				continue
			}
		}
		rest[key] = v
	}

	if len(quantified) == 0 {
		where, err := parseObject(target, rest, path)
		if err != nil {
			return nil, err
		}
		q := Is
		if rel.Kind.ToMany() {
			q = Some
		}
		return RelationCondition{Relation: rel.Name, Quantifier: q, Where: where}, nil
	}
	if len(rest) > 0 {
		return nil, parseErrorf(path, "relation filter mixes quantifiers with field filters")
	}

	keys := make([]string, 0, len(quantified))
	for key := range quantified {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	nodes := make([]Node, 0, len(keys))
	for _, key := range keys {
		subPath := join(path, key)
		var where Node
		if v := quantified[key]; v != nil {
			sub, ok := v.(map[string]any)
			if !ok {
				return nil, parseErrorf(subPath, "%s expects an object, got %T", key, v)
			}
			var err error
			where, err = parseObject(target, sub, subPath)
			if err != nil {
				return nil, err
			}
		}
		nodes = append(nodes, RelationCondition{Relation: rel.Name, Quantifier: quantifierKeys[key], Where: where})
	}
	return AndOf(nodes...), nil
}

func parseOperand(value any, path string) (Operand, error) {
	switch v := value.(type) {
	case map[string]any:
		return parseOperators(v, path)
	case []any:
		return nil, parseErrorf(path, "list operands require the in or notIn operator")
	default:
		normalized, err := normalizeValue(v, path)
		if err != nil {
			return nil, err
		}
		return Scalar{Value: normalized}, nil
	}
}

func parseOperators(raw map[string]any, path string) (Operand, error) {
	if len(raw) == 0 {
		return nil, parseErrorf(path, "operator object is empty")
	}
	ops := make(Operators, 0, len(raw))
	for key, value := range raw {
		op := Operator(key)
		opPath := join(path, key)
		if op.Rank() < 0 {
			return nil, parseErrorf(opPath, "unknown operator %q", key)
		}
		if op.IsList() {
			list, ok := value.([]any)
			if !ok {
				return nil, parseErrorf(opPath, "%s expects an array, got %T", key, value)
			}
			values := make([]any, len(list))
			for i, item := range list {
				normalized, err := normalizeValue(item, fmt.Sprintf("%s[%d]", opPath, i))
				if err != nil {
					return nil, err
				}
				values[i] = normalized
			}
			ops = append(ops, Comparison{Op: op, Value: values})
			continue
		}
		normalized, err := normalizeValue(value, opPath)
		if err != nil {
			return nil, err
		}
		ops = append(ops, Comparison{Op: op, Value: normalized})
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Op.Rank() < ops[j].Op.Rank() })
	return ops, nil
}

// normalizeValue converts JSON-decoded numbers to int64 when they are whole.
func normalizeValue(value any, path string) (any, error) {
	switch v := value.(type) {
	case nil, string, bool, int, int32, int64, uint, uint32, uint64:
		return v, nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int64(v), nil
		}
		return v, nil
	case float32:
		return normalizeValue(float64(v), path)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, parseErrorf(path, "invalid number %q", v.String())
		}
		return f, nil
	case map[string]any, []any:
		return nil, parseErrorf(path, "expected a scalar value, got %T", value)
	default:
		return nil, parseErrorf(path, "unsupported value type %T", value)
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
