package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"relquery/internal/filter"
	"relquery/internal/planner"
	"relquery/internal/schema"
)

// ParseRequest decodes a JSON find request:
//
//	{"table": "post", "select": {...}, "where": {...}, "orderBy": [...], "take": 10, "skip": 0}
//
// A select object maps a column to true, and a relation to true or to a
// nested {"select", "where", "orderBy", "limit", "offset"} object. Fields
// set to false are left out. Malformed shapes are reported as
// *filter.ParseError, unknown names as *schema.Error.
func ParseRequest(s *schema.Schema, data []byte) (FindOptions, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return FindOptions{}, &filter.ParseError{Msg: fmt.Sprintf("request must be a JSON object: %v", err)}
	}

	if err := checkKeys(raw, "", "table", "select", "where", "orderBy", "take", "skip"); err != nil {
		return FindOptions{}, err
	}
	name, ok := raw["table"].(string)
	if !ok || name == "" {
		return FindOptions{}, &filter.ParseError{Path: "table", Msg: "table name is required"}
	}
	table, err := s.Table(name)
	if err != nil {
		return FindOptions{}, err
	}

	opts := FindOptions{Table: table.Name}
	if opts.Select, err = parseSelection(table, raw["select"], "select"); err != nil {
		return FindOptions{}, err
	}
	if opts.Where, err = filter.ParseValue(table, raw["where"]); err != nil {
		return FindOptions{}, err
	}
	if opts.OrderBy, err = parseOrderBy(table, raw["orderBy"], "orderBy"); err != nil {
		return FindOptions{}, err
	}
	if opts.Take, err = parseCount(raw["take"], "take"); err != nil {
		return FindOptions{}, err
	}
	if opts.Skip, err = parseCount(raw["skip"], "skip"); err != nil {
		return FindOptions{}, err
	}
	return opts, nil
}

// parseSelection keeps the table's declaration order: columns first, then
// relations. An absent or empty object selects every scalar column.
func parseSelection(table *schema.Table, raw any, path string) (planner.Selection, error) {
	if raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &filter.ParseError{Path: path, Msg: fmt.Sprintf("select must be an object, got %T", raw)}
	}
	if len(obj) == 0 {
		return nil, nil
	}
	for _, key := range sortedKeys(obj) {
		if _, _, err := table.Field(key); err != nil {
			return nil, err
		}
	}

	sel := planner.Selection{}
	for _, col := range table.Columns {
		value, present := obj[col.Name]
		if !present {
			continue
		}
		include, ok := value.(bool)
		if !ok {
			return nil, &filter.ParseError{Path: join(path, col.Name), Msg: "column selections must be true or false"}
		}
		if include {
			sel = append(sel, planner.SelectItem{Field: col.Name})
		}
	}
	for _, rel := range table.Relations {
		value, present := obj[rel.Name]
		if !present {
			continue
		}
		switch v := value.(type) {
		case bool:
			if v {
				sel = append(sel, planner.SelectItem{Field: rel.Name})
			}
		case map[string]any:
			spec, err := parseRelationSelect(rel.TargetTable(), v, join(path, rel.Name))
			if err != nil {
				return nil, err
			}
			sel = append(sel, planner.SelectItem{Field: rel.Name, Relation: spec})
		default:
			return nil, &filter.ParseError{Path: join(path, rel.Name), Msg: fmt.Sprintf("relation selections must be a boolean or an object, got %T", value)}
		}
	}
	if len(sel) == 0 {
		return nil, &filter.ParseError{Path: path, Msg: "select excludes every field"}
	}
	return sel, nil
}

func parseRelationSelect(target *schema.Table, raw map[string]any, path string) (*planner.RelationSelect, error) {
	if err := checkKeys(raw, path, "select", "where", "orderBy", "limit", "offset"); err != nil {
		return nil, err
	}
	spec := &planner.RelationSelect{}
	var err error
	if spec.Select, err = parseSelection(target, raw["select"], join(path, "select")); err != nil {
		return nil, err
	}
	if spec.Where, err = filter.ParseValue(target, raw["where"]); err != nil {
		return nil, err
	}
	if spec.OrderBy, err = parseOrderBy(target, raw["orderBy"], join(path, "orderBy")); err != nil {
		return nil, err
	}
	if spec.Limit, err = parseCount(raw["limit"], join(path, "limit")); err != nil {
		return nil, err
	}
	if spec.Offset, err = parseCount(raw["offset"], join(path, "offset")); err != nil {
		return nil, err
	}
	return spec, nil
}

// parseOrderBy accepts a list of single-field objects, or one object whose
// fields are ordered by name.
func parseOrderBy(table *schema.Table, raw any, path string) ([]planner.OrderTerm, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return orderTerms(table, v, path)
	case []any:
		var terms []planner.OrderTerm
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, &filter.ParseError{Path: fmt.Sprintf("%s[%d]", path, i), Msg: "order terms must be objects"}
			}
			more, err := orderTerms(table, obj, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			terms = append(terms, more...)
		}
		return terms, nil
	default:
		return nil, &filter.ParseError{Path: path, Msg: fmt.Sprintf("orderBy must be an object or a list, got %T", raw)}
	}
}

func orderTerms(table *schema.Table, obj map[string]any, path string) ([]planner.OrderTerm, error) {
	terms := make([]planner.OrderTerm, 0, len(obj))
	for _, key := range sortedKeys(obj) {
		if _, _, err := table.Field(key); err != nil {
			return nil, err
		}
		direction, _ := obj[key].(string)
		switch strings.ToLower(direction) {
		case "asc":
			terms = append(terms, planner.OrderTerm{Field: key})
		case "desc":
			terms = append(terms, planner.OrderTerm{Field: key, Desc: true})
		default:
			return nil, &filter.ParseError{Path: join(path, key), Msg: `direction must be "asc" or "desc"`}
		}
	}
	return terms, nil
}

func parseCount(raw any, path string) (*int, error) {
	if raw == nil {
		return nil, nil
	}
	num, ok := raw.(json.Number)
	if !ok {
		return nil, &filter.ParseError{Path: path, Msg: fmt.Sprintf("must be a number, got %T", raw)}
	}
	n, err := num.Int64()
	if err != nil || n < 0 {
		return nil, &filter.ParseError{Path: path, Msg: "must be a non-negative integer"}
	}
	count := int(n)
	return &count, nil
}

func checkKeys(raw map[string]any, path string, allowed ...string) error {
	for _, key := range sortedKeys(raw) {
		known := false
		for _, name := range allowed {
			if key == name {
				known = true
				break
			}
		}
		if !known {
			return &filter.ParseError{Path: join(path, key), Msg: "unknown request key"}
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
