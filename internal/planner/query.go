package planner

import (
	"fmt"
	"strings"

	"relquery/internal/filter"
	"relquery/internal/schema"
	"relquery/internal/sqlutil"
)

// Query describes what to fetch from one table: the primary request, or the
// nested spec of a selected relation.
type Query struct {
	// Select lists the fields to fetch. Nil selects every scalar column.
	Select  Selection
	Where   filter.Node
	OrderBy []OrderTerm
	Limit   *int
	Offset  *int
}

// RelationSelect is the nested spec of a selected relation.
type RelationSelect = Query

// Selection is an ordered list of selected fields.
type Selection []SelectItem

// SelectItem selects a column, or a relation when Field names one. A nil
// Relation on a relation field fetches the related rows' scalar columns.
type SelectItem struct {
	Field    string
	Relation *RelationSelect
}

// OrderTerm orders by a column of the queried table.
type OrderTerm struct {
	Field string
	Desc  bool
}

// CompiledQuery is a finished statement. Args match the placeholders left to
// right and Columns lists the result aliases in scan order.
type CompiledQuery struct {
	SQL     string
	Args    []any
	Columns []string
}

// Empty reports whether there is nothing to execute.
func (q CompiledQuery) Empty() bool {
	return q.SQL == ""
}

// Relations returns the relation items of sel, resolved against table.
func (sel Selection) Relations(table *schema.Table) ([]*schema.Relation, []RelationSelect, error) {
	var rels []*schema.Relation
	var specs []RelationSelect
	for _, item := range sel {
		col, rel, err := table.Field(item.Field)
		if err != nil {
			return nil, nil, err
		}
		if col != nil {
			if item.Relation != nil {
				return nil, nil, unsupported(table.Name, item.Field, "nested selection on column")
			}
			continue
		}
		spec := RelationSelect{}
		if item.Relation != nil {
			spec = *item.Relation
		}
		rels = append(rels, rel)
		specs = append(specs, spec)
	}
	return rels, specs, nil
}

func orderClauses(d sqlutil.Dialect, table *schema.Table, alias string, terms []OrderTerm) ([]string, error) {
	clauses := make([]string, 0, len(terms))
	for _, term := range terms {
		col, _, err := table.Field(term.Field)
		if err != nil {
			return nil, err
		}
		if col == nil {
			return nil, unsupported(table.Name, term.Field, "ordering by relation")
		}
		direction := "ASC"
		if term.Desc {
			direction = "DESC"
		}
		clauses = append(clauses, fmt.Sprintf("%s %s", d.Qualify(alias, col.StoredName), direction))
	}
	return clauses, nil
}

// defaultOrderClauses orders by terms, falling back to the primary key.
func defaultOrderClauses(d sqlutil.Dialect, table *schema.Table, alias string, terms []OrderTerm) ([]string, error) {
	if len(terms) > 0 {
		return orderClauses(d, table, alias, terms)
	}
	pk := table.PrimaryKey()
	clauses := make([]string, len(pk))
	for i, col := range pk {
		clauses[i] = d.Qualify(alias, col.StoredName) + " ASC"
	}
	return clauses, nil
}

func validateLimitOffset(limit, offset *int) error {
	if limit != nil && *limit < 0 {
		return fmt.Errorf("limit must be non-negative")
	}
	if offset != nil && *offset < 0 {
		return fmt.Errorf("offset must be non-negative")
	}
	return nil
}

// limitClause spells LIMIT/OFFSET for the dialect. Values are bound.
func limitClause(d sqlutil.Dialect, limit, offset *int) (string, []any) {
	switch {
	case limit != nil && offset != nil:
		return "LIMIT ? OFFSET ?", []any{*limit, *offset}
	case limit != nil:
		return "LIMIT ?", []any{*limit}
	case offset != nil:
		if lit := d.OffsetOnlyLimit(); lit != "" {
			return "LIMIT " + lit + " OFFSET ?", []any{*offset}
		}
		return "OFFSET ?", []any{*offset}
	default:
		return "", nil
	}
}

func fromClause(d sqlutil.Dialect, table *schema.Table, alias string) string {
	return d.TableAs(table.StoredName, alias)
}

func withJoins(from string, joins []string) string {
	if len(joins) == 0 {
		return from
	}
	return from + " " + strings.Join(joins, " ")
}
