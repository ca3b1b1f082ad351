package planner

import (
	"fmt"

	"relquery/internal/schema"
	"relquery/internal/sqlutil"
)

// ProjectedColumn is one entry of a select list.
type ProjectedColumn struct {
	Expr   string
	Alias  string
	Column *schema.Column
}

// SQL renders the select-list entry.
func (p ProjectedColumn) SQL(d sqlutil.Dialect) string {
	return fmt.Sprintf("%s AS %s", p.Expr, d.Quote(p.Alias))
}

// BuildProjection lowers sel into a select list for table under alias.
// Selected relations contribute only the local key columns needed to
// correlate their follow-up query. Result aliases are property names and each
// appears once. A nil selection projects every scalar column.
func BuildProjection(d sqlutil.Dialect, table *schema.Table, alias string, sel Selection) ([]ProjectedColumn, error) {
	seen := make(map[string]bool)
	var out []ProjectedColumn
	add := func(col *schema.Column) {
		if seen[col.Name] {
			return
		}
		seen[col.Name] = true
		out = append(out, ProjectedColumn{Expr: d.Qualify(alias, col.StoredName), Alias: col.Name, Column: col})
	}

	if sel == nil {
		for _, col := range table.ScalarColumns() {
			add(col)
		}
		return out, nil
	}

	for _, item := range sel {
		col, rel, err := table.Field(item.Field)
		if err != nil {
			return nil, err
		}
		if col != nil {
			if item.Relation != nil {
				return nil, unsupported(table.Name, item.Field, "nested selection on column")
			}
			add(col)
			continue
		}
		for _, key := range rel.LocalColumns() {
			add(key)
		}
	}
	return out, nil
}

func projectionSQL(d sqlutil.Dialect, cols []ProjectedColumn) ([]string, []string) {
	exprs := make([]string, len(cols))
	aliases := make([]string, len(cols))
	for i, col := range cols {
		exprs[i] = col.SQL(d)
		aliases[i] = col.Alias
	}
	return exprs, aliases
}
