package planner

import (
	sq "github.com/Masterminds/squirrel"

	"relquery/internal/schema"
	"relquery/internal/sqlutil"
)

// PlanFind builds the primary query for table. The table is referenced under
// its own name so to-one filter joins read as table__relation.
func PlanFind(d sqlutil.Dialect, table *schema.Table, q Query) (CompiledQuery, error) {
	if err := validateLimitOffset(q.Limit, q.Offset); err != nil {
		return CompiledQuery{}, err
	}
	alias := table.StoredName

	cols, err := BuildProjection(d, table, alias, q.Select)
	if err != nil {
		return CompiledQuery{}, err
	}
	if len(cols) == 0 {
		return CompiledQuery{}, unsupported(table.Name, "", "empty projection")
	}
	exprs, aliases := projectionSQL(d, cols)

	c := NewCompilation(d)
	where, err := CompileWhere(c, table, alias, q.Where)
	if err != nil {
		return CompiledQuery{}, err
	}
	order, err := orderClauses(d, table, alias, q.OrderBy)
	if err != nil {
		return CompiledQuery{}, err
	}

	builder := sq.Select(exprs...).From(fromClause(d, table, alias))
	for _, join := range where.Joins {
		builder = builder.JoinClause(join)
	}
	if where.SQL != "" {
		builder = builder.Where(sq.Expr(where.SQL, c.Binder.Args()...))
	}
	if len(order) > 0 {
		builder = builder.OrderBy(order...)
	}
	if limit, args := limitClause(d, q.Limit, q.Offset); limit != "" {
		builder = builder.Suffix(limit, args...)
	}

	sql, args, err := builder.PlaceholderFormat(d.Placeholder).ToSql()
	if err != nil {
		return CompiledQuery{}, err
	}
	return CompiledQuery{SQL: sql, Args: args, Columns: aliases}, nil
}
