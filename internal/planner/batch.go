package planner

import (
	"fmt"
	"strings"

	"relquery/internal/schema"
	"relquery/internal/sqlutil"
)

// PlanRelationBatch builds the follow-up query that loads rel's target rows
// for a set of parent key tuples. Each tuple holds values for
// rel.LocalColumns in order. The correlating columns are projected as
// ParentAlias(i) after the selected columns. Limit and offset apply per parent
// through a ROW_NUMBER() window and are rejected on to-one relations.
func PlanRelationBatch(d sqlutil.Dialect, rel *schema.Relation, spec RelationSelect, keys [][]any) (CompiledQuery, error) {
	if len(keys) == 0 {
		return CompiledQuery{}, nil
	}
	windowed := spec.Limit != nil || spec.Offset != nil
	if windowed && !rel.Kind.ToMany() {
		return CompiledQuery{}, unsupported(rel.Table().Name, rel.Name, "limit/offset on %s relation", rel.Kind)
	}
	if err := validateLimitOffset(spec.Limit, spec.Offset); err != nil {
		return CompiledQuery{}, err
	}

	target := rel.TargetTable()
	alias := target.StoredName
	cols, err := BuildProjection(d, target, alias, spec.Select)
	if err != nil {
		return CompiledQuery{}, err
	}
	if len(cols) == 0 {
		return CompiledQuery{}, unsupported(target.Name, "", "empty projection")
	}
	exprs, aliases := projectionSQL(d, cols)

	var from string
	var corr []string
	if rel.Kind == schema.ManyToMany {
		junction := rel.JunctionTable()
		junctionAlias := junction
		if junctionAlias == alias {
			junctionAlias = "__" + junction
		}
		from = fmt.Sprintf("%s INNER JOIN %s ON %s",
			fromClause(d, target, alias),
			d.TableAs(junction, junctionAlias),
			joinPredicates(d, junctionAlias, rel.JunctionRemoteColumns(), alias, schema.StoredNames(rel.RemoteColumns())),
		)
		corr = qualifyAll(d, junctionAlias, rel.JunctionLocalColumns())
	} else {
		from = fromClause(d, target, alias)
		corr = qualifyAll(d, alias, schema.StoredNames(rel.RemoteColumns()))
	}
	if len(corr) == 0 {
		return CompiledQuery{}, fmt.Errorf("relation %s.%s has no key mapping", rel.Table().Name, rel.Name)
	}

	c := NewCompilation(d)
	keyCond, err := keyCondition(c.Binder, corr, keys)
	if err != nil {
		return CompiledQuery{}, err
	}
	where, err := CompileWhere(c, target, alias, spec.Where)
	if err != nil {
		return CompiledQuery{}, err
	}
	from = withJoins(from, where.Joins)
	cond := keyCond
	if where.SQL != "" {
		cond += " AND (" + where.SQL + ")"
	}

	order, err := defaultOrderClauses(d, target, alias, spec.OrderBy)
	if err != nil {
		return CompiledQuery{}, err
	}

	parents := ParentAliases(len(corr))
	parentExprs := make([]string, len(corr))
	for i := range corr {
		parentExprs[i] = fmt.Sprintf("%s AS %s", corr[i], d.Quote(parents[i]))
	}
	columns := append(append([]string{}, aliases...), parents...)

	var sql string
	if windowed {
		sql = buildBatchWindowQuery(d, c.Binder, exprs, parentExprs, corr, columns, parents, order, from, cond, spec.Limit, spec.Offset)
	} else {
		sql = fmt.Sprintf("SELECT %s FROM %s WHERE %s",
			strings.Join(append(append([]string{}, exprs...), parentExprs...), ", "), from, cond)
		if len(order) > 0 {
			sql += " ORDER BY " + strings.Join(order, ", ")
		}
	}

	final, err := d.Finalize(sql)
	if err != nil {
		return CompiledQuery{}, err
	}
	return CompiledQuery{SQL: final, Args: c.Binder.Args(), Columns: columns}, nil
}

// buildBatchWindowQuery wraps the batch in the per-parent ROW_NUMBER() window
// so limit and offset apply to each parent separately.
func buildBatchWindowQuery(
	d sqlutil.Dialect,
	b *Binder,
	exprs, parentExprs, partition, columns, parents, order []string,
	from, cond string,
	limit, offset *int,
) string {
	over := "PARTITION BY " + strings.Join(partition, ", ")
	if len(order) > 0 {
		over += " ORDER BY " + strings.Join(order, ", ")
	}

	outer := make([]string, len(columns))
	for i, col := range columns {
		outer[i] = d.Quote(col)
	}
	outerParents := make([]string, len(parents))
	for i, p := range parents {
		outerParents[i] = d.Quote(p)
	}

	inner := append(append([]string{}, exprs...), parentExprs...)
	start := 0
	if offset != nil {
		start = *offset
	}
	window := "__rn > " + b.Bind(start)
	if limit != nil {
		window += " AND __rn <= " + b.Bind(start+*limit)
	}

	return fmt.Sprintf(
		"SELECT %s FROM (SELECT %s, ROW_NUMBER() OVER (%s) AS __rn FROM %s WHERE %s) AS __batch WHERE %s ORDER BY %s, __rn",
		strings.Join(outer, ", "),
		strings.Join(inner, ", "),
		over,
		from,
		cond,
		window,
		strings.Join(outerParents, ", "),
	)
}

// keyCondition restricts cols to the key tuples. Composite keys expand to a
// disjunction of conjunctions, which every supported dialect accepts.
func keyCondition(b *Binder, cols []string, keys [][]any) (string, error) {
	width := len(cols)
	if width == 1 {
		flat := make([]any, len(keys))
		for i, key := range keys {
			if len(key) != 1 {
				return "", fmt.Errorf("key tuple width mismatch: expected 1 value, got %d", len(key))
			}
			flat[i] = key[0]
		}
		return fmt.Sprintf("%s IN (%s)", cols[0], b.BindAll(flat)), nil
	}

	rows := make([]string, len(keys))
	for i, key := range keys {
		if len(key) != width {
			return "", fmt.Errorf("key tuple width mismatch: expected %d values, got %d", width, len(key))
		}
		parts := make([]string, width)
		for j := range cols {
			parts[j] = fmt.Sprintf("%s = %s", cols[j], b.Bind(key[j]))
		}
		rows[i] = "(" + strings.Join(parts, " AND ") + ")"
	}
	return "(" + strings.Join(rows, " OR ") + ")", nil
}

// CheckSelection plans every relation follow-up reachable from sel against a
// placeholder key, so an invalid nested spec fails before any query runs.
func CheckSelection(d sqlutil.Dialect, table *schema.Table, sel Selection) error {
	rels, specs, err := sel.Relations(table)
	if err != nil {
		return err
	}
	for i, rel := range rels {
		probe := [][]any{make([]any, len(rel.LocalColumns()))}
		if _, err := PlanRelationBatch(d, rel, specs[i], probe); err != nil {
			return err
		}
		if err := CheckSelection(d, rel.TargetTable(), specs[i].Select); err != nil {
			return err
		}
	}
	return nil
}
