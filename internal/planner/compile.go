package planner

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"relquery/internal/filter"
	"relquery/internal/schema"
	"relquery/internal/sqlutil"
)

// Compilation holds the state shared by every fragment of one statement.
// It is threaded by pointer through the recursive compile and is not safe
// for concurrent use.
type Compilation struct {
	Dialect sqlutil.Dialect
	Binder  *Binder
	Aliases *Aliases
}

// NewCompilation starts a statement for the given dialect.
func NewCompilation(d sqlutil.Dialect) *Compilation {
	return &Compilation{Dialect: d, Binder: &Binder{}, Aliases: &Aliases{}}
}

// WhereClause is a compiled filter. Joins must be appended to the FROM clause
// of the scope the filter was compiled against. An empty SQL means no
// restriction and the WHERE keyword must be omitted.
type WhereClause struct {
	SQL   string
	Joins []string
}

// CompileWhere lowers node against table, referenced in SQL as alias.
func CompileWhere(c *Compilation, table *schema.Table, alias string, node filter.Node) (WhereClause, error) {
	sc := scope{table: table, alias: alias, joins: &joinSet{}}
	frag, err := c.compileNode(sc, node)
	if err != nil {
		return WhereClause{}, err
	}
	return WhereClause{SQL: frag.sql, Joins: sc.joins.clauses()}, nil
}

type scope struct {
	table *schema.Table
	alias string
	joins *joinSet
}

type joinEntry struct {
	alias  string
	clause string
}

// joinSet is the ordered, alias-deduplicated list of to-one joins of a scope.
type joinSet struct {
	entries []joinEntry
}

func (j *joinSet) add(alias, clause string) {
	for _, e := range j.entries {
		if e.alias == alias {
			return
		}
	}
	j.entries = append(j.entries, joinEntry{alias: alias, clause: clause})
}

func (j *joinSet) merge(other *joinSet) {
	for _, e := range other.entries {
		j.add(e.alias, e.clause)
	}
}

func (j *joinSet) clauses() []string {
	out := make([]string, len(j.entries))
	for i, e := range j.entries {
		out[i] = e.clause
	}
	return out
}

// fragment is a boolean SQL expression. compound marks top-level AND/OR that
// must be parenthesized when nested.
type fragment struct {
	sql      string
	compound bool
}

func (f fragment) empty() bool { return f.sql == "" }

func (f fragment) wrapped() string {
	if f.compound {
		return "(" + f.sql + ")"
	}
	return f.sql
}

func (c *Compilation) compileNode(sc scope, node filter.Node) (fragment, error) {
	switch n := node.(type) {
	case nil:
		return fragment{}, nil
	case filter.Group:
		return c.compileGroup(sc, n)
	case *filter.Group:
		return c.compileGroup(sc, *n)
	case filter.Not:
		return c.compileNot(sc, n)
	case *filter.Not:
		return c.compileNot(sc, *n)
	case filter.Condition:
		return c.compileCondition(sc, n)
	case *filter.Condition:
		return c.compileCondition(sc, *n)
	case filter.RelationCondition:
		return c.compileRelation(sc, n)
	case *filter.RelationCondition:
		return c.compileRelation(sc, *n)
	default:
		return fragment{}, fmt.Errorf("unknown filter node %T", node)
	}
}

func (c *Compilation) compileGroup(sc scope, g filter.Group) (fragment, error) {
	if len(g.Children) == 0 {
		return fragment{}, &filter.ParseError{Msg: fmt.Sprintf("%s group requires at least one child", g.Op)}
	}

	mark := c.Binder.Len()
	joinMark := len(sc.joins.entries)
	parts := make([]string, 0, len(g.Children))
	for _, child := range g.Children {
		frag, err := c.compileNode(sc, child)
		if err != nil {
			return fragment{}, err
		}
		if frag.empty() {
			if g.Op == filter.Or {
				// One unrestricted branch makes the disjunction unrestricted.
				c.Binder.truncate(mark)
				sc.joins.entries = sc.joins.entries[:joinMark]
				return fragment{}, nil
			}
			continue
		}
		parts = append(parts, frag.wrapped())
	}

	switch len(parts) {
	case 0:
		return fragment{}, nil
	case 1:
		return fragment{sql: parts[0]}, nil
	default:
		return fragment{sql: strings.Join(parts, " "+g.Op.String()+" "), compound: true}, nil
	}
}

func (c *Compilation) compileNot(sc scope, n filter.Not) (fragment, error) {
	frag, err := c.compileNode(sc, n.Child)
	if err != nil {
		return fragment{}, err
	}
	if frag.empty() {
		return fragment{sql: "1=0"}, nil
	}
	return fragment{sql: "NOT (" + frag.sql + ")"}, nil
}

func (c *Compilation) compileCondition(sc scope, cond filter.Condition) (fragment, error) {
	col, rel, err := sc.table.Field(cond.Field)
	if err != nil {
		return fragment{}, err
	}
	if rel != nil {
		return fragment{}, unsupported(sc.table.Name, cond.Field, "value filter on relation %s", rel.Kind)
	}
	if col.Embedded {
		return fragment{}, unsupported(sc.table.Name, col.Name, "filter on embedded value")
	}

	ref := c.Dialect.Qualify(sc.alias, col.StoredName)
	switch operand := cond.Operand.(type) {
	case filter.Scalar:
		return c.compileComparison(sc.table, col, ref, filter.Comparison{Op: filter.OpEquals, Value: operand.Value})
	case filter.Operators:
		if len(operand) == 0 {
			return fragment{}, &filter.ParseError{Path: cond.Field, Msg: "operator object is empty"}
		}
		parts := make([]string, 0, len(operand))
		for _, cmp := range operand {
			frag, err := c.compileComparison(sc.table, col, ref, cmp)
			if err != nil {
				return fragment{}, err
			}
			parts = append(parts, frag.sql)
		}
		return fragment{sql: strings.Join(parts, " AND "), compound: len(parts) > 1}, nil
	default:
		return fragment{}, &filter.ParseError{Path: cond.Field, Msg: fmt.Sprintf("missing operand (%T)", cond.Operand)}
	}
}

var operatorsByType = map[schema.ScalarType]map[filter.Operator]bool{
	schema.String: {
		filter.OpEquals: true, filter.OpNot: true,
		filter.OpGt: true, filter.OpGte: true, filter.OpLt: true, filter.OpLte: true,
		filter.OpIn: true, filter.OpNotIn: true,
		filter.OpContains: true, filter.OpStartsWith: true, filter.OpEndsWith: true,
	},
	schema.Number: {
		filter.OpEquals: true, filter.OpNot: true,
		filter.OpGt: true, filter.OpGte: true, filter.OpLt: true, filter.OpLte: true,
		filter.OpIn: true, filter.OpNotIn: true,
	},
	schema.Boolean: {
		filter.OpEquals: true, filter.OpNot: true,
	},
	schema.UUID: {
		filter.OpEquals: true, filter.OpNot: true,
		filter.OpIn: true, filter.OpNotIn: true,
	},
}

var comparisonSQL = map[filter.Operator]string{
	filter.OpEquals: "=",
	filter.OpNot:    "<>",
	filter.OpGt:     ">",
	filter.OpGte:    ">=",
	filter.OpLt:     "<",
	filter.OpLte:    "<=",
}

func (c *Compilation) compileComparison(table *schema.Table, col *schema.Column, ref string, cmp filter.Comparison) (fragment, error) {
	if !operatorsByType[col.Type][cmp.Op] {
		return fragment{}, unsupported(table.Name, col.Name, "operator %s for %s column", cmp.Op, col.Type)
	}

	switch cmp.Op {
	case filter.OpEquals, filter.OpNot:
		if cmp.Value == nil {
			if cmp.Op == filter.OpEquals {
				return fragment{sql: ref + " IS NULL"}, nil
			}
			return fragment{sql: ref + " IS NOT NULL"}, nil
		}
		fallthrough
	case filter.OpGt, filter.OpGte, filter.OpLt, filter.OpLte:
		if cmp.Value == nil {
			return fragment{}, invalidValue(table.Name, col.Name, "%s requires a non-null value", cmp.Op)
		}
		value, err := bindValue(table, col, cmp.Value)
		if err != nil {
			return fragment{}, err
		}
		return fragment{sql: fmt.Sprintf("%s %s %s", ref, comparisonSQL[cmp.Op], c.Binder.Bind(value))}, nil
	case filter.OpIn, filter.OpNotIn:
		values, err := listValues(table, col, cmp)
		if err != nil {
			return fragment{}, err
		}
		if len(values) == 0 {
			if cmp.Op == filter.OpIn {
				return fragment{sql: "1=0"}, nil
			}
			return fragment{sql: "1=1"}, nil
		}
		keyword := "IN"
		if cmp.Op == filter.OpNotIn {
			keyword = "NOT IN"
		}
		return fragment{sql: fmt.Sprintf("%s %s (%s)", ref, keyword, c.Binder.BindAll(values))}, nil
	case filter.OpContains, filter.OpStartsWith, filter.OpEndsWith:
		s, ok := cmp.Value.(string)
		if !ok {
			return fragment{}, invalidValue(table.Name, col.Name, "%s requires a string, got %T", cmp.Op, cmp.Value)
		}
		pattern := sqlutil.EscapeLike(s)
		switch cmp.Op {
		case filter.OpContains:
			pattern = "%" + pattern + "%"
		case filter.OpStartsWith:
			pattern = pattern + "%"
		case filter.OpEndsWith:
			pattern = "%" + pattern
		}
		return fragment{sql: fmt.Sprintf("%s LIKE %s ESCAPE '%c'", ref, c.Binder.Bind(pattern), sqlutil.LikeEscapeChar)}, nil
	default:
		return fragment{}, unsupported(table.Name, col.Name, "operator %q", cmp.Op)
	}
}

func listValues(table *schema.Table, col *schema.Column, cmp filter.Comparison) ([]any, error) {
	if cmp.Value == nil {
		return nil, invalidValue(table.Name, col.Name, "%s requires a list", cmp.Op)
	}
	rv := reflect.ValueOf(cmp.Value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, invalidValue(table.Name, col.Name, "%s requires a list, got %T", cmp.Op, cmp.Value)
	}
	values := make([]any, rv.Len())
	for i := range values {
		v, err := bindValue(table, col, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// bindValue converts an operand value into the form bound for col.
func bindValue(table *schema.Table, col *schema.Column, value any) (any, error) {
	if col.Type != schema.UUID || value == nil {
		return value, nil
	}
	switch v := value.(type) {
	case uuid.UUID:
		return v.String(), nil
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return nil, invalidValue(table.Name, col.Name, "%q is not a uuid", v)
		}
		return parsed.String(), nil
	default:
		return nil, invalidValue(table.Name, col.Name, "uuid requires a string, got %T", value)
	}
}

func (c *Compilation) compileRelation(sc scope, rc filter.RelationCondition) (fragment, error) {
	col, rel, err := sc.table.Field(rc.Relation)
	if err != nil {
		return fragment{}, err
	}
	if col != nil {
		return fragment{}, unsupported(sc.table.Name, rc.Relation, "relation filter on column")
	}

	switch rel.Kind {
	case schema.ManyToOne, schema.OneToOneOwner:
		if rc.Quantifier != filter.Is {
			return fragment{}, unsupported(sc.table.Name, rel.Name, "%s quantifier on %s relation", rc.Quantifier, rel.Kind)
		}
		return c.compileJoinFilter(sc, rel, rc.Where)
	case schema.OneToOneNonOwner:
		if rc.Quantifier != filter.Is {
			return fragment{}, unsupported(sc.table.Name, rel.Name, "%s quantifier on %s relation", rc.Quantifier, rel.Kind)
		}
		return c.compileExists(sc, rel, rc.Where, existsSome)
	case schema.OneToMany, schema.ManyToMany:
		switch rc.Quantifier {
		case filter.Is, filter.Some:
			return c.compileExists(sc, rel, rc.Where, existsSome)
		case filter.None:
			return c.compileExists(sc, rel, rc.Where, existsNone)
		case filter.Every:
			return c.compileExists(sc, rel, rc.Where, existsEvery)
		default:
			return fragment{}, unsupported(sc.table.Name, rel.Name, "quantifier %s", rc.Quantifier)
		}
	default:
		return fragment{}, unsupported(sc.table.Name, rel.Name, "relation kind %s", rel.Kind)
	}
}

// compileJoinFilter filters through an owning to-one relation with a LEFT JOIN
// in the current scope. An empty sub-filter adds neither join nor conjunct.
func (c *Compilation) compileJoinFilter(sc scope, rel *schema.Relation, where filter.Node) (fragment, error) {
	target := rel.TargetTable()
	joinAlias := JoinAlias(sc.alias, rel.Name)
	child := scope{table: target, alias: joinAlias, joins: &joinSet{}}

	frag, err := c.compileNode(child, where)
	if err != nil {
		return fragment{}, err
	}
	if frag.empty() {
		return fragment{}, nil
	}

	d := c.Dialect
	on := joinPredicates(d, sc.alias, schema.StoredNames(rel.LocalColumns()), joinAlias, schema.StoredNames(rel.RemoteColumns()))
	sc.joins.add(joinAlias, fmt.Sprintf("LEFT JOIN %s ON %s", d.TableAs(target.StoredName, joinAlias), on))
	sc.joins.merge(child.joins)
	return fragment{sql: "(" + frag.sql + ")"}, nil
}

// relationSource opens a subquery scope over the rows related through rel.
// keys are the subquery columns matching rel.LocalColumns positionally.
func (c *Compilation) relationSource(rel *schema.Relation) (sub scope, from string, keys []string) {
	d := c.Dialect
	target := rel.TargetTable()
	targetAlias := c.Aliases.Next(target.Name)
	sub = scope{table: target, alias: targetAlias, joins: &joinSet{}}

	if rel.Kind == schema.ManyToMany {
		junction := rel.JunctionTable()
		junctionAlias := c.Aliases.Next(junction)
		on := joinPredicates(d, junctionAlias, rel.JunctionRemoteColumns(), targetAlias, schema.StoredNames(rel.RemoteColumns()))
		from = fmt.Sprintf("%s INNER JOIN %s ON %s", d.TableAs(junction, junctionAlias), d.TableAs(target.StoredName, targetAlias), on)
		return sub, from, qualifyAll(d, junctionAlias, rel.JunctionLocalColumns())
	}

	from = d.TableAs(target.StoredName, targetAlias)
	return sub, from, qualifyAll(d, targetAlias, schema.StoredNames(rel.RemoteColumns()))
}

// existsMode selects how a to-many sub-filter is quantified.
type existsMode int

const (
	existsSome existsMode = iota
	existsNone
	existsEvery
)

// compileExists emits a correlated EXISTS over the related rows for some, and
// NOT EXISTS for none and every. Related rows with NULL keys never correlate,
// so the fragment stays two-valued under NOT. For every the sub-filter must
// be true, so a child on which it is NULL counts against the parent; an empty
// sub-filter under every is vacuously true.
func (c *Compilation) compileExists(sc scope, rel *schema.Relation, where filter.Node, mode existsMode) (fragment, error) {
	mark := c.Binder.Len()
	sub, from, keys := c.relationSource(rel)
	frag, err := c.compileNode(sub, where)
	if err != nil {
		return fragment{}, err
	}
	if mode == existsEvery && frag.empty() {
		c.Binder.truncate(mark)
		return fragment{}, nil
	}

	local := qualifyAll(c.Dialect, sc.alias, schema.StoredNames(rel.LocalColumns()))
	conds := make([]string, len(keys))
	for i := range keys {
		conds[i] = fmt.Sprintf("%s = %s", keys[i], local[i])
	}

	var b strings.Builder
	if mode != existsSome {
		b.WriteString("NOT ")
	}
	fmt.Fprintf(&b, "EXISTS (SELECT 1 FROM %s WHERE %s", fromWithJoins(from, sub.joins), strings.Join(conds, " AND "))
	switch {
	case frag.empty():
	case mode == existsEvery:
		fmt.Fprintf(&b, " AND (%s) IS NOT TRUE", frag.sql)
	default:
		fmt.Fprintf(&b, " AND (%s)", frag.sql)
	}
	b.WriteString(")")
	return fragment{sql: b.String()}, nil
}

func fromWithJoins(from string, joins *joinSet) string {
	clauses := joins.clauses()
	if len(clauses) == 0 {
		return from
	}
	return from + " " + strings.Join(clauses, " ")
}

func joinPredicates(d sqlutil.Dialect, leftAlias string, leftCols []string, rightAlias string, rightCols []string) string {
	pairs := make([]string, len(leftCols))
	for i := range leftCols {
		pairs[i] = fmt.Sprintf("%s = %s", d.Qualify(leftAlias, leftCols[i]), d.Qualify(rightAlias, rightCols[i]))
	}
	return strings.Join(pairs, " AND ")
}

func qualifyAll(d sqlutil.Dialect, alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, col := range cols {
		out[i] = d.Qualify(alias, col)
	}
	return out
}
