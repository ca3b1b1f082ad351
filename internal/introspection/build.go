package introspection

import (
	"log/slog"
	"sort"
	"strings"

	"relquery/internal/naming"
	"relquery/internal/schema"
)

// Build turns physical tables into a resolved schema. Pure junction tables
// are hidden behind many-to-many relations; every other foreign key yields
// an owning to-one relation and its inverse on the referenced table.
func Build(tables []Table, namer *naming.Namer, logger *slog.Logger) (*schema.Schema, error) {
	if namer == nil {
		namer = naming.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &builder{
		namer:     namer,
		logger:    logger,
		junctions: findPureJunctions(tables),
		byName:    make(map[string]*schema.Table),
		props:     make(map[string]map[string]string),
	}

	var out []*schema.Table
	for _, t := range tables {
		if _, isJunction := b.junctions[t.Name]; isJunction {
			continue
		}
		out = append(out, b.addTable(t))
	}

	fkCount := make(map[string]map[string]int)
	for _, t := range tables {
		for _, fk := range ForeignKeyConstraints(t) {
			if fkCount[t.Name] == nil {
				fkCount[t.Name] = make(map[string]int)
			}
			fkCount[t.Name][fk.ReferencedTable]++
		}
	}

	for _, t := range tables {
		if _, ok := b.byName[t.Name]; !ok || t.IsView {
			continue
		}
		for _, fk := range ForeignKeyConstraints(t) {
			b.addForeignKey(t, fk, fkCount[t.Name][fk.ReferencedTable] == 1)
		}
	}

	names := make([]string, 0, len(b.junctions))
	for name := range b.junctions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.addJunction(b.junctions[name])
	}

	return schema.New(out)
}

type builder struct {
	namer     *naming.Namer
	logger    *slog.Logger
	junctions map[string]pureJunction
	byName    map[string]*schema.Table
	// props maps table -> stored column name -> property name.
	props map[string]map[string]string
}

func (b *builder) addTable(t Table) *schema.Table {
	table := &schema.Table{Name: t.Name, StoredName: t.Name}
	props := make(map[string]string, len(t.Columns))
	for _, col := range t.Columns {
		name := b.namer.RegisterColumn(t.Name, col.Name)
		typ, embedded := ScalarType(col)
		table.Columns = append(table.Columns, &schema.Column{
			Name:       name,
			StoredName: col.Name,
			PrimaryKey: col.IsPrimaryKey,
			Type:       typ,
			Nullable:   col.IsNullable,
			Embedded:   embedded,
		})
		props[col.Name] = name
	}
	b.byName[t.Name] = table
	b.props[t.Name] = props
	return table
}

func (b *builder) addForeignKey(t Table, fk ForeignKeyConstraint, isOnlyFK bool) {
	owner := b.byName[t.Name]
	target, ok := b.byName[fk.ReferencedTable]
	if !ok {
		b.skip(t.Name, fk, "referenced table is not exposed")
		return
	}
	joins, ok := b.pairs(t.Name, fk.ColumnNames, fk.ReferencedTable, fk.ReferencedColumns)
	if !ok {
		b.skip(t.Name, fk, "key columns do not map to known columns")
		return
	}

	oneToOne := sameColumns(fk.ColumnNames, primaryKeyNames(t))
	source := fk.ConstraintName
	if source == "" {
		source = strings.Join(fk.ColumnNames, ",")
	}

	ownerKind, inverseKind := schema.ManyToOne, schema.OneToMany
	ownerName := b.namer.RegisterRelation(t.Name, b.namer.ManyToOneName(fk.ColumnNames[0]), source, true)
	var inverseName string
	if oneToOne {
		ownerKind, inverseKind = schema.OneToOneOwner, schema.OneToOneNonOwner
		inverseName = b.namer.RegisterRelation(target.Name, b.namer.OneToOneInverseName(t.Name), source, true)
	} else {
		inverseName = b.namer.RegisterRelation(target.Name, b.namer.OneToManyName(t.Name, fk.ColumnNames[0], isOnlyFK), source, false)
	}

	owner.Relations = append(owner.Relations, &schema.Relation{
		Name:        ownerName,
		Kind:        ownerKind,
		Target:      target.Name,
		Inverse:     inverseName,
		JoinColumns: joins,
	})
	target.Relations = append(target.Relations, &schema.Relation{
		Name:    inverseName,
		Kind:    inverseKind,
		Target:  owner.Name,
		Inverse: ownerName,
	})
}

func (b *builder) addJunction(j pureJunction) {
	left, right := b.byName[j.Left.ReferencedTable], b.byName[j.Right.ReferencedTable]
	if left == nil || right == nil {
		return
	}
	ownerCols, ok := b.junctionPairs(j.Left)
	if !ok {
		b.skip(j.Table, j.Left, "key columns do not map to known columns")
		return
	}
	inverseCols, ok := b.junctionPairs(j.Right)
	if !ok {
		b.skip(j.Table, j.Right, "key columns do not map to known columns")
		return
	}

	leftName := b.namer.RegisterManyToMany(left.Name, right.Name, j.Table)
	rightName := b.namer.RegisterManyToMany(right.Name, left.Name, j.Table)
	left.Relations = append(left.Relations, &schema.Relation{
		Name:    leftName,
		Kind:    schema.ManyToMany,
		Target:  right.Name,
		Inverse: rightName,
		Junction: &schema.Junction{
			Name:           j.Table,
			OwnerColumns:   ownerCols,
			InverseColumns: inverseCols,
		},
	})
	right.Relations = append(right.Relations, &schema.Relation{
		Name:    rightName,
		Kind:    schema.ManyToMany,
		Target:  left.Name,
		Inverse: leftName,
	})
}

// pairs maps stored key columns of two tables onto property-name join pairs.
func (b *builder) pairs(table string, cols []string, referenced string, refCols []string) ([]schema.JoinColumn, bool) {
	if len(cols) == 0 || len(cols) != len(refCols) {
		return nil, false
	}
	out := make([]schema.JoinColumn, len(cols))
	for i := range cols {
		local, ok := b.props[table][cols[i]]
		if !ok {
			return nil, false
		}
		remote, ok := b.props[referenced][refCols[i]]
		if !ok {
			return nil, false
		}
		out[i] = schema.JoinColumn{Column: local, ReferencedColumn: remote}
	}
	return out, true
}

// junctionPairs keeps junction columns stored; only the referenced side is a property.
func (b *builder) junctionPairs(fk ForeignKeyConstraint) ([]schema.JoinColumn, bool) {
	if len(fk.ColumnNames) == 0 || len(fk.ColumnNames) != len(fk.ReferencedColumns) {
		return nil, false
	}
	out := make([]schema.JoinColumn, len(fk.ColumnNames))
	for i, col := range fk.ColumnNames {
		remote, ok := b.props[fk.ReferencedTable][fk.ReferencedColumns[i]]
		if !ok {
			return nil, false
		}
		out[i] = schema.JoinColumn{Column: col, ReferencedColumn: remote}
	}
	return out, true
}

func (b *builder) skip(table string, fk ForeignKeyConstraint, reason string) {
	b.logger.Warn("skipping foreign key relation",
		slog.String("table", table),
		slog.String("constraint", fk.ConstraintName),
		slog.Any("columns", fk.ColumnNames),
		slog.String("referenced_table", fk.ReferencedTable),
		slog.String("reason", reason),
	)
}

func primaryKeyNames(t Table) []string {
	var out []string
	for _, col := range t.Columns {
		if col.IsPrimaryKey {
			out = append(out, col.Name)
		}
	}
	return out
}

func sameColumns(a, b []string) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, c := range a {
		set[c] = true
	}
	for _, c := range b {
		if !set[c] {
			return false
		}
	}
	return true
}
