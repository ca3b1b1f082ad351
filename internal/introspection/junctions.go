package introspection

import "sort"

// pureJunction describes a table that only links two other tables.
type pureJunction struct {
	Table string
	Left  ForeignKeyConstraint
	Right ForeignKeyConstraint
}

// findPureJunctions returns tables that qualify as pure junctions:
//   - exactly two foreign keys, to two different known tables
//   - every column belongs to one of the foreign keys
//   - no foreign key column is nullable
//   - the primary key covers every foreign key column
//
// Left is the foreign key whose referenced table sorts first.
func findPureJunctions(tables []Table) map[string]pureJunction {
	known := make(map[string]bool, len(tables))
	for _, t := range tables {
		known[t.Name] = true
	}

	out := make(map[string]pureJunction)
	for _, table := range tables {
		if table.IsView {
			continue
		}
		fks := ForeignKeyConstraints(table)
		if len(fks) != 2 || fks[0].ReferencedTable == fks[1].ReferencedTable {
			continue
		}
		if !known[fks[0].ReferencedTable] || !known[fks[1].ReferencedTable] {
			continue
		}
		if !onlyKeyColumns(table, fks) {
			continue
		}
		sort.Slice(fks, func(i, j int) bool { return fks[i].ReferencedTable < fks[j].ReferencedTable })
		out[table.Name] = pureJunction{Table: table.Name, Left: fks[0], Right: fks[1]}
	}
	return out
}

func onlyKeyColumns(table Table, fks []ForeignKeyConstraint) bool {
	fkCols := make(map[string]bool)
	for _, fk := range fks {
		for _, col := range fk.ColumnNames {
			fkCols[col] = true
		}
	}
	if len(fkCols) != len(table.Columns) {
		return false
	}
	for _, col := range table.Columns {
		if !fkCols[col.Name] || col.IsNullable || !col.IsPrimaryKey {
			return false
		}
	}
	return true
}
