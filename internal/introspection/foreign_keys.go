package introspection

import (
	"fmt"
	"sort"
)

// ForeignKey is one column of a foreign key constraint.
type ForeignKey struct {
	ColumnName       string
	ReferencedTable  string
	ReferencedColumn string
	ConstraintName   string
	OrdinalPosition  int
}

// ForeignKeyConstraint is an ordered, possibly composite, foreign key.
type ForeignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// ForeignKeyConstraints groups a table's foreign key columns by constraint,
// ordered by constraint name then column position.
func ForeignKeyConstraints(table Table) []ForeignKeyConstraint {
	if len(table.ForeignKeys) == 0 {
		return nil
	}

	type keyed struct {
		key string
		fk  ForeignKey
	}
	items := make([]keyed, len(table.ForeignKeys))
	for i, fk := range table.ForeignKeys {
		key := fk.ConstraintName
		if key == "" {
			// Unnamed rows never merge.
			key = fmt.Sprintf("__unnamed_%d", i)
		}
		items[i] = keyed{key: key, fk: fk}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].key != items[j].key {
			return items[i].key < items[j].key
		}
		return items[i].fk.OrdinalPosition < items[j].fk.OrdinalPosition
	})

	var out []ForeignKeyConstraint
	lastKey := ""
	for _, item := range items {
		if len(out) == 0 || item.key != lastKey {
			out = append(out, ForeignKeyConstraint{
				ConstraintName:  item.fk.ConstraintName,
				ReferencedTable: item.fk.ReferencedTable,
			})
			lastKey = item.key
		}
		last := &out[len(out)-1]
		last.ColumnNames = append(last.ColumnNames, item.fk.ColumnName)
		last.ReferencedColumns = append(last.ReferencedColumns, item.fk.ReferencedColumn)
	}
	return out
}
