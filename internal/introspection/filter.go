package introspection

// Filter restricts which tables and columns become part of the schema.
// Patterns are case-insensitive globs. Missing allow lists default to
// allow-all; deny rules always win. Column maps are keyed by table glob.
type Filter struct {
	AllowTables  []string
	DenyTables   []string
	AllowColumns map[string][]string
	DenyColumns  map[string][]string
}

// Apply returns the tables and columns the filter admits. Foreign keys
// survive only when every column on both sides survives; tables left without
// columns are dropped.
func (f Filter) Apply(tables []Table) []Table {
	allowedTables := make(map[string]bool, len(tables))
	filtered := make([]Table, 0, len(tables))
	for _, table := range tables {
		if !tableAllowed(table.Name, f.AllowTables, f.DenyTables) {
			continue
		}

		columns := make([]Column, 0, len(table.Columns))
		for _, column := range table.Columns {
			if columnAllowed(table.Name, column.Name, f.AllowColumns, f.DenyColumns) {
				columns = append(columns, column)
			}
		}
		if len(columns) == 0 {
			continue
		}
		table.Columns = columns
		filtered = append(filtered, table)
		allowedTables[table.Name] = true
	}

	allowedColumns := make(map[string]map[string]bool, len(filtered))
	for _, table := range filtered {
		names := make(map[string]bool, len(table.Columns))
		for _, column := range table.Columns {
			names[column.Name] = true
		}
		allowedColumns[table.Name] = names
	}

	for i := range filtered {
		filtered[i].ForeignKeys = filterForeignKeys(filtered[i], allowedTables, allowedColumns)
	}
	return filtered
}

// filterForeignKeys drops whole constraints, so a composite key never loses
// only some of its columns.
func filterForeignKeys(table Table, allowedTables map[string]bool, allowedColumns map[string]map[string]bool) []ForeignKey {
	if len(table.ForeignKeys) == 0 {
		return nil
	}
	admits := func(fk ForeignKey) bool {
		return allowedTables[fk.ReferencedTable] &&
			allowedColumns[table.Name][fk.ColumnName] &&
			allowedColumns[fk.ReferencedTable][fk.ReferencedColumn]
	}

	dropped := make(map[string]bool)
	for _, fk := range table.ForeignKeys {
		if fk.ConstraintName != "" && !admits(fk) {
			dropped[fk.ConstraintName] = true
		}
	}

	kept := make([]ForeignKey, 0, len(table.ForeignKeys))
	for _, fk := range table.ForeignKeys {
		if fk.ConstraintName != "" && dropped[fk.ConstraintName] {
			continue
		}
		if !admits(fk) {
			continue
		}
		kept = append(kept, fk)
	}
	return kept
}

func tableAllowed(table string, allow, deny []string) bool {
	if matchesAny(table, deny) {
		return false
	}
	if len(allow) == 0 {
		return true
	}
	return matchesAny(table, allow)
}

func columnAllowed(table, column string, allow, deny map[string][]string) bool {
	if matchesAny(column, mergePatterns(deny, table)) {
		return false
	}
	allowPatterns := mergePatterns(allow, table)
	if len(allowPatterns) == 0 {
		return true
	}
	return matchesAny(column, allowPatterns)
}
