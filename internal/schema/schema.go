package schema

// Schema is a resolved, validated set of tables.
type Schema struct {
	tables []*Table
	byName map[string]*Table
}

// New resolves relation keys and validates the declaration. The tables are
// owned by the returned Schema and must not be modified afterwards.
func New(tables []*Table) (*Schema, error) {
	s := &Schema{
		tables: make([]*Table, 0, len(tables)),
		byName: make(map[string]*Table, len(tables)),
	}

	for _, table := range tables {
		if err := s.addTable(table); err != nil {
			return nil, err
		}
	}
	for _, table := range s.tables {
		for _, rel := range table.Relations {
			if err := s.resolveOwningSide(table, rel); err != nil {
				return nil, err
			}
		}
	}
	for _, table := range s.tables {
		for _, rel := range table.Relations {
			if err := resolveInverse(table, rel); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// Table looks up a table by name.
func (s *Schema) Table(name string) (*Table, error) {
	if table, ok := s.byName[name]; ok {
		return table, nil
	}
	return nil, &Error{Table: name, Err: ErrUnknownTable}
}

// Tables returns the tables in declaration order.
func (s *Schema) Tables() []*Table {
	return s.tables
}

// Field resolves name as a column or a relation of t. Exactly one of the
// returned pointers is non-nil on success.
func (t *Table) Field(name string) (*Column, *Relation, error) {
	if col := t.Column(name); col != nil {
		return col, nil, nil
	}
	if rel := t.Relation(name); rel != nil {
		return nil, rel, nil
	}
	return nil, nil, UnknownField(t.Name, name)
}

func (s *Schema) addTable(table *Table) error {
	if table == nil || table.Name == "" {
		return invalid("", "", "table name is required")
	}
	if _, exists := s.byName[table.Name]; exists {
		return invalid(table.Name, "", "duplicate table")
	}
	if table.StoredName == "" {
		table.StoredName = table.Name
	}

	table.columnsByName = make(map[string]*Column, len(table.Columns))
	table.relationsByName = make(map[string]*Relation, len(table.Relations))
	for _, col := range table.Columns {
		if col == nil || col.Name == "" {
			return invalid(table.Name, "", "column name is required")
		}
		if _, exists := table.columnsByName[col.Name]; exists {
			return invalid(table.Name, col.Name, "duplicate column")
		}
		if col.StoredName == "" {
			col.StoredName = col.Name
		}
		table.columnsByName[col.Name] = col
	}
	for _, rel := range table.Relations {
		if rel == nil || rel.Name == "" {
			return invalid(table.Name, "", "relation name is required")
		}
		if _, exists := table.columnsByName[rel.Name]; exists {
			return invalid(table.Name, rel.Name, "relation name collides with a column")
		}
		if _, exists := table.relationsByName[rel.Name]; exists {
			return invalid(table.Name, rel.Name, "duplicate relation")
		}
		rel.table = table
		table.relationsByName[rel.Name] = rel
	}

	s.tables = append(s.tables, table)
	s.byName[table.Name] = table
	return nil
}

func (s *Schema) resolveOwningSide(table *Table, rel *Relation) error {
	target, ok := s.byName[rel.Target]
	if !ok {
		return invalid(table.Name, rel.Name, "target table %q does not exist", rel.Target)
	}
	rel.target = target

	switch rel.Kind {
	case ManyToOne, OneToOneOwner:
		if rel.Junction != nil {
			return invalid(table.Name, rel.Name, "%s relations cannot declare a junction", rel.Kind)
		}
		if len(rel.JoinColumns) == 0 {
			return invalid(table.Name, rel.Name, "%s relations must declare join columns", rel.Kind)
		}
		local, remote, err := resolvePairs(table, target, rel, rel.JoinColumns, false)
		if err != nil {
			return err
		}
		rel.owning = true
		rel.local = local
		rel.remote = remote
	case ManyToMany:
		if len(rel.JoinColumns) > 0 {
			return invalid(table.Name, rel.Name, "many_to_many relations use a junction, not join columns")
		}
		if rel.Junction == nil {
			if rel.Inverse == "" {
				return invalid(table.Name, rel.Name, "many_to_many relations need a junction or an inverse")
			}
			return nil
		}
		junction := rel.Junction
		if junction.Name == "" {
			return invalid(table.Name, rel.Name, "junction name is required")
		}
		if len(junction.OwnerColumns) == 0 || len(junction.InverseColumns) == 0 {
			return invalid(table.Name, rel.Name, "junction %q must declare owner and inverse columns", junction.Name)
		}
		junctionLocal, local, err := resolvePairs(nil, table, rel, junction.OwnerColumns, true)
		if err != nil {
			return err
		}
		junctionRemote, remote, err := resolvePairs(nil, target, rel, junction.InverseColumns, true)
		if err != nil {
			return err
		}
		rel.owning = true
		rel.local = local
		rel.remote = remote
		rel.junctionLocal = StoredNames(junctionLocal)
		rel.junctionRemote = StoredNames(junctionRemote)
	case OneToMany, OneToOneNonOwner:
		if len(rel.JoinColumns) > 0 || rel.Junction != nil {
			return invalid(table.Name, rel.Name, "%s relations are not owning; declare join columns on %q", rel.Kind, rel.Inverse)
		}
		if rel.Inverse == "" {
			return invalid(table.Name, rel.Name, "%s relations must name their inverse", rel.Kind)
		}
	default:
		return invalid(table.Name, rel.Name, "unknown relation kind %s", rel.Kind)
	}
	return nil
}

// resolvePairs maps JoinColumn pairs to columns. When junction is true the
// left side names raw junction columns instead of columns of from.
func resolvePairs(from, referenced *Table, rel *Relation, pairs []JoinColumn, junction bool) ([]*Column, []*Column, error) {
	left := make([]*Column, 0, len(pairs))
	right := make([]*Column, 0, len(pairs))
	for _, pair := range pairs {
		if pair.Column == "" || pair.ReferencedColumn == "" {
			return nil, nil, invalid(rel.table.Name, rel.Name, "join column pairs need both column and referenced_column")
		}
		var col *Column
		if junction {
			col = &Column{Name: pair.Column, StoredName: pair.Column}
		} else {
			col = from.Column(pair.Column)
			if col == nil {
				return nil, nil, invalid(rel.table.Name, rel.Name, "join column %q is not a column of %s", pair.Column, from.Name)
			}
		}
		ref := referenced.Column(pair.ReferencedColumn)
		if ref == nil {
			return nil, nil, invalid(rel.table.Name, rel.Name, "referenced column %q is not a column of %s", pair.ReferencedColumn, referenced.Name)
		}
		left = append(left, col)
		right = append(right, ref)
	}
	return left, right, nil
}

func resolveInverse(table *Table, rel *Relation) error {
	if rel.Inverse == "" {
		return nil
	}
	inv := rel.target.Relation(rel.Inverse)
	if inv == nil {
		return invalid(table.Name, rel.Name, "inverse %q does not exist on %s", rel.Inverse, rel.target.Name)
	}
	if inv.target != table {
		return invalid(table.Name, rel.Name, "inverse %s.%s targets %s", rel.target.Name, inv.Name, inv.Target)
	}
	if !compatibleKinds(rel.Kind, inv.Kind) {
		return invalid(table.Name, rel.Name, "%s cannot pair with %s inverse %s.%s", rel.Kind, inv.Kind, rel.target.Name, inv.Name)
	}

	if rel.owning {
		if inv.owning {
			return invalid(table.Name, rel.Name, "both sides of %s.%s are owning", rel.target.Name, inv.Name)
		}
		rel.inverse = inv
		return nil
	}

	if !inv.owning {
		return invalid(table.Name, rel.Name, "inverse %s.%s is not owning", rel.target.Name, inv.Name)
	}
	rel.inverse = inv
	if inv.inverse == nil {
		inv.inverse = rel
	}
	rel.local = inv.remote
	rel.remote = inv.local
	rel.junctionLocal = inv.junctionRemote
	rel.junctionRemote = inv.junctionLocal
	return nil
}

func compatibleKinds(a, b RelationKind) bool {
	switch a {
	case ManyToOne:
		return b == OneToMany
	case OneToMany:
		return b == ManyToOne
	case ManyToMany:
		return b == ManyToMany
	case OneToOneOwner:
		return b == OneToOneNonOwner
	case OneToOneNonOwner:
		return b == OneToOneOwner
	default:
		return false
	}
}
