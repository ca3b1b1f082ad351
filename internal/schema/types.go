// Package schema describes the tables, columns and relations the query compiler works against.
// A Schema is resolved and validated once by New and is read-only afterwards.
package schema

import (
	"fmt"
	"strings"
)

// ScalarType classifies a column for filter operator availability.
type ScalarType int

const (
	// String columns accept every filter operator.
	String ScalarType = iota
	// Number columns accept equality, ordering and membership operators.
	Number
	// Boolean columns accept equality operators only.
	Boolean
	// UUID columns accept equality and membership operators; values are canonicalized.
	UUID
)

func (t ScalarType) String() string {
	switch t {
	case String:
		return "string"
	case Number:
		return "number"
	case Boolean:
		return "boolean"
	case UUID:
		return "uuid"
	default:
		return fmt.Sprintf("ScalarType(%d)", int(t))
	}
}

// UnmarshalText parses the YAML/config spelling of a scalar type.
func (t *ScalarType) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "string", "text":
		*t = String
	case "number", "int", "integer", "float", "decimal":
		*t = Number
	case "boolean", "bool":
		*t = Boolean
	case "uuid":
		*t = UUID
	default:
		return fmt.Errorf("unknown scalar type %q", string(text))
	}
	return nil
}

// RelationKind is the cardinality of a relation. The set is closed.
type RelationKind int

const (
	ManyToOne RelationKind = iota + 1
	OneToMany
	ManyToMany
	OneToOneOwner
	OneToOneNonOwner
)

func (k RelationKind) String() string {
	switch k {
	case ManyToOne:
		return "many_to_one"
	case OneToMany:
		return "one_to_many"
	case ManyToMany:
		return "many_to_many"
	case OneToOneOwner:
		return "one_to_one_owner"
	case OneToOneNonOwner:
		return "one_to_one_non_owner"
	default:
		return fmt.Sprintf("RelationKind(%d)", int(k))
	}
}

// UnmarshalText parses the YAML spelling of a relation kind.
func (k *RelationKind) UnmarshalText(text []byte) error {
	normalized := strings.ToLower(strings.TrimSpace(string(text)))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	switch normalized {
	case "many_to_one", "manytoone":
		*k = ManyToOne
	case "one_to_many", "onetomany":
		*k = OneToMany
	case "many_to_many", "manytomany":
		*k = ManyToMany
	case "one_to_one_owner", "one_to_one":
		*k = OneToOneOwner
	case "one_to_one_non_owner", "one_to_one_inverse":
		*k = OneToOneNonOwner
	default:
		return fmt.Errorf("unknown relation kind %q", string(text))
	}
	return nil
}

// ToMany reports whether the relation resolves to a sequence of rows.
func (k RelationKind) ToMany() bool {
	switch k {
	case OneToMany, ManyToMany:
		return true
	case ManyToOne, OneToOneOwner, OneToOneNonOwner:
		return false
	default:
		return false
	}
}

// Column maps a property name to a physical column.
type Column struct {
	Name       string     `yaml:"name"`
	StoredName string     `yaml:"stored_name"`
	PrimaryKey bool       `yaml:"primary_key"`
	Type       ScalarType `yaml:"type"`
	Nullable   bool       `yaml:"nullable"`
	// Embedded columns hold embedded values; they are projected but never filtered on.
	Embedded bool `yaml:"embedded"`
}

// JoinColumn pairs a key column with the column it references.
// On a relation Column belongs to the owning table; on a junction it is a junction column.
// ReferencedColumn always names a declared column (property name) of the referenced table.
type JoinColumn struct {
	Column           string `yaml:"column"`
	ReferencedColumn string `yaml:"referenced_column"`
}

// Junction describes the table backing a many-to-many relation.
type Junction struct {
	Name string `yaml:"name"`
	// OwnerColumns point from the junction at the owning table.
	OwnerColumns []JoinColumn `yaml:"owner_columns"`
	// InverseColumns point from the junction at the target table.
	InverseColumns []JoinColumn `yaml:"inverse_columns"`
}

// Relation is a navigable property that resolves to rows of another table.
type Relation struct {
	Name        string       `yaml:"name"`
	Kind        RelationKind `yaml:"kind"`
	Target      string       `yaml:"target"`
	Inverse     string       `yaml:"inverse"`
	JoinColumns []JoinColumn `yaml:"join_columns"`
	Junction    *Junction    `yaml:"junction"`

	table          *Table
	target         *Table
	inverse        *Relation
	owning         bool
	local          []*Column
	remote         []*Column
	junctionLocal  []string
	junctionRemote []string
}

// Table is a set of columns and relations.
type Table struct {
	Name       string      `yaml:"name"`
	StoredName string      `yaml:"stored_name"`
	Columns    []*Column   `yaml:"columns"`
	Relations  []*Relation `yaml:"relations"`

	columnsByName   map[string]*Column
	relationsByName map[string]*Relation
}

// Column returns the column with the given property name, or nil.
func (t *Table) Column(name string) *Column {
	return t.columnsByName[name]
}

// Relation returns the relation with the given property name, or nil.
func (t *Table) Relation(name string) *Relation {
	return t.relationsByName[name]
}

// PrimaryKey returns the primary key columns in declaration order.
func (t *Table) PrimaryKey() []*Column {
	var pk []*Column
	for _, col := range t.Columns {
		if col.PrimaryKey {
			pk = append(pk, col)
		}
	}
	return pk
}

// ScalarColumns returns the columns projected by a default selection.
func (t *Table) ScalarColumns() []*Column {
	cols := make([]*Column, 0, len(t.Columns))
	for _, col := range t.Columns {
		if !col.Embedded {
			cols = append(cols, col)
		}
	}
	return cols
}

// Table returns the table declaring the relation.
func (r *Relation) Table() *Table { return r.table }

// TargetTable returns the resolved target table.
func (r *Relation) TargetTable() *Table { return r.target }

// InverseRelation returns the other side of the pair, or nil when none is declared.
func (r *Relation) InverseRelation() *Relation { return r.inverse }

// Owning reports whether this side holds the join columns (or the junction).
func (r *Relation) Owning() bool { return r.owning }

// LocalColumns are the columns on the declaring table that correlate with the target.
func (r *Relation) LocalColumns() []*Column { return r.local }

// RemoteColumns are the columns on the target table matched against LocalColumns.
func (r *Relation) RemoteColumns() []*Column { return r.remote }

// JunctionTable returns the stored junction table name for many-to-many relations.
func (r *Relation) JunctionTable() string {
	if r.Kind != ManyToMany {
		return ""
	}
	if r.Junction != nil {
		return r.Junction.Name
	}
	if r.inverse != nil && r.inverse.Junction != nil {
		return r.inverse.Junction.Name
	}
	return ""
}

// JunctionLocalColumns are the junction columns matching LocalColumns positionally.
func (r *Relation) JunctionLocalColumns() []string { return r.junctionLocal }

// JunctionRemoteColumns are the junction columns matching RemoteColumns positionally.
func (r *Relation) JunctionRemoteColumns() []string { return r.junctionRemote }

// StoredNames returns the physical names of cols.
func StoredNames(cols []*Column) []string {
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.StoredName
	}
	return names
}

// Names returns the property names of cols.
func Names(cols []*Column) []string {
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return names
}
