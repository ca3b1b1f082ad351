package sqlutil

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect describes the spelling differences between supported stores.
type Dialect struct {
	Name        string
	Placeholder sq.PlaceholderFormat
	quote       func(string) string
	// offsetOnlyLimit is the LIMIT value emitted when only an OFFSET is requested.
	// Empty means the store accepts a bare OFFSET.
	offsetOnlyLimit string
}

var (
	// MySQL covers MySQL and TiDB.
	MySQL = Dialect{
		Name:            "mysql",
		Placeholder:     sq.Question,
		quote:           QuoteIdentifier,
		offsetOnlyLimit: "18446744073709551615",
	}
	// Postgres uses numbered placeholders.
	Postgres = Dialect{
		Name:        "postgres",
		Placeholder: sq.Dollar,
		quote:       QuoteANSIIdentifier,
	}
	// SQLite accepts ? placeholders and requires LIMIT before OFFSET.
	SQLite = Dialect{
		Name:            "sqlite",
		Placeholder:     sq.Question,
		quote:           QuoteANSIIdentifier,
		offsetOnlyLimit: "-1",
	}
)

// DialectByName resolves a configured dialect name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mysql", "tidb":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported SQL dialect %q", name)
	}
}

// Quote quotes a single identifier.
func (d Dialect) Quote(name string) string {
	if d.quote == nil {
		return QuoteIdentifier(name)
	}
	return d.quote(name)
}

// Qualify returns alias.column with both parts quoted. An empty alias yields
// the bare quoted column.
func (d Dialect) Qualify(alias, column string) string {
	if alias == "" {
		return d.Quote(column)
	}
	return d.Quote(alias) + "." + d.Quote(column)
}

// TableAs renders a FROM/JOIN target with an alias. The alias is omitted
// when it is empty or equal to the table name.
func (d Dialect) TableAs(table, alias string) string {
	if alias == "" || alias == table {
		return d.Quote(table)
	}
	return d.Quote(table) + " AS " + d.Quote(alias)
}

// OffsetOnlyLimit reports the LIMIT literal that must precede a bare OFFSET,
// or "" when the dialect accepts OFFSET on its own.
func (d Dialect) OffsetOnlyLimit() string {
	return d.offsetOnlyLimit
}

// Finalize rewrites ? placeholders into the dialect's placeholder format.
func (d Dialect) Finalize(sql string) (string, error) {
	if d.Placeholder == nil {
		return sql, nil
	}
	return d.Placeholder.ReplacePlaceholders(sql)
}
