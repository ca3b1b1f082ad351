// Package sqlutil provides SQL utility functions shared by the planner and the store boundary.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// with backticks and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QuoteANSIIdentifier quotes a SQL identifier with double quotes and escapes
// any double quotes within the identifier.
func QuoteANSIIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// LikeEscapeChar is the escape character declared on every generated LIKE.
// '!' is used instead of a backslash because MySQL treats backslashes inside
// string literals as escapes while Postgres and SQLite do not.
const LikeEscapeChar = '!'

// EscapeLike escapes LIKE wildcards in s so it matches literally.
func EscapeLike(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '%', '_', LikeEscapeChar:
			b.WriteRune(LikeEscapeChar)
		}
		b.WriteRune(r)
	}
	return b.String()
}
