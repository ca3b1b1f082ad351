package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTable is returned when a table name is not part of the schema.
	ErrUnknownTable = errors.New("unknown table")
	// ErrUnknownField is returned when a name resolves to neither a column nor a relation.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidSchema is returned when a schema declaration is inconsistent.
	ErrInvalidSchema = errors.New("invalid schema")
)

// Error reports a schema lookup or declaration problem.
type Error struct {
	Table  string
	Field  string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Err.Error()
	switch {
	case e.Table != "" && e.Field != "":
		msg = fmt.Sprintf("%s %s.%s", msg, e.Table, e.Field)
	case e.Table != "":
		msg = fmt.Sprintf("%s %s", msg, e.Table)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UnknownField builds the error for an unresolvable name on table.
func UnknownField(table, field string) *Error {
	return &Error{Table: table, Field: field, Err: ErrUnknownField}
}

func invalid(table, field, format string, args ...any) *Error {
	return &Error{Table: table, Field: field, Detail: fmt.Sprintf(format, args...), Err: ErrInvalidSchema}
}
