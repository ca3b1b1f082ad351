package planner

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported marks filter and selection forms the compiler does not implement.
	ErrUnsupported = errors.New("unsupported feature")
	// ErrInvalidValue marks operand values that cannot be bound for a column.
	ErrInvalidValue = errors.New("invalid filter value")
)

// UnsupportedError reports a filter or selection the compiler refuses to lower.
type UnsupportedError struct {
	Table   string
	Field   string
	Feature string
}

func (e *UnsupportedError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s on %s", ErrUnsupported, e.Feature, e.Table)
	}
	return fmt.Sprintf("%s: %s on %s.%s", ErrUnsupported, e.Feature, e.Table, e.Field)
}

func (e *UnsupportedError) Unwrap() error {
	return ErrUnsupported
}

func unsupported(table, field, format string, args ...any) *UnsupportedError {
	return &UnsupportedError{Table: table, Field: field, Feature: fmt.Sprintf(format, args...)}
}

func invalidValue(table, field, format string, args ...any) error {
	return fmt.Errorf("%w for %s.%s: %s", ErrInvalidValue, table, field, fmt.Sprintf(format, args...))
}
