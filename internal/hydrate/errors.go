package hydrate

import "fmt"

// ExecutionError reports a failed store query. Path is empty for the primary
// query and the dotted relation path for follow-ups.
type ExecutionError struct {
	Path     string
	Relation string
	Table    string
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("query on %s failed: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("loading relation %s (%s) failed: %v", e.Path, e.Table, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// CompositeKeyFallback is a diagnostic emitted when a relation with a
// multi-column key is matched to its parents by linear scan.
type CompositeKeyFallback struct {
	Path     string
	Relation string
	Table    string
	Parents  int
	Rows     int
}
