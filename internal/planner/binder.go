package planner

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Binder collects bound values in the order their placeholders are emitted.
// Fragments must be written in the same order they are bound.
type Binder struct {
	args []any
}

// Bind appends v and returns its placeholder.
func (b *Binder) Bind(v any) string {
	b.args = append(b.args, v)
	return "?"
}

// BindAll binds every value and returns a comma separated placeholder list.
func (b *Binder) BindAll(values []any) string {
	b.args = append(b.args, values...)
	return sq.Placeholders(len(values))
}

// Args returns a copy of the bound values.
func (b *Binder) Args() []any {
	return append([]any(nil), b.args...)
}

// Len returns the number of bound values.
func (b *Binder) Len() int {
	return len(b.args)
}

// truncate drops values bound after mark, for fragments that were discarded.
func (b *Binder) truncate(mark int) {
	b.args = b.args[:mark]
}

// Aliases hands out collision-free subquery aliases for one statement.
type Aliases struct {
	counter int
}

// Next returns a fresh alias of the form __prefix_N.
func (a *Aliases) Next(prefix string) string {
	normalized := strings.TrimSpace(prefix)
	if normalized == "" {
		normalized = "rel"
	}
	normalized = strings.NewReplacer("`", "", `"`, "", ".", "_", " ", "_").Replace(normalized)
	a.counter++
	return fmt.Sprintf("__%s_%d", normalized, a.counter)
}

// JoinAlias names the LEFT JOIN used to filter through a to-one relation.
func JoinAlias(parent, relation string) string {
	return parent + "__" + relation
}

// ParentAlias is the result alias of the i-th correlation column in a batch query.
func ParentAlias(i int) string {
	return fmt.Sprintf("__parent_%d", i)
}

// ParentAliases returns the correlation aliases for a key of the given width.
func ParentAliases(width int) []string {
	aliases := make([]string, width)
	for i := range aliases {
		aliases[i] = ParentAlias(i)
	}
	return aliases
}
