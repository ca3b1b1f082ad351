package hydrate

import (
	"context"
	"strings"
	"sync"

	"relquery/internal/dbexec"
)

type recordedQuery struct {
	sql  string
	args []any
}

// fakeExecutor answers queries from a routing function. Rows are positional
// and must follow the compiled column order.
type fakeExecutor struct {
	mu      sync.Mutex
	queries []recordedQuery
	respond func(sql string, args []any) ([][]any, error)
}

func (f *fakeExecutor) QueryContext(_ context.Context, query string, args ...any) (dbexec.Rows, error) {
	f.mu.Lock()
	f.queries = append(f.queries, recordedQuery{sql: query, args: args})
	f.mu.Unlock()

	rows, err := f.respond(query, args)
	if err != nil {
		return nil, err
	}
	return &fakeRows{rows: rows, idx: -1}, nil
}

func (f *fakeExecutor) queriesFrom(table string) []recordedQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedQuery
	for _, q := range f.queries {
		if fromTable(q.sql, table) {
			out = append(out, q)
		}
	}
	return out
}

func fromTable(query, table string) bool {
	return strings.Contains(query, "FROM `"+table+"`")
}

type fakeRows struct {
	rows   [][]any
	idx    int
	closed bool
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	for i, d := range dest {
		*(d.(*any)) = r.rows[r.idx][i]
	}
	return nil
}

func (r *fakeRows) Err() error { return nil }

func (r *fakeRows) Close() error {
	r.closed = true
	return nil
}
