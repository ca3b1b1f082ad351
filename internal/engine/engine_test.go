package engine

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relquery/internal/dbexec"
	"relquery/internal/hydrate"
	"relquery/internal/planner"
	"relquery/internal/schema"
	"relquery/internal/sqlutil"
	"relquery/internal/testutil/fixture"
)

func newMockEngine(t *testing.T, d sqlutil.Dialect) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(fixture.BlogSchema(t), dbexec.NewStandardExecutor(db), Options{Dialect: d}), mock
}

// mockRows lays values out in the order of cols; missing names scan as NULL.
func mockRows(cols []string, rows ...map[string]driver.Value) *sqlmock.Rows {
	out := sqlmock.NewRows(cols)
	for _, row := range rows {
		values := make([]driver.Value, len(cols))
		for i, col := range cols {
			values[i] = row[col]
		}
		out.AddRow(values...)
	}
	return out
}

func TestFindMany_HydratesManyToOne(t *testing.T) {
	e, mock := newMockEngine(t, sqlutil.MySQL)
	opts := FindOptions{
		Table:  "post",
		Select: planner.Selection{{Field: "title"}, {Field: "user"}},
	}

	primary, err := e.Compile(opts)
	require.NoError(t, err)
	assert.Contains(t, primary.Columns, "userId")

	post, err := e.Schema().Table("post")
	require.NoError(t, err)
	followup, err := planner.PlanRelationBatch(sqlutil.MySQL, post.Relation("user"), planner.RelationSelect{}, [][]any{{int64(7)}})
	require.NoError(t, err)

	mock.ExpectQuery(primary.SQL).WillReturnRows(mockRows(primary.Columns,
		map[string]driver.Value{"title": "a", "userId": int64(7)},
		map[string]driver.Value{"title": "b", "userId": nil},
		map[string]driver.Value{"title": "c", "userId": int64(7)},
	))
	mock.ExpectQuery(followup.SQL).WithArgs(int64(7)).WillReturnRows(mockRows(followup.Columns,
		map[string]driver.Value{"id": int64(7), "name": "ann", "__parent_0": int64(7)},
	))

	rows, err := e.FindMany(context.Background(), opts)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, rows, 3)

	user, ok := rows[0]["user"].(hydrate.Entity)
	require.True(t, ok)
	assert.Equal(t, "ann", user["name"])
	assert.NotContains(t, user, "__parent_0")
	assert.Nil(t, rows[1]["user"])
	assert.Equal(t, rows[0]["user"], rows[2]["user"])
}

func TestFindMany_EmptyResultIsNotNil(t *testing.T) {
	e, mock := newMockEngine(t, sqlutil.MySQL)
	opts := FindOptions{Table: "user", Select: planner.Selection{{Field: "name"}, {Field: "posts"}}}

	primary, err := e.Compile(opts)
	require.NoError(t, err)
	mock.ExpectQuery(primary.SQL).WillReturnRows(sqlmock.NewRows(primary.Columns))

	rows, err := e.FindMany(context.Background(), opts)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMany_PrimaryQueryError(t *testing.T) {
	e, mock := newMockEngine(t, sqlutil.MySQL)
	opts := FindOptions{Table: "tag"}

	primary, err := e.Compile(opts)
	require.NoError(t, err)
	boom := errors.New("connection reset")
	mock.ExpectQuery(primary.SQL).WillReturnError(boom)

	_, err = e.FindMany(context.Background(), opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var execErr *hydrate.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "tag", execErr.Table)
	assert.Empty(t, execErr.Path)
}

func TestFindMany_FollowupErrorReturnsNoRows(t *testing.T) {
	e, mock := newMockEngine(t, sqlutil.MySQL)
	opts := FindOptions{Table: "post", Select: planner.Selection{{Field: "id"}, {Field: "tags"}}}

	primary, err := e.Compile(opts)
	require.NoError(t, err)
	post, err := e.Schema().Table("post")
	require.NoError(t, err)
	followup, err := planner.PlanRelationBatch(sqlutil.MySQL, post.Relation("tags"), planner.RelationSelect{}, [][]any{{int64(1)}})
	require.NoError(t, err)

	mock.ExpectQuery(primary.SQL).WillReturnRows(mockRows(primary.Columns, map[string]driver.Value{"id": int64(1)}))
	mock.ExpectQuery(followup.SQL).WithArgs(int64(1)).WillReturnError(errors.New("timeout"))

	rows, err := e.FindMany(context.Background(), opts)
	require.Error(t, err)
	assert.Nil(t, rows)

	var execErr *hydrate.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "tags", execErr.Path)
	assert.Equal(t, "tag", execErr.Table)
}

func TestFindMany_CompileErrorRunsNoQuery(t *testing.T) {
	e, mock := newMockEngine(t, sqlutil.MySQL)
	limit := 1

	_, err := e.FindMany(context.Background(), FindOptions{
		Table: "post",
		Select: planner.Selection{
			{Field: "id"},
			{Field: "user", Relation: &planner.RelationSelect{Limit: &limit}},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, planner.ErrUnsupported)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMany_UnknownTable(t *testing.T) {
	e, _ := newMockEngine(t, sqlutil.MySQL)
	_, err := e.FindMany(context.Background(), FindOptions{Table: "comment"})
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrUnknownTable)
}

func TestFindFirst(t *testing.T) {
	e, mock := newMockEngine(t, sqlutil.MySQL)
	take := 1
	compiled, err := e.Compile(FindOptions{Table: "tag", Take: &take})
	require.NoError(t, err)

	mock.ExpectQuery(compiled.SQL).WithArgs(int64(1)).
		WillReturnRows(mockRows(compiled.Columns, map[string]driver.Value{"id": int64(3), "name": "go"}))
	mock.ExpectQuery(compiled.SQL).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(compiled.Columns))

	got, err := e.FindFirst(context.Background(), FindOptions{Table: "tag"})
	require.NoError(t, err)
	assert.Equal(t, "go", got["name"])

	got, err = e.FindFirst(context.Background(), FindOptions{Table: "tag"})
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompile_PostgresPlaceholders(t *testing.T) {
	s := fixture.BlogSchema(t)
	e := New(s, nil, Options{Dialect: sqlutil.Postgres})

	req, err := ParseRequest(s, []byte(`{
		"table": "post",
		"select": {"title": true},
		"where": {"published": true, "title": {"startsWith": "go"}},
		"orderBy": [{"title": "desc"}],
		"take": 5,
		"skip": 10
	}`))
	require.NoError(t, err)

	q, err := e.Compile(req)
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `FROM "post"`)
	assert.Contains(t, q.SQL, `ORDER BY "post"."title" DESC`)
	assert.Contains(t, q.SQL, "LIMIT $3 OFFSET $4")
	require.Len(t, q.Args, 4)
	assert.Equal(t, []any{5, 10}, q.Args[2:])
	assert.Equal(t, []string{"title"}, q.Columns)
}
