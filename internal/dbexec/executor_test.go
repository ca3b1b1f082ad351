package dbexec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardExecutor_QueryAndScan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT `id`, `title` FROM `post`").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).
			AddRow(int64(7), []byte("hello")).
			AddRow(int64(8), nil))

	exec := NewStandardExecutor(db)
	rows, err := exec.QueryContext(context.Background(), "SELECT `id`, `title` FROM `post` WHERE `id` > ?", int64(7))
	require.NoError(t, err)

	got, err := ScanRows(rows, []string{"id", "title"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0]["title"])
	assert.Nil(t, got[1]["title"])
	assert.Equal(t, int64(8), got[1]["id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRows_NoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rows, err := NewStandardExecutor(db).QueryContext(context.Background(), "SELECT id FROM t")
	require.NoError(t, err)
	got, err := ScanRows(rows, []string{"id"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScanRows_RowError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}).
		AddRow(1).
		RowError(0, errors.New("boom")))

	rows, err := NewStandardExecutor(db).QueryContext(context.Background(), "SELECT id FROM t")
	require.NoError(t, err)
	_, err = ScanRows(rows, []string{"id"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestStandardExecutor_NormalizesAccessDenied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	driverErr := &mysql.MySQLError{Number: 1142, Message: "SELECT command denied"}
	mock.ExpectQuery("SELECT").WillReturnError(driverErr)

	_, err = NewStandardExecutor(db).QueryContext(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccessDenied)

	var mysqlErr *mysql.MySQLError
	require.True(t, errors.As(err, &mysqlErr))
	assert.Equal(t, uint16(1142), mysqlErr.Number)
}

func TestNormalizeError(t *testing.T) {
	assert.NoError(t, NormalizeError(nil))

	plain := errors.New("syntax error")
	assert.Same(t, plain, NormalizeError(plain))

	other := &mysql.MySQLError{Number: 1064, Message: "syntax"}
	assert.False(t, errors.Is(NormalizeError(other), ErrAccessDenied))

	for _, code := range []uint16{1044, 1142, 1143} {
		assert.ErrorIs(t, NormalizeError(&mysql.MySQLError{Number: code}), ErrAccessDenied)
	}
}

func TestSessionExecutor_UsesDatabaseOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("USE `blog`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"a"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT 2").WillReturnRows(sqlmock.NewRows([]string{"a"}).AddRow(int64(2)))

	exec := NewSessionExecutor(SessionConfig{DB: db, DatabaseName: "blog"})

	rows, err := exec.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)
	_, err = ScanRows(rows, []string{"a"})
	require.NoError(t, err)

	rows, err = exec.QueryContext(context.Background(), "SELECT 2")
	require.NoError(t, err)
	got, err := ScanRows(rows, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got[0]["a"])

	require.NoError(t, exec.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionExecutor_UseFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("USE `missing`").WillReturnError(errors.New("unknown database"))

	exec := NewSessionExecutor(SessionConfig{DB: db, DatabaseName: "missing"})
	_, err = exec.QueryContext(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to select database missing")

	// The failed attempt must release the session.
	require.NoError(t, exec.Close())
}

func TestSessionExecutor_WaitsForOpenRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"a"}).AddRow(int64(1)))

	exec := NewSessionExecutor(SessionConfig{DB: db})
	rows, err := exec.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = exec.QueryContext(ctx, "SELECT 2")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, rows.Close())
	// Close is idempotent on the wrapped rows.
	require.NoError(t, rows.Close())
	require.NoError(t, exec.Close())
}

func TestSessionExecutor_CloseWithoutQueries(t *testing.T) {
	exec := NewSessionExecutor(SessionConfig{})
	assert.NoError(t, exec.Close())

	_, err := exec.QueryContext(context.Background(), "SELECT 1")
	assert.Error(t, err)
}
