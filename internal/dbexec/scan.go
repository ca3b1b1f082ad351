package dbexec

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// ScanRows reads every row positionally into maps keyed by columns and
// closes rows.
func ScanRows(rows Rows, columns []string) (results []map[string]any, err error) {
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, NormalizeError(err)
	}
	return results, nil
}

func convertValue(val any) any {
	if val == nil {
		return nil
	}
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}

// ErrAccessDenied is returned when the store rejects a query for missing privileges.
var ErrAccessDenied = errors.New("access denied")

// MySQL/TiDB error codes for access control violations.
// See: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	mysqlErrDBAccessDenied     = 1044 // Access denied for user to database
	mysqlErrTableAccessDenied  = 1142 // SELECT command denied to user for table
	mysqlErrColumnAccessDenied = 1143 // SELECT command denied to user for column
)

// NormalizeError maps driver errors with a known meaning onto sentinels while
// keeping the driver error in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDBAccessDenied, mysqlErrTableAccessDenied, mysqlErrColumnAccessDenied:
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		}
	}
	return err
}
