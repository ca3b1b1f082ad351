// Package introspection builds a relational schema from MySQL/TiDB
// information_schema. Columns become properties named by internal/naming,
// foreign keys become many-to-one or one-to-one relations with their
// inverses, and pure junction tables become many-to-many relations.
package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"relquery/internal/naming"
	"relquery/internal/schema"
)

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Options controls introspection.
type Options struct {
	DatabaseName string
	Namer        *naming.Namer
	// UUIDColumns maps table glob patterns to column glob patterns of
	// columns holding UUIDs.
	UUIDColumns map[string][]string
	// Filter drops tables and columns before relations are derived.
	Filter Filter
	Logger *slog.Logger
}

// Column is a physical column as reported by information_schema.
type Column struct {
	Name         string
	DataType     string
	ColumnType   string
	IsNullable   bool
	IsPrimaryKey bool
	IsUUID       bool
}

// Table is a physical table with its keys.
type Table struct {
	Name        string
	IsView      bool
	Columns     []Column
	ForeignKeys []ForeignKey
}

// Introspect reads the database catalog and returns the resolved schema.
func Introspect(ctx context.Context, db Queryer, opts Options) (*schema.Schema, error) {
	ctx, span := startSpan(ctx, "introspection.build_schema",
		attribute.String("db.name", opts.DatabaseName),
	)
	defer span.End()

	tables, err := ReadTables(ctx, db, opts.DatabaseName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	tables = opts.Filter.Apply(tables)
	if err := ApplyUUIDColumns(tables, opts.UUIDColumns); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	s, err := Build(tables, opts.Namer, opts.Logger)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to build schema: %w", err)
	}
	span.SetAttributes(attribute.Int("db.tables", len(s.Tables())))
	return s, nil
}

// ReadTables loads tables, columns, primary keys and foreign keys.
func ReadTables(ctx context.Context, db Queryer, databaseName string) ([]Table, error) {
	infos, err := getTables(ctx, db, databaseName)
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	tables := make([]Table, 0, len(infos))
	for _, info := range infos {
		columns, err := getColumns(ctx, db, databaseName, info.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to get columns for %s: %w", info.Name, err)
		}

		var foreignKeys []ForeignKey
		if !info.IsView {
			primaryKeys, err := getPrimaryKeys(ctx, db, databaseName, info.Name)
			if err != nil {
				return nil, fmt.Errorf("failed to get primary keys for table %s: %w", info.Name, err)
			}
			markPrimaryKeys(columns, primaryKeys)

			foreignKeys, err = getForeignKeys(ctx, db, databaseName, info.Name)
			if err != nil {
				return nil, fmt.Errorf("failed to get foreign keys for table %s: %w", info.Name, err)
			}
		}

		tables = append(tables, Table{
			Name:        info.Name,
			IsView:      info.IsView,
			Columns:     columns,
			ForeignKeys: foreignKeys,
		})
	}
	return tables, nil
}

func markPrimaryKeys(columns []Column, primaryKeys []string) {
	for i := range columns {
		for _, pk := range primaryKeys {
			if columns[i].Name == pk {
				columns[i].IsPrimaryKey = true
				break
			}
		}
	}
}

type tableInfo struct {
	Name   string
	IsView bool
}

func getTables(ctx context.Context, db Queryer, databaseName string) ([]tableInfo, error) {
	ctx, span := startSpan(ctx, "introspection.get_tables",
		attribute.String("db.name", databaseName),
	)
	defer span.End()

	query := `
		SELECT TABLE_NAME, TABLE_TYPE
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY TABLE_NAME
	`

	rows, err := db.QueryContext(ctx, query, databaseName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var tables []tableInfo
	for rows.Next() {
		var name, tableType string
		if err := rows.Scan(&name, &tableType); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		tables = append(tables, tableInfo{Name: name, IsView: strings.EqualFold(tableType, "VIEW")})
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return tables, nil
}

func getColumns(ctx context.Context, db Queryer, databaseName, tableName string) ([]Column, error) {
	ctx, span := startSpan(ctx, "introspection.get_columns",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []Column
	for rows.Next() {
		var col Column
		var isNullable string
		if err := rows.Scan(&col.Name, &col.DataType, &col.ColumnType, &isNullable); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		col.IsNullable = strings.EqualFold(isNullable, "YES")
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return columns, nil
}

func getPrimaryKeys(ctx context.Context, db Queryer, databaseName, tableName string) ([]string, error) {
	ctx, span := startSpan(ctx, "introspection.get_primary_keys",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
		AND TABLE_NAME = ?
		AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var keys []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		keys = append(keys, name)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return keys, nil
}

func getForeignKeys(ctx context.Context, db Queryer, databaseName, tableName string) ([]ForeignKey, error) {
	ctx, span := startSpan(ctx, "introspection.get_foreign_keys",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME, CONSTRAINT_NAME, ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
		AND TABLE_NAME = ?
		AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn, &fk.ConstraintName, &fk.OrdinalPosition); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return fks, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("relquery/introspection")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
