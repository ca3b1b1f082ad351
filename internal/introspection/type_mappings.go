package introspection

import (
	"fmt"
	"path"
	"slices"
	"sort"
	"strconv"
	"strings"

	"relquery/internal/schema"
)

// ScalarType maps a column to its filterable scalar type. JSON columns are
// embedded: they are projected but never filtered on.
func ScalarType(col Column) (typ schema.ScalarType, embedded bool) {
	if col.IsUUID {
		return schema.UUID, false
	}
	dataType := col.DataType
	if idx := strings.Index(dataType, "("); idx != -1 {
		dataType = dataType[:idx]
	}
	switch strings.ToUpper(strings.TrimSpace(dataType)) {
	case "TINYINT":
		if isBoolColumnType(col.ColumnType) {
			return schema.Boolean, false
		}
		return schema.Number, false
	case "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "SERIAL", "BIT",
		"FLOAT", "DOUBLE", "DECIMAL", "NUMERIC", "YEAR":
		return schema.Number, false
	case "BOOL", "BOOLEAN":
		return schema.Boolean, false
	case "JSON":
		return schema.String, true
	default:
		// Text, binary, enum, set and temporal types compare as strings.
		return schema.String, false
	}
}

// isBoolColumnType reports MySQL's BOOLEAN alias, stored as tinyint(1).
func isBoolColumnType(columnType string) bool {
	return strings.EqualFold(strings.TrimSpace(columnType), "tinyint(1)")
}

// ApplyUUIDColumns marks columns matching patterns as UUIDs. Keys are table
// glob patterns and values column glob patterns, matched case-insensitively.
func ApplyUUIDColumns(tables []Table, patterns map[string][]string) error {
	if len(patterns) == 0 {
		return nil
	}
	for ti := range tables {
		table := &tables[ti]
		columnPatterns := mergePatterns(patterns, table.Name)
		if len(columnPatterns) == 0 {
			continue
		}
		for ci := range table.Columns {
			col := &table.Columns[ci]
			if !matchesAny(col.Name, columnPatterns) {
				continue
			}
			if err := validateUUIDColumn(*col); err != nil {
				return fmt.Errorf("invalid UUID mapping for %s.%s: %w", table.Name, col.Name, err)
			}
			col.IsUUID = true
		}
	}
	return nil
}

func mergePatterns(patterns map[string][]string, table string) []string {
	tableLower := strings.ToLower(table)
	keys := make([]string, 0, len(patterns))
	for key := range patterns {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var combined []string
	for _, key := range keys {
		pattern := strings.ToLower(strings.TrimSpace(key))
		if pattern == "" {
			continue
		}
		if matched, err := path.Match(pattern, tableLower); err == nil && matched {
			combined = append(combined, patterns[key]...)
		}
	}
	slices.Sort(combined)
	return slices.Compact(combined)
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if ok, err := path.Match(strings.ToLower(pattern), value); err == nil && ok {
			return true
		}
	}
	return false
}

func validateUUIDColumn(col Column) error {
	baseType := strings.ToLower(strings.TrimSpace(col.DataType))
	length, ok := sqlTypeLength(col)
	switch baseType {
	case "binary", "varbinary":
		if !ok || length != 16 {
			return fmt.Errorf("%s requires length 16 for UUID binary storage", strings.ToUpper(baseType))
		}
	case "char", "varchar":
		if !ok || length < 36 {
			return fmt.Errorf("%s requires length >= 36 for UUID text storage", strings.ToUpper(baseType))
		}
	default:
		return fmt.Errorf("unsupported SQL type %q for UUID mapping", col.DataType)
	}
	return nil
}

// sqlTypeLength reads the first length argument of COLUMN_TYPE, e.g. 36 in char(36).
func sqlTypeLength(col Column) (int, bool) {
	spec := strings.TrimSpace(col.ColumnType)
	if spec == "" {
		spec = strings.TrimSpace(col.DataType)
	}
	start := strings.Index(spec, "(")
	end := strings.Index(spec, ")")
	if start == -1 || end <= start+1 {
		return 0, false
	}
	arg := spec[start+1 : end]
	if idx := strings.Index(arg, ","); idx != -1 {
		arg = arg[:idx]
	}
	length, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, false
	}
	return length, true
}
