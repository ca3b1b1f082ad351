package planner

import (
	"regexp"
	"strings"
)

func countPlaceholders(sql string) int {
	return strings.Count(sql, "?")
}

var aliasNumber = regexp.MustCompile(`__([A-Za-z0-9_]+?)_\d+`)

func stripAliasNumbers(sql string) string {
	return aliasNumber.ReplaceAllString(sql, "__${1}_N")
}

func intPtr(v int) *int {
	return &v
}
