package storage

import (
	"fmt"
	"strings"
)

// NormalizeValue converts a scanned driver value into a stable Go value.
//
// Drivers disagree on how TEXT comes back (string vs []byte); callers that
// group or compare values must not see that difference.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return v
	}
}

// FormatValue renders a scanned value for display. NULL renders as "NULL".
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return fmt.Sprintf("%d", t)
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// SplitQualified splits "schema.table" into its parts at the first dot. A
// name without a dot has an empty schema.
func SplitQualified(name string) (schema, table string) {
	if i := strings.IndexByte(name, '.'); i > 0 && i < len(name)-1 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// CreateTableSQL renders a plain CREATE TABLE for the given dialect.
func CreateTableSQL(d Dialect, table string, cols []Column) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, fmt.Sprintf("%s %s", d.QuoteIdent(c.Name), c.Type))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", d.QuoteTable(table), strings.Join(parts, ",\n  "))
}

// InsertSQL renders a single-row parameterised INSERT.
func InsertSQL(d Dialect, table string, columns []string) string {
	cols := make([]string, 0, len(columns))
	ph := make([]string, 0, len(columns))
	for i, c := range columns {
		cols = append(cols, d.QuoteIdent(c))
		ph = append(ph, d.Placeholder(i+1))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.QuoteTable(table), strings.Join(cols, ", "), strings.Join(ph, ", "))
}

// JoinIdents quotes and comma-joins column names.
func JoinIdents(d Dialect, columns []string) string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, d.QuoteIdent(c))
	}
	return strings.Join(out, ", ")
}

// LikePattern builds an escaped LIKE pattern for m. Use with ESCAPE '\'.
func LikePattern(d Dialect, m TextMatch, s string) string {
	s = d.EscapeLike(s)
	switch m {
	case MatchPrefix:
		return s + "%"
	case MatchSuffix:
		return "%" + s
	default:
		return "%" + s + "%"
	}
}

// Qualify joins schema and table back into one name.
func Qualify(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}
