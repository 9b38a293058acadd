package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"civicdata/internal/storage"
)

// defaultSchema is SQL Server's default schema for unqualified names.
const defaultSchema = "dbo"

func init() {
	storage.Register("mssql", Open)
}

// Open opens SQL Server through database/sql and the "sqlserver" driver
// registered by go-mssqldb. Connectivity is validated via PingContext.
func Open(ctx context.Context, cfg storage.Config) (*storage.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to mssql: %w", err)
	}
	return storage.NewStore(db, Dialect{}), nil
}

// Dialect implements storage.Dialect for Microsoft SQL Server.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Kind() string { return "mssql" }

func (Dialect) QuoteIdent(name string) string { return quoteName(name) }

// QuoteTable builds a fully qualified [schema].[table] reference,
// defaulting to dbo.
func (Dialect) QuoteTable(name string) string {
	schema, table := parseSchemaTable(name)
	return quoteName(schema) + "." + quoteName(table)
}

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

func (Dialect) AsText(expr string) string {
	return fmt.Sprintf("CAST(%s AS NVARCHAR(MAX))", expr)
}

func (Dialect) TextLength(expr string) string {
	return fmt.Sprintf("LEN(CAST(%s AS NVARCHAR(MAX)))", expr)
}

// EscapeLike also escapes '[' because T-SQL LIKE treats brackets as a
// character class.
func (Dialect) EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `[`, `\[`)
	return r.Replace(s)
}

// MatchText forces a binary collation; the server default compares
// case-insensitively.
func (d Dialect) MatchText(expr string, m storage.TextMatch, pattern string) (string, []any) {
	return fmt.Sprintf(`%s COLLATE Latin1_General_BIN2 LIKE @p1 ESCAPE '\'`, d.AsText(expr)),
		[]any{storage.LikePattern(d, m, pattern)}
}

func (Dialect) SelectLimit(columns, from, where, orderBy string, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT TOP (%d) %s FROM %s", limit, columns, from)
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	return b.String()
}

func (Dialect) ColumnType(k storage.ValueKind) string {
	switch k {
	case storage.KindInteger:
		return "BIGINT"
	case storage.KindReal:
		return "FLOAT"
	default:
		return "NVARCHAR(MAX)"
	}
}

// DescribeTable reads sys.columns for the resolved object id. Types are
// rendered with their length/precision so the report shows what was declared.
func (Dialect) DescribeTable(ctx context.Context, q storage.Querier, table string) ([]storage.Column, error) {
	schema, name := parseSchemaTable(table)

	const query = `
	SELECT
		c.name,
		tp.name AS type_name,
		c.max_length,
		c.precision,
		c.scale
	FROM sys.columns c
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	WHERE c.object_id = OBJECT_ID(QUOTENAME(@p1) + N'.' + QUOTENAME(@p2))
	ORDER BY c.column_id
	`

	rows, err := q.QueryContext(ctx, query, schema, name)
	if err != nil {
		return nil, fmt.Errorf("mssql: query columns: %w", err)
	}
	defer rows.Close()

	var cols []storage.Column
	for rows.Next() {
		var (
			colName, typeName string
			maxLen            int16
			precision, scale  uint8
		)
		if err := rows.Scan(&colName, &typeName, &maxLen, &precision, &scale); err != nil {
			return nil, fmt.Errorf("mssql: scan column: %w", err)
		}
		cols = append(cols, storage.Column{Name: colName, Type: formatType(typeName, maxLen, precision, scale)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mssql: iterate columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, storage.ErrNoSuchTable
	}
	return cols, nil
}

// StoredName reads the name sys.objects recorded for the table, which may
// differ in case from the one given under a case-insensitive collation.
func (Dialect) StoredName(ctx context.Context, q storage.Querier, table string) (string, error) {
	schema, name := parseSchemaTable(table)
	stored, ok, err := storage.FirstString(ctx, q, `
	SELECT o.name
	FROM sys.objects o
	WHERE o.object_id = OBJECT_ID(QUOTENAME(@p1) + N'.' + QUOTENAME(@p2))
	  AND o.type IN ('U', 'V')
	`, schema, name)
	if err != nil {
		return "", fmt.Errorf("mssql: lookup table: %w", err)
	}
	if !ok {
		return "", storage.ErrNoSuchTable
	}
	given, _ := storage.SplitQualified(strings.NewReplacer("[", "", "]", "").Replace(table))
	return storage.Qualify(given, stored), nil
}

func (Dialect) ListTables(ctx context.Context, q storage.Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
	SELECT t.name
	FROM sys.tables t
	WHERE t.schema_id = SCHEMA_ID(N'dbo') AND t.is_ms_shipped = 0
	ORDER BY t.name
	`)
	if err != nil {
		return nil, fmt.Errorf("mssql: query tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// RebuildTable uses SELECT ... INTO (keeps column types) and sp_rename.
// SQL Server DDL is transactional, so a rollback restores the original.
func (d Dialect) RebuildTable(table, tmp string, keep []storage.Column) []string {
	names := make([]string, 0, len(keep))
	for _, c := range keep {
		names = append(names, c.Name)
	}
	schema, tmpName := parseSchemaTable(tmp)
	_, bare := parseSchemaTable(table)

	return []string{
		fmt.Sprintf("SELECT %s INTO %s FROM %s", storage.JoinIdents(d, names), d.QuoteTable(tmp), d.QuoteTable(table)),
		fmt.Sprintf("DROP TABLE %s", d.QuoteTable(table)),
		fmt.Sprintf("EXEC sp_rename N'%s', N'%s'",
			escapeStringLiteral(quoteName(schema)+"."+quoteName(tmpName)),
			escapeStringLiteral(bare)),
	}
}

// parseSchemaTable parses a table name that may include schema.
// SQL Server format: [schema].[table] or schema.table
// Returns (schema, table). Defaults to "dbo" schema if not specified.
func parseSchemaTable(tableName string) (string, string) {
	cleaned := strings.ReplaceAll(tableName, "[", "")
	cleaned = strings.ReplaceAll(cleaned, "]", "")

	schema, table := storage.SplitQualified(cleaned)
	if schema == "" {
		return defaultSchema, table
	}
	return schema, table
}

// quoteName mirrors QUOTENAME(): square brackets with ] escaped as ]].
func quoteName(identifier string) string {
	escaped := strings.ReplaceAll(identifier, "]", "]]")
	return fmt.Sprintf("[%s]", escaped)
}

// escapeStringLiteral escapes a string for use in SQL Server string literals.
func escapeStringLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// formatType renders a sys.types name with its size modifiers.
// max_length is in bytes and -1 means MAX; n-types store two bytes per char.
func formatType(typeName string, maxLen int16, precision, scale uint8) string {
	t := strings.ToLower(typeName)
	switch t {
	case "varchar", "char", "varbinary", "binary":
		if maxLen == -1 {
			return t + "(max)"
		}
		return fmt.Sprintf("%s(%d)", t, maxLen)
	case "nvarchar", "nchar":
		if maxLen == -1 {
			return t + "(max)"
		}
		return fmt.Sprintf("%s(%d)", t, maxLen/2)
	case "decimal", "numeric":
		return fmt.Sprintf("%s(%d,%d)", t, precision, scale)
	default:
		return t
	}
}
