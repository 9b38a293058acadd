package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"civicdata/internal/storage"
)

// DefaultDSN is used when no DSN is configured: a database file in the
// working directory, matching the loader's default output.
const DefaultDSN = "file:toronto_map.sqlite?_pragma=busy_timeout(5000)"

func init() {
	storage.Register("sqlite", Open)
}

// Open opens a SQLite database through modernc.org/sqlite.
//
// The pool is pinned to a single connection: ":memory:" databases exist
// per connection.
func Open(ctx context.Context, cfg storage.Config) (*storage.Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		dsn = DefaultDSN
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return storage.NewStore(db, Dialect{}), nil
}

// Dialect implements storage.Dialect for SQLite.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Kind() string { return "sqlite" }

func (Dialect) QuoteIdent(name string) string { return sqlIdent(name) }

// QuoteTable quotes a table name. SQLite has no schemas beyond attached
// databases, so "main.t" is quoted as two parts.
func (Dialect) QuoteTable(name string) string {
	schema, table := storage.SplitQualified(name)
	if schema == "" {
		return sqlIdent(table)
	}
	return sqlIdent(schema) + "." + sqlIdent(table)
}

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) AsText(expr string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

func (Dialect) TextLength(expr string) string {
	return fmt.Sprintf("LENGTH(CAST(%s AS TEXT))", expr)
}

func (Dialect) EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// MatchText avoids LIKE, which ignores ASCII case in SQLite.
func (d Dialect) MatchText(expr string, m storage.TextMatch, pattern string) (string, []any) {
	text := d.AsText(expr)
	switch m {
	case storage.MatchPrefix:
		return fmt.Sprintf("instr(%s, ?) = 1", text), []any{pattern}
	case storage.MatchSuffix:
		return fmt.Sprintf("substr(%s, -length(?)) = ?", text), []any{pattern, pattern}
	default:
		return fmt.Sprintf("instr(%s, ?) > 0", text), []any{pattern}
	}
}

func (Dialect) SelectLimit(columns, from, where, orderBy string, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", columns, from)
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	fmt.Fprintf(&b, " LIMIT %d", limit)
	return b.String()
}

func (Dialect) ColumnType(k storage.ValueKind) string {
	switch k {
	case storage.KindInteger:
		return "INTEGER"
	case storage.KindReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// DescribeTable reads pragma_table_info. A table always has at least one
// column, so an empty result means the table does not exist. So does a
// schema part that names no attached database.
func (Dialect) DescribeTable(ctx context.Context, q storage.Querier, table string) ([]storage.Column, error) {
	schema, name := storage.SplitQualified(table)
	if err := requireSchema(ctx, q, schema); err != nil {
		return nil, err
	}

	query := `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`
	args := []any{name}
	if schema != "" {
		query = `SELECT name, type FROM pragma_table_info(?, ?) ORDER BY cid`
		args = append(args, schema)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: table_info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []storage.Column
	for rows.Next() {
		var c storage.Column
		var typ sql.NullString
		if err := rows.Scan(&c.Name, &typ); err != nil {
			return nil, err
		}
		c.Type = typ.String
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, storage.ErrNoSuchTable
	}
	return cols, nil
}

// StoredName looks the table up in sqlite_master, which compares names
// case-insensitively.
func (Dialect) StoredName(ctx context.Context, q storage.Querier, table string) (string, error) {
	schema, name := storage.SplitQualified(table)
	if err := requireSchema(ctx, q, schema); err != nil {
		return "", err
	}
	master := "sqlite_master"
	if schema != "" {
		master = sqlIdent(schema) + ".sqlite_master"
	}
	stored, ok, err := storage.FirstString(ctx, q,
		`SELECT name FROM `+master+` WHERE type IN ('table', 'view') AND name = ? COLLATE NOCASE`, name)
	if err != nil {
		return "", fmt.Errorf("sqlite: lookup %s: %w", table, err)
	}
	if !ok {
		return "", storage.ErrNoSuchTable
	}
	return storage.Qualify(schema, stored), nil
}

// requireSchema yields ErrNoSuchTable unless schema is empty or an attached
// database.
func requireSchema(ctx context.Context, q storage.Querier, schema string) error {
	if schema == "" {
		return nil
	}
	_, ok, err := storage.FirstString(ctx, q,
		`SELECT name FROM pragma_database_list WHERE name = ? COLLATE NOCASE`, schema)
	if err != nil {
		return fmt.Errorf("sqlite: database_list: %w", err)
	}
	if !ok {
		return storage.ErrNoSuchTable
	}
	return nil
}

func (Dialect) ListTables(ctx context.Context, q storage.Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tables: %w", err)
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

// RebuildTable creates tmp with the retained columns' declared types,
// copies the data, drops the original and renames tmp into place.
// Declared types are kept as written; CREATE TABLE AS SELECT would rewrite
// them from expression affinity.
func (d Dialect) RebuildTable(table, tmp string, keep []storage.Column) []string {
	names := make([]string, 0, len(keep))
	for _, c := range keep {
		names = append(names, c.Name)
	}
	cols := storage.JoinIdents(d, names)

	_, bare := storage.SplitQualified(table)
	return []string{
		storage.CreateTableSQL(d, tmp, keep),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", d.QuoteTable(tmp), cols, cols, d.QuoteTable(table)),
		fmt.Sprintf("DROP TABLE %s", d.QuoteTable(table)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.QuoteTable(tmp), sqlIdent(bare)),
	}
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
