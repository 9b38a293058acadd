package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"civicdata/internal/storage"
)

func init() {
	// registers the postgres backend factory
	storage.Register("postgres", Open)
}

// Open opens a Postgres database through pgx's database/sql driver.
func Open(ctx context.Context, cfg storage.Config) (*storage.Store, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return storage.NewStore(db, Dialect{}), nil
}

// Dialect implements storage.Dialect for PostgreSQL.
//
// Unqualified table names resolve against current_schema(), the same way
// unqualified names resolve in queries.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Kind() string { return "postgres" }

func (Dialect) QuoteIdent(name string) string { return pgx.Identifier{name}.Sanitize() }

// QuoteTable returns a properly quoted table reference.
// If the name has no schema part, returns just the quoted table name.
func (Dialect) QuoteTable(name string) string {
	schema, table := storage.SplitQualified(name)
	if schema == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

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

// MatchText uses LIKE, which is case-sensitive in Postgres.
func (d Dialect) MatchText(expr string, m storage.TextMatch, pattern string) (string, []any) {
	return fmt.Sprintf(`%s LIKE $1 ESCAPE '\'`, d.AsText(expr)), []any{storage.LikePattern(d, m, pattern)}
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
		return "BIGINT"
	case storage.KindReal:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

// DescribeTable reads pg_attribute so declared types keep their modifiers
// (format_type yields "character varying(40)" where information_schema
// would only say "character varying").
func (Dialect) DescribeTable(ctx context.Context, q storage.Querier, table string) ([]storage.Column, error) {
	schema, name := storage.SplitQualified(table)

	const query = `
		SELECT a.attname, format_type(a.atttypid, a.atttypmod)
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relname = $1
		  AND n.nspname = COALESCE(NULLIF($2, ''), current_schema())
		  AND c.relkind IN ('r', 'p', 'v', 'm')
		  AND a.attnum > 0
		  AND NOT a.attisdropped
		ORDER BY a.attnum
	`

	rows, err := q.QueryContext(ctx, query, name, schema)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var cols []storage.Column
	for rows.Next() {
		var c storage.Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, storage.ErrNoSuchTable
	}
	return cols, nil
}

// StoredName confirms the relation exists. Quoted identifiers match
// exactly in Postgres, so the name comes back as given.
func (Dialect) StoredName(ctx context.Context, q storage.Querier, table string) (string, error) {
	schema, name := storage.SplitQualified(table)
	stored, ok, err := storage.FirstString(ctx, q, `
		SELECT c.relname
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relname = $1
		  AND n.nspname = COALESCE(NULLIF($2, ''), current_schema())
		  AND c.relkind IN ('r', 'p', 'v', 'm')
	`, name, schema)
	if err != nil {
		return "", fmt.Errorf("lookup table: %w", err)
	}
	if !ok {
		return "", storage.ErrNoSuchTable
	}
	return storage.Qualify(schema, stored), nil
}

func (Dialect) ListTables(ctx context.Context, q storage.Querier) ([]string, error) {
	const query = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// RebuildTable uses CREATE TABLE ... AS, which keeps the source column
// types in Postgres. DDL is transactional, so the caller's rollback undoes
// every step.
func (d Dialect) RebuildTable(table, tmp string, keep []storage.Column) []string {
	names := make([]string, 0, len(keep))
	for _, c := range keep {
		names = append(names, c.Name)
	}
	_, bare := storage.SplitQualified(table)
	return []string{
		fmt.Sprintf("CREATE TABLE %s AS SELECT %s FROM %s", d.QuoteTable(tmp), storage.JoinIdents(d, names), d.QuoteTable(table)),
		fmt.Sprintf("DROP TABLE %s", d.QuoteTable(table)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.QuoteTable(tmp), pgx.Identifier{bare}.Sanitize()),
	}
}
