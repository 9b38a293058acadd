package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrNoSuchTable is returned by Dialect.DescribeTable when the store has no
// table (or view) with the requested name.
var ErrNoSuchTable = errors.New("storage: no such table")

// ErrUnsupportedKind is returned by Open for kinds no backend registered.
var ErrUnsupportedKind = errors.New("storage: unsupported kind")

// Config is the minimal configuration needed to open a Store.
//
// Edge cases:
//   - Kind is normalized (e.g. "postgresql" -> "postgres") before lookup.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Column is one entry of a table's introspected schema.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// ValueKind is the backend-neutral type of a column created by this tool.
type ValueKind int

const (
	KindText ValueKind = iota
	KindInteger
	KindReal
)

// TextMatch selects a literal, case-sensitive substring test.
type TextMatch int

const (
	MatchContains TextMatch = iota
	MatchPrefix
	MatchSuffix
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Dialect captures everything that differs between backends for the
// statements this tool generates. Implementations hold no state.
//
// Table names are split at the first dot into schema and table (see
// SplitQualified), so a table whose own name contains a dot cannot be
// addressed.
type Dialect interface {
	// Kind returns the canonical backend kind ("sqlite", "postgres", "mssql").
	Kind() string

	// QuoteIdent quotes a single identifier (column name).
	QuoteIdent(name string) string

	// QuoteTable quotes a possibly schema-qualified table name.
	QuoteTable(name string) string

	// Placeholder returns the bind placeholder for the n-th (1-based) argument.
	Placeholder(n int) string

	// AsText casts a column expression to the backend's text type.
	AsText(expr string) string

	// TextLength yields the character length of expr's text form.
	TextLength(expr string) string

	// EscapeLike escapes LIKE wildcards in s for use with ESCAPE '\'.
	EscapeLike(s string) string

	// MatchText renders a case-sensitive literal match of expr's text form
	// against pattern. Placeholders are numbered from 1; args are returned
	// in placeholder order.
	MatchText(expr string, m TextMatch, pattern string) (cond string, args []any)

	// SelectLimit renders a bounded SELECT. where and orderBy may be empty.
	SelectLimit(columns, from, where, orderBy string, limit int) string

	// ColumnType maps a ValueKind to the backend's declared type.
	ColumnType(k ValueKind) string

	// DescribeTable returns the ordered column list, or ErrNoSuchTable.
	DescribeTable(ctx context.Context, q Querier, table string) ([]Column, error)

	// StoredName returns the table's name as the store recorded it, with
	// the schema part (if any) kept as given. Returns ErrNoSuchTable.
	StoredName(ctx context.Context, q Querier, table string) (string, error)

	// ListTables returns the user tables visible in the default schema.
	ListTables(ctx context.Context, q Querier) ([]string, error)

	// RebuildTable returns the statements that replace table with a copy
	// holding only keep, using tmp as the intermediate name. They are run
	// in order inside one transaction.
	RebuildTable(table, tmp string, keep []Column) []string
}

// FirstString returns the first column of the first row of query. ok is
// false when the query yields no rows.
func FirstString(ctx context.Context, q Querier, query string, args ...any) (v string, ok bool, err error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&v); err != nil {
			return "", false, err
		}
		ok = true
	}
	return v, ok, rows.Err()
}

// Store couples an open database handle with its dialect.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// NewStore wraps an already opened handle. Backends call this from their
// factories; tests may call it directly.
func NewStore(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

func (s *Store) DB() *sql.DB      { return s.db }
func (s *Store) Dialect() Dialect { return s.dialect }
func (s *Store) Kind() string     { return s.dialect.Kind() }
func (s *Store) Close() error     { return s.db.Close() }

// ---- factories ----

type factory func(ctx context.Context, cfg Config) (*Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Open constructs a Store using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Kind) == "" {
		return nil, fmt.Errorf("%w: missing kind", ErrUnsupportedKind)
	}
	kind := NormalizeKind(cfg.Kind)

	mu.RLock()
	f := factories[kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("%w %q (registered: %s)", ErrUnsupportedKind, cfg.Kind, strings.Join(Kinds(), ", "))
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NormalizeKind maps common aliases onto canonical backend kinds.
// Unknown values are returned lowercased and trimmed.
func NormalizeKind(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "postgres", "postgresql", "pg":
		return "postgres"
	case "mssql", "sqlserver":
		return "mssql"
	case "sqlite", "sqlite3", "spatialite":
		return "sqlite"
	default:
		return s
	}
}
