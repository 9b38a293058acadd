// Package profile computes structural and statistical summaries of a table
// in a relational store: schema, per-column uniqueness, value frequencies
// and their meta-distribution. It can also prune columns by rebuilding a
// table and pull hand-picked samples out of one column.
//
// Every operation reads live table state; nothing is cached between calls.
// Table and column names are checked against the introspected schema before
// they are quoted into SQL. Values are always bound parameters.
package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"civicdata/internal/logging"
	"civicdata/internal/metrics"
	"civicdata/internal/storage"
)

// Profiler runs profiling operations against one store.
type Profiler struct {
	store  *storage.Store
	log    *zap.Logger
	tmpTag func() string
}

// Option configures a Profiler.
type Option func(*Profiler)

// WithLogger sets the logger. nil keeps the no-op default.
func WithLogger(l *zap.Logger) Option {
	return func(p *Profiler) { p.log = logging.OrNop(l) }
}

// New returns a Profiler over s.
func New(s *storage.Store, opts ...Option) *Profiler {
	p := &Profiler{
		store: s,
		log:   zap.NewNop(),
		tmpTag: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ListTables returns the user tables of the store's default schema.
func (p *Profiler) ListTables(ctx context.Context) (tables []string, err error) {
	defer p.track("list_tables", time.Now(), &err)

	tables, err = p.store.Dialect().ListTables(ctx, p.store.DB())
	if err != nil {
		return nil, storeErr("list tables", err)
	}
	return tables, nil
}

// DescribeTable returns the table's columns in declaration order.
// Returns *NotFoundError if the table does not exist.
func (p *Profiler) DescribeTable(ctx context.Context, table string) (cols []storage.Column, err error) {
	defer p.track("describe", time.Now(), &err)
	return p.describe(ctx, p.store.DB(), table)
}

// RowCount returns the number of rows in table.
func (p *Profiler) RowCount(ctx context.Context, table string) (n int64, err error) {
	defer p.track("row_count", time.Now(), &err)

	if _, err = p.describe(ctx, p.store.DB(), table); err != nil {
		return 0, err
	}
	q := "SELECT COUNT(*) FROM " + p.store.Dialect().QuoteTable(table)
	if err = p.store.DB().QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, storeErr("count rows", err)
	}
	return n, nil
}

func (p *Profiler) describe(ctx context.Context, q storage.Querier, table string) ([]storage.Column, error) {
	if strings.TrimSpace(table) == "" {
		return nil, &NotFoundError{Table: table}
	}
	cols, err := p.store.Dialect().DescribeTable(ctx, q, table)
	if errors.Is(err, storage.ErrNoSuchTable) {
		return nil, &NotFoundError{Table: table}
	}
	if err != nil {
		return nil, storeErr("describe "+table, err)
	}
	return cols, nil
}

// resolveColumn returns the schema entry for name. An exact match wins;
// otherwise a single case-insensitive match is accepted, since SQLite and
// SQL Server compare identifiers case-insensitively.
func resolveColumn(table string, cols []storage.Column, name string) (storage.Column, error) {
	var folded []storage.Column
	for _, c := range cols {
		if c.Name == name {
			return c, nil
		}
		if strings.EqualFold(c.Name, name) {
			folded = append(folded, c)
		}
	}
	if len(folded) == 1 {
		return folded[0], nil
	}
	return storage.Column{}, &ColumnNotFoundError{Table: table, Column: name}
}

// column describes table and resolves one column of it.
func (p *Profiler) column(ctx context.Context, table, name string) (storage.Column, error) {
	cols, err := p.describe(ctx, p.store.DB(), table)
	if err != nil {
		return storage.Column{}, err
	}
	return resolveColumn(table, cols, name)
}

func (p *Profiler) track(op string, started time.Time, errp *error) {
	err := *errp
	metrics.RecordOp(op, started, err)
	if err != nil {
		p.log.Debug("profile op failed", zap.String("op", op), zap.Error(err))
		return
	}
	p.log.Debug("profile op done", zap.String("op", op), zap.Duration("took", time.Since(started)))
}
