package profile

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ColumnProfile is the cardinality summary of one column.
type ColumnProfile struct {
	Name          string `json:"name" yaml:"name"`
	DeclaredType  string `json:"declared_type" yaml:"declared_type"`
	IsUnique      bool   `json:"is_unique" yaml:"is_unique"`
	DistinctCount int64  `json:"distinct_count" yaml:"distinct_count"`
}

// Classification partitions a table's columns into unique and non-unique.
// Columns, Unique and NonUnique all follow schema order.
type Classification struct {
	Table     string          `json:"table" yaml:"table"`
	TotalRows int64           `json:"total_rows" yaml:"total_rows"`
	Columns   []ColumnProfile `json:"columns" yaml:"columns"`
	Unique    []string        `json:"unique" yaml:"unique"`
	NonUnique []string        `json:"non_unique" yaml:"non_unique"`
}

// ClassifyColumns counts rows and every column's distinct values in one
// pass and marks a column unique iff its distinct count equals the row
// count. NULL counts as one distinct value. A table with no rows has every
// column unique (0 == 0).
func (p *Profiler) ClassifyColumns(ctx context.Context, table string) (c *Classification, err error) {
	defer p.track("classify", time.Now(), &err)

	cols, err := p.describe(ctx, p.store.DB(), table)
	if err != nil {
		return nil, err
	}

	d := p.store.Dialect()
	exprs := make([]string, 0, len(cols)+1)
	exprs = append(exprs, "COUNT(*)")
	for _, col := range cols {
		q := d.QuoteIdent(col.Name)
		exprs = append(exprs, fmt.Sprintf(
			"COUNT(DISTINCT %s) + COALESCE(MAX(CASE WHEN %s IS NULL THEN 1 ELSE 0 END), 0)", q, q))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), d.QuoteTable(table))

	counts := make([]sql.NullInt64, len(exprs))
	dest := make([]any, len(counts))
	for i := range counts {
		dest[i] = &counts[i]
	}
	if err = p.store.DB().QueryRowContext(ctx, query).Scan(dest...); err != nil {
		return nil, storeErr("classify "+table, err)
	}

	out := &Classification{
		Table:     table,
		TotalRows: counts[0].Int64,
		Columns:   make([]ColumnProfile, 0, len(cols)),
		Unique:    []string{},
		NonUnique: []string{},
	}
	for i, col := range cols {
		distinct := counts[i+1].Int64
		cp := ColumnProfile{
			Name:          col.Name,
			DeclaredType:  col.Type,
			DistinctCount: distinct,
			IsUnique:      distinct == out.TotalRows,
		}
		out.Columns = append(out.Columns, cp)
		if cp.IsUnique {
			out.Unique = append(out.Unique, col.Name)
		} else {
			out.NonUnique = append(out.NonUnique, col.Name)
		}
	}

	p.log.Info("classified columns",
		zap.String("table", table),
		zap.Int64("rows", out.TotalRows),
		zap.Int("unique", len(out.Unique)),
		zap.Int("non_unique", len(out.NonUnique)),
	)
	return out, nil
}
