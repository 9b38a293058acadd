package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicdata/internal/storage"
)

func abcTable() []string {
	return []string{
		`CREATE TABLE t (a INTEGER, b TEXT, c REAL)`,
		`INSERT INTO t VALUES (1, 'x', 1.5), (2, 'y', NULL), (3, NULL, 3.25)`,
	}
}

func rowsOf(t *testing.T, p *Profiler, query string) [][]any {
	t.Helper()
	rs, err := p.store.DB().QueryContext(context.Background(), query)
	require.NoError(t, err)
	defer rs.Close()

	cols, err := rs.Columns()
	require.NoError(t, err)

	var out [][]any
	for rs.Next() {
		row := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range row {
			dest[i] = &row[i]
		}
		require.NoError(t, rs.Scan(dest...))
		out = append(out, row)
	}
	require.NoError(t, rs.Err())
	return out
}

func TestDropColumns_KeepsRemainingData(t *testing.T) {
	p := newProfiler(t, abcTable()...)
	ctx := context.Background()

	before := rowsOf(t, p, `SELECT a, c FROM t ORDER BY a`)

	require.NoError(t, p.DropColumns(ctx, "t", []string{"b"}))

	cols, err := p.DescribeTable(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, []storage.Column{{Name: "a", Type: "INTEGER"}, {Name: "c", Type: "REAL"}}, cols)
	assert.Equal(t, before, rowsOf(t, p, `SELECT a, c FROM t ORDER BY a`))

	tables, err := p.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, tables, "no intermediate table left behind")
}

func TestDropColumns_KeepsStoredTableName(t *testing.T) {
	p := newProfiler(t, `CREATE TABLE roads (a INTEGER, b TEXT)`, `INSERT INTO roads VALUES (1, 'x')`)
	ctx := context.Background()

	require.NoError(t, p.DropColumns(ctx, "ROADS", []string{"b"}))

	tables, err := p.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"roads"}, tables)

	cols, err := p.DescribeTable(ctx, "roads")
	require.NoError(t, err)
	assert.Equal(t, []storage.Column{{Name: "a", Type: "INTEGER"}}, cols)
}

func TestDropColumns_AbsentColumnLeavesTableUnchanged(t *testing.T) {
	p := newProfiler(t, abcTable()...)
	ctx := context.Background()

	before := rowsOf(t, p, `SELECT * FROM t ORDER BY a`)

	err := p.DropColumns(ctx, "t", []string{"b", "z"})
	var cnf *ColumnNotFoundError
	require.ErrorAs(t, err, &cnf)
	assert.Equal(t, "z", cnf.Column)

	cols, err := p.DescribeTable(ctx, "t")
	require.NoError(t, err)
	assert.Len(t, cols, 3)
	assert.Equal(t, before, rowsOf(t, p, `SELECT * FROM t ORDER BY a`))
}

func TestDropColumns_AllColumns(t *testing.T) {
	p := newProfiler(t, abcTable()...)

	err := p.DropColumns(context.Background(), "t", []string{"a", "B", "c", "a"})
	assert.ErrorIs(t, err, ErrNoColumnsLeft)

	cols, err := p.DescribeTable(context.Background(), "t")
	require.NoError(t, err)
	assert.Len(t, cols, 3)
}

func TestDropColumns_MissingTableAndNoop(t *testing.T) {
	p := newProfiler(t, abcTable()...)
	ctx := context.Background()

	assert.ErrorIs(t, p.DropColumns(ctx, "nope", []string{"a"}), ErrTableNotFound)
	assert.NoError(t, p.DropColumns(ctx, "nope", nil))
}

func TestDropColumns_FailedRebuildRollsBack(t *testing.T) {
	p := newProfiler(t, append(abcTable(), `CREATE TABLE t__rebuild_fixed (x)`)...)
	p.tmpTag = func() string { return "fixed" }
	ctx := context.Background()

	before := rowsOf(t, p, `SELECT * FROM t ORDER BY a`)

	err := p.DropColumns(ctx, "t", []string{"c"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)

	cols, err := p.DescribeTable(ctx, "t")
	require.NoError(t, err)
	assert.Len(t, cols, 3)
	assert.Equal(t, before, rowsOf(t, p, `SELECT * FROM t ORDER BY a`))
}

func TestDropColumns_ThenReclassify(t *testing.T) {
	p := newProfiler(t, propertyTable()...)
	ctx := context.Background()

	require.NoError(t, p.DropColumns(ctx, "addr", []string{"id"}))

	c, err := p.ClassifyColumns(ctx, "addr")
	require.NoError(t, err)
	assert.Equal(t, int64(7), c.TotalRows)
	assert.Empty(t, c.Unique)
	assert.Equal(t, []string{"street", "ward", "unit"}, c.NonUnique)
}

func TestRebuildName(t *testing.T) {
	p := New(nil)
	p.tmpTag = func() string { return "abc" }

	assert.Equal(t, "t__rebuild_abc", p.rebuildName("t"))
	assert.Equal(t, "main.t__rebuild_abc", p.rebuildName("main.t"))
}

func TestColumnsWithout(t *testing.T) {
	p := newProfiler(t, abcTable()...)
	ctx := context.Background()

	keep, err := p.ColumnsWithout(ctx, "t", []string{"B"})
	require.NoError(t, err)
	assert.Equal(t, []storage.Column{{Name: "a", Type: "INTEGER"}, {Name: "c", Type: "REAL"}}, keep)

	keep, err = p.ColumnsWithout(ctx, "t", nil)
	require.NoError(t, err)
	assert.Len(t, keep, 3)

	_, err = p.ColumnsWithout(ctx, "t", []string{"zz"})
	assert.ErrorIs(t, err, ErrColumnNotFound)

	_, err = p.ColumnsWithout(ctx, "t", []string{"a", "b", "c"})
	assert.ErrorIs(t, err, ErrNoColumnsLeft)
}
