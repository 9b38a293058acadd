package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDialect struct{}

func (fakeDialect) Kind() string                   { return "fake" }
func (fakeDialect) QuoteIdent(n string) string     { return "<" + n + ">" }
func (fakeDialect) QuoteTable(n string) string     { return "<" + n + ">" }
func (fakeDialect) Placeholder(n int) string       { return "?" }
func (fakeDialect) AsText(expr string) string      { return "TXT(" + expr + ")" }
func (fakeDialect) TextLength(expr string) string  { return "LEN(" + expr + ")" }
func (fakeDialect) EscapeLike(s string) string     { return s }
func (fakeDialect) ColumnType(k ValueKind) string  { return "T" }
func (fakeDialect) MatchText(expr string, m TextMatch, p string) (string, []any) {
	return expr + " LIKE ?", []any{LikePattern(fakeDialect{}, m, p)}
}
func (fakeDialect) StoredName(ctx context.Context, q Querier, table string) (string, error) {
	return table, nil
}
func (fakeDialect) SelectLimit(c, f, w, o string, l int) string {
	return "SELECT " + c + " FROM " + f
}
func (fakeDialect) DescribeTable(ctx context.Context, q Querier, table string) ([]Column, error) {
	return nil, ErrNoSuchTable
}
func (fakeDialect) ListTables(ctx context.Context, q Querier) ([]string, error) { return nil, nil }
func (fakeDialect) RebuildTable(table, tmp string, keep []Column) []string   { return nil }

func TestNormalizeKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"postgres", "postgres"},
		{"PostgreSQL", "postgres"},
		{" pg ", "postgres"},
		{"sqlserver", "mssql"},
		{"MSSQL", "mssql"},
		{"sqlite3", "sqlite"},
		{"spatialite", "sqlite"},
		{"Oracle", "oracle"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeKind(tt.in), "NormalizeKind(%q)", tt.in)
	}
}

func TestRegisterAndOpen(t *testing.T) {
	Register("fake-open", func(ctx context.Context, cfg Config) (*Store, error) {
		return NewStore(nil, fakeDialect{}), nil
	})

	s, err := Open(context.Background(), Config{Kind: "fake-open", DSN: "x"})
	require.NoError(t, err)
	assert.Equal(t, "fake", s.Kind())
	assert.Contains(t, Kinds(), "fake-open")
}

func TestOpen_RejectsEmptyAndUnknownKinds(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrUnsupportedKind)

	_, err = Open(context.Background(), Config{Kind: "nope"})
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	assert.Contains(t, err.Error(), `"nope"`)
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	f := func(ctx context.Context, cfg Config) (*Store, error) { return nil, nil }
	Register("fake-dup", f)
	assert.Panics(t, func() { Register("fake-dup", f) })
	assert.Panics(t, func() { Register("", f) })
	assert.Panics(t, func() { Register("fake-nil", nil) })
}

func TestSQLHelpers(t *testing.T) {
	t.Parallel()
	d := fakeDialect{}

	assert.Equal(t, "CREATE TABLE <t> (\n  <a> TEXT,\n  <b> INTEGER\n)",
		CreateTableSQL(d, "t", []Column{{Name: "a", Type: "TEXT"}, {Name: "b", Type: "INTEGER"}}))
	assert.Equal(t, "INSERT INTO <t> (<a>, <b>) VALUES (?, ?)", InsertSQL(d, "t", []string{"a", "b"}))
	assert.Equal(t, "<x>, <y>", JoinIdents(d, []string{"x", "y"}))

	assert.Equal(t, "%St%", LikePattern(d, MatchContains, "St"))
	assert.Equal(t, "St%", LikePattern(d, MatchPrefix, "St"))
	assert.Equal(t, "%St", LikePattern(d, MatchSuffix, "St"))

	assert.Equal(t, "main.roads", Qualify("main", "roads"))
	assert.Equal(t, "roads", Qualify("", "roads"))
}

func TestSplitQualified(t *testing.T) {
	t.Parallel()

	s, tb := SplitQualified("public.parcels")
	assert.Equal(t, "public", s)
	assert.Equal(t, "parcels", tb)

	s, tb = SplitQualified("parcels")
	assert.Equal(t, "", s)
	assert.Equal(t, "parcels", tb)

	s, tb = SplitQualified(".odd")
	assert.Equal(t, "", s)
	assert.Equal(t, ".odd", tb)
}

func TestNormalizeAndFormatValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "x", NormalizeValue([]byte("x")))
	assert.Equal(t, int64(3), NormalizeValue(int64(3)))
	assert.Nil(t, NormalizeValue(nil))

	assert.Equal(t, "NULL", FormatValue(nil))
	assert.Equal(t, "abc", FormatValue([]byte("abc")))
	assert.Equal(t, "42", FormatValue(int64(42)))
	assert.Equal(t, "1.5", FormatValue(1.5))
}
