package report

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"civicdata/internal/profile"
	"civicdata/internal/storage"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func classification() *profile.Classification {
	return &profile.Classification{
		Table:     "t",
		TotalRows: 3,
		Columns: []profile.ColumnProfile{
			{Name: "a", DeclaredType: "INTEGER", IsUnique: true, DistinctCount: 3},
			{Name: "b", DeclaredType: "TEXT", DistinctCount: 2},
		},
		Unique:    []string{"a"},
		NonUnique: []string{"b"},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": Text, "TEXT": Text, "json": JSON, "yml": YAML, " yaml ": YAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("csv")
	assert.Error(t, err)
}

func TestProfile_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, Text).Profile(classification()))

	want := "table t  rows=3  columns=2\n" +
		"column  type     distinct  ratio   unique\n" +
		"a       INTEGER  3         100.0%  yes\n" +
		"b       TEXT     2         66.7%   no\n" +
		"unique: a\n" +
		"non-unique: b\n"
	assert.Equal(t, want, buf.String())
}

func TestProfile_EmptyTableText(t *testing.T) {
	var buf bytes.Buffer
	c := &profile.Classification{
		Table:   "e",
		Columns: []profile.ColumnProfile{{Name: "a", IsUnique: true}},
		Unique:  []string{"a"},
	}
	require.NoError(t, New(&buf, Text).Profile(c))
	assert.Contains(t, buf.String(), "a       -     0         -      yes")
	assert.Contains(t, buf.String(), "non-unique: -\n")
}

func TestProfile_JSONAndYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, JSON).Profile(classification()))

	var got profile.Classification
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, *classification(), got)

	buf.Reset()
	require.NoError(t, New(&buf, YAML).Profile(classification()))
	var y map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &y))
	assert.Equal(t, 3, y["total_rows"])
	assert.Equal(t, []any{"b"}, y["non_unique"])
}

func TestFrequencies_TextLimit(t *testing.T) {
	var buf bytes.Buffer
	rows := []profile.FrequencyRow{{Value: "x", Count: 2}, {Value: nil, Count: 1}, {Value: int64(7), Count: 1}}
	require.NoError(t, New(&buf, Text).Frequencies("t", "b", rows, 2))

	want := "frequencies t.b  distinct=3\n" +
		"value  count\n" +
		"x      2\n" +
		"NULL   1\n" +
		"... 1 more values\n"
	assert.Equal(t, want, buf.String())
}

func TestFrequencies_JSONKeepsDistinct(t *testing.T) {
	var buf bytes.Buffer
	rows := []profile.FrequencyRow{{Value: "x", Count: 2}, {Value: "y", Count: 1}}
	require.NoError(t, New(&buf, JSON).Frequencies("t", "b", rows, 1))

	var got struct {
		Distinct int `json:"distinct"`
		Values   []struct {
			Value string `json:"value"`
			Count int    `json:"count"`
		} `json:"values"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got.Distinct)
	require.Len(t, got.Values, 1)
	assert.Equal(t, "x", got.Values[0].Value)
}

func TestFrequencyOfFrequencies_Text(t *testing.T) {
	var buf bytes.Buffer
	rows := []profile.FrequencyOfFrequency{{Frequency: 1, OccurrenceCount: 1}, {Frequency: 2, OccurrenceCount: 1}}
	require.NoError(t, New(&buf, Text).FrequencyOfFrequencies("t", "b", rows))

	assert.Equal(t, "frequency of frequencies t.b\nfrequency  values\n1          1\n2          1\n", buf.String())
}

func TestSamplesAndTables(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, Text)
	require.NoError(t, r.Samples("streets", "name", []profile.Sample{
		{Label: "shortest", Value: "A"},
		{Label: "contains St", Value: "Bay St"},
	}))
	assert.Equal(t, "samples streets.name\nshortest     A\ncontains St  Bay St\n", buf.String())

	buf.Reset()
	require.NoError(t, r.Tables(nil))
	assert.Equal(t, "no tables\n", buf.String())

	buf.Reset()
	require.NoError(t, New(&buf, JSON).Tables(nil))
	assert.JSONEq(t, `{"tables":[]}`, buf.String())
}

func TestDropped_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, Text).Dropped("t", []string{"b"}, []storage.Column{{Name: "a", Type: "INTEGER"}, {Name: "c", Type: ""}}))
	assert.Equal(t, "dropped from t: b\ntable t\ncolumn  type\na       INTEGER\nc       -\n", buf.String())
}
