package profile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"civicdata/internal/storage"
)

// FrequencyRow is one distinct value of a column and how many rows hold it.
// A NULL value is reported as Value == nil.
type FrequencyRow struct {
	Value any   `json:"value" yaml:"value"`
	Count int64 `json:"count" yaml:"count"`
}

// FrequencyOfFrequency says how many distinct values occur exactly
// Frequency times.
type FrequencyOfFrequency struct {
	Frequency       int64 `json:"frequency" yaml:"frequency"`
	OccurrenceCount int64 `json:"occurrence_count" yaml:"occurrence_count"`
}

// ValueFrequencies groups table by column and returns one row per distinct
// value ordered by count descending. The order among equal counts is
// whatever the store yields.
func (p *Profiler) ValueFrequencies(ctx context.Context, table, column string) (rows []FrequencyRow, err error) {
	defer p.track("value_frequencies", time.Now(), &err)

	col, err := p.column(ctx, table, column)
	if err != nil {
		return nil, err
	}
	return p.valueFrequencies(ctx, table, col)
}

func (p *Profiler) valueFrequencies(ctx context.Context, table string, col storage.Column) ([]FrequencyRow, error) {
	d := p.store.Dialect()
	qc := d.QuoteIdent(col.Name)
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s GROUP BY %s ORDER BY COUNT(*) DESC",
		qc, d.QuoteTable(table), qc)

	rs, err := p.store.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr("frequencies "+table+"."+col.Name, err)
	}
	defer rs.Close()

	out := []FrequencyRow{}
	for rs.Next() {
		var (
			v any
			n int64
		)
		if err := rs.Scan(&v, &n); err != nil {
			return nil, storeErr("scan frequency", err)
		}
		out = append(out, FrequencyRow{Value: storage.NormalizeValue(v), Count: n})
	}
	if err := rs.Err(); err != nil {
		return nil, storeErr("frequencies "+table+"."+col.Name, err)
	}
	return out, nil
}

// FrequencyOfFrequencies derives, from the value frequencies of column, how
// many values share each count. Rows are ordered by OccurrenceCount
// descending, then Frequency ascending.
func (p *Profiler) FrequencyOfFrequencies(ctx context.Context, table, column string) (out []FrequencyOfFrequency, err error) {
	defer p.track("frequency_of_frequencies", time.Now(), &err)

	col, err := p.column(ctx, table, column)
	if err != nil {
		return nil, err
	}
	rows, err := p.valueFrequencies(ctx, table, col)
	if err != nil {
		return nil, err
	}
	return FoldFrequencies(rows), nil
}

// FoldFrequencies builds the frequency-of-frequencies table from value
// frequencies.
func FoldFrequencies(rows []FrequencyRow) []FrequencyOfFrequency {
	byCount := make(map[int64]int64, len(rows))
	for _, r := range rows {
		byCount[r.Count]++
	}

	out := make([]FrequencyOfFrequency, 0, len(byCount))
	for f, n := range byCount {
		out = append(out, FrequencyOfFrequency{Frequency: f, OccurrenceCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OccurrenceCount != out[j].OccurrenceCount {
			return out[i].OccurrenceCount > out[j].OccurrenceCount
		}
		return out[i].Frequency < out[j].Frequency
	})
	return out
}
