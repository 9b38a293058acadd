// Package export writes tables out as CSV and turns CSV files into XLSX
// workbooks.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"civicdata/internal/metrics"
	"civicdata/internal/profile"
	"civicdata/internal/storage"
)

// TableToCSV writes a header row and every row of table to w, leaving out
// the drop columns. Column names are checked against the table schema
// first, so an absent table or drop column fails before anything is
// written. NULL is written as an empty field.
func TableToCSV(ctx context.Context, s *storage.Store, table string, w io.Writer, drop []string) (n int64, err error) {
	started := time.Now()
	defer func() { metrics.RecordOp("export_csv", started, err) }()

	keep, err := profile.New(s).ColumnsWithout(ctx, table, drop)
	if err != nil {
		return 0, err
	}
	names := make([]string, len(keep))
	for i, c := range keep {
		names[i] = c.Name
	}

	d := s.Dialect()
	q := fmt.Sprintf("SELECT %s FROM %s", storage.JoinIdents(d, names), d.QuoteTable(table))
	rows, err := s.DB().QueryContext(ctx, q)
	if err != nil {
		return 0, &profile.StoreError{Op: "export " + table, Err: err}
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(names); err != nil {
		return 0, err
	}

	vals := make([]any, len(names))
	dest := make([]any, len(names))
	for i := range vals {
		dest[i] = &vals[i]
	}
	rec := make([]string, len(names))
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return n, &profile.StoreError{Op: "export " + table, Err: err}
		}
		for i, v := range vals {
			rec[i] = csvField(v)
		}
		if err := cw.Write(rec); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, &profile.StoreError{Op: "export " + table, Err: err}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, err
	}
	metrics.RecordRows("exported", table, n)
	return n, nil
}

func csvField(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return storage.FormatValue(v)
	}
}
