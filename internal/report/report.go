// Package report renders profiling results as aligned colored text, JSON
// or YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"civicdata/internal/profile"
	"civicdata/internal/storage"
)

// Format is an output encoding.
type Format string

const (
	Text Format = "text"
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat accepts "text", "json", "yaml" or "yml" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return Text, nil
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

// Renderer writes reports to one writer in one format.
type Renderer struct {
	w      io.Writer
	format Format

	good  func(a ...any) string
	bad   func(a ...any) string
	title func(a ...any) string
}

// New returns a Renderer. Colors follow fatih/color's terminal detection
// (and NO_COLOR).
func New(w io.Writer, f Format) *Renderer {
	return &Renderer{
		w:      w,
		format: f,
		good:   color.New(color.FgGreen).SprintFunc(),
		bad:    color.New(color.FgYellow).SprintFunc(),
		title:  color.New(color.Bold).SprintFunc(),
	}
}

func (r *Renderer) encode(v any) error {
	switch r.format {
	case JSON:
		enc := json.NewEncoder(r.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case YAML:
		enc := yaml.NewEncoder(r.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("encode: unsupported format %q", r.format)
	}
}

func (r *Renderer) table(fn func(tw *tabwriter.Writer)) error {
	tw := tabwriter.NewWriter(r.w, 0, 4, 2, ' ', 0)
	fn(tw)
	return tw.Flush()
}

// Tables lists table names.
func (r *Renderer) Tables(names []string) error {
	if r.format != Text {
		return r.encode(struct {
			Tables []string `json:"tables" yaml:"tables"`
		}{Tables: nonNil(names)})
	}
	if len(names) == 0 {
		_, err := fmt.Fprintln(r.w, "no tables")
		return err
	}
	for _, n := range names {
		if _, err := fmt.Fprintln(r.w, n); err != nil {
			return err
		}
	}
	return nil
}

// Profile renders a column classification: row count, one line per column
// and the unique / non-unique partition.
func (r *Renderer) Profile(c *profile.Classification) error {
	if r.format != Text {
		return r.encode(c)
	}

	fmt.Fprintf(r.w, "%s %s  rows=%d  columns=%d\n", r.title("table"), c.Table, c.TotalRows, len(c.Columns))
	err := r.table(func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "column\ttype\tdistinct\tratio\tunique")
		for _, cp := range c.Columns {
			unique := r.bad("no")
			if cp.IsUnique {
				unique = r.good("yes")
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", cp.Name, typeOrDash(cp.DeclaredType), cp.DistinctCount, ratio(cp.DistinctCount, c.TotalRows), unique)
		}
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(r.w, "unique: %s\n", joinOrDash(c.Unique))
	_, err = fmt.Fprintf(r.w, "non-unique: %s\n", joinOrDash(c.NonUnique))
	return err
}

// Schema renders a column list.
func (r *Renderer) Schema(table string, cols []storage.Column) error {
	if r.format != Text {
		return r.encode(struct {
			Table   string           `json:"table" yaml:"table"`
			Columns []storage.Column `json:"columns" yaml:"columns"`
		}{table, nonNil(cols)})
	}
	fmt.Fprintf(r.w, "%s %s\n", r.title("table"), table)
	return r.table(func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "column\ttype")
		for _, c := range cols {
			fmt.Fprintf(tw, "%s\t%s\n", c.Name, typeOrDash(c.Type))
		}
	})
}

// Frequencies renders value counts. limit > 0 truncates the list; the
// number of omitted values is reported.
func (r *Renderer) Frequencies(table, column string, rows []profile.FrequencyRow, limit int) error {
	shown := rows
	if limit > 0 && len(rows) > limit {
		shown = rows[:limit]
	}
	if r.format != Text {
		return r.encode(struct {
			Table    string                 `json:"table" yaml:"table"`
			Column   string                 `json:"column" yaml:"column"`
			Distinct int                    `json:"distinct" yaml:"distinct"`
			Values   []profile.FrequencyRow `json:"values" yaml:"values"`
		}{table, column, len(rows), nonNil(shown)})
	}

	fmt.Fprintf(r.w, "%s %s.%s  distinct=%d\n", r.title("frequencies"), table, column, len(rows))
	err := r.table(func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "value\tcount")
		for _, fr := range shown {
			fmt.Fprintf(tw, "%s\t%d\n", storage.FormatValue(fr.Value), fr.Count)
		}
	})
	if err != nil {
		return err
	}
	if rest := len(rows) - len(shown); rest > 0 {
		_, err = fmt.Fprintf(r.w, "... %d more values\n", rest)
	}
	return err
}

// FrequencyOfFrequencies renders how many values occur N times.
func (r *Renderer) FrequencyOfFrequencies(table, column string, rows []profile.FrequencyOfFrequency) error {
	if r.format != Text {
		return r.encode(struct {
			Table  string                         `json:"table" yaml:"table"`
			Column string                         `json:"column" yaml:"column"`
			Rows   []profile.FrequencyOfFrequency `json:"frequency_of_frequencies" yaml:"frequency_of_frequencies"`
		}{table, column, nonNil(rows)})
	}

	fmt.Fprintf(r.w, "%s %s.%s\n", r.title("frequency of frequencies"), table, column)
	return r.table(func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "frequency\tvalues")
		for _, f := range rows {
			fmt.Fprintf(tw, "%d\t%d\n", f.Frequency, f.OccurrenceCount)
		}
	})
}

// Samples renders labelled sample values in order.
func (r *Renderer) Samples(table, column string, samples []profile.Sample) error {
	if r.format != Text {
		return r.encode(struct {
			Table   string           `json:"table" yaml:"table"`
			Column  string           `json:"column" yaml:"column"`
			Samples []profile.Sample `json:"samples" yaml:"samples"`
		}{table, column, nonNil(samples)})
	}

	fmt.Fprintf(r.w, "%s %s.%s\n", r.title("samples"), table, column)
	return r.table(func(tw *tabwriter.Writer) {
		for _, s := range samples {
			fmt.Fprintf(tw, "%s\t%s\n", s.Label, storage.FormatValue(s.Value))
		}
	})
}

// Dropped confirms a column drop and shows the remaining schema.
func (r *Renderer) Dropped(table string, dropped []string, remaining []storage.Column) error {
	if r.format != Text {
		return r.encode(struct {
			Table     string           `json:"table" yaml:"table"`
			Dropped   []string         `json:"dropped" yaml:"dropped"`
			Remaining []storage.Column `json:"remaining" yaml:"remaining"`
		}{table, nonNil(dropped), nonNil(remaining)})
	}
	fmt.Fprintf(r.w, "dropped from %s: %s\n", table, strings.Join(dropped, ", "))
	return r.Schema(table, remaining)
}

func ratio(distinct, total int64) string {
	if total <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(distinct)/float64(total)*100)
}

func typeOrDash(t string) string {
	if t == "" {
		return "-"
	}
	return t
}

func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
