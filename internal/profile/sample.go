package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"civicdata/internal/storage"
)

// PredicateKind selects how SampleByPredicate filters and orders values.
type PredicateKind string

const (
	Shortest PredicateKind = "shortest" // by text length ascending
	Longest  PredicateKind = "longest"  // by text length descending
	Contains PredicateKind = "contains"
	Prefix   PredicateKind = "prefix"
	Suffix   PredicateKind = "suffix"
)

// Predicate is one labelled filter. Pattern is used by Contains, Prefix
// and Suffix and is matched literally and case-sensitively.
type Predicate struct {
	Label   string        `json:"label" yaml:"label"`
	Kind    PredicateKind `json:"kind" yaml:"kind"`
	Pattern string        `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

func (pr Predicate) label() string {
	if pr.Label != "" {
		return pr.Label
	}
	if pr.Pattern != "" {
		return string(pr.Kind) + " " + pr.Pattern
	}
	return string(pr.Kind)
}

// Sample is one value picked by a predicate.
type Sample struct {
	Label string `json:"label" yaml:"label"`
	Value any    `json:"value" yaml:"value"`
}

// SampleByPredicate runs each predicate against column and appends up to
// limit matching values per predicate, in predicate order. Values are not
// de-duplicated across predicates. NULLs never match.
func (p *Profiler) SampleByPredicate(ctx context.Context, table, column string, preds []Predicate, limit int) (out []Sample, err error) {
	defer p.track("sample", time.Now(), &err)

	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	for _, pr := range preds {
		if err = pr.validate(); err != nil {
			return nil, err
		}
	}
	col, err := p.column(ctx, table, column)
	if err != nil {
		return nil, err
	}

	out = []Sample{}
	for _, pr := range preds {
		query, args := p.sampleQuery(table, col, pr, limit)
		vals, err := p.queryValues(ctx, query, args...)
		if err != nil {
			return nil, storeErr("sample "+pr.label(), err)
		}
		for _, v := range vals {
			out = append(out, Sample{Label: pr.label(), Value: v})
		}
	}
	return out, nil
}

func (pr Predicate) validate() error {
	switch pr.Kind {
	case Shortest, Longest:
		return nil
	case Contains, Prefix, Suffix:
		if pr.Pattern == "" {
			return fmt.Errorf("%w: %s needs a pattern", ErrInvalidPredicate, pr.Kind)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPredicate, pr.Kind)
	}
}

func (p *Profiler) sampleQuery(table string, col storage.Column, pr Predicate, limit int) (string, []any) {
	d := p.store.Dialect()
	qc := d.QuoteIdent(col.Name)
	where := qc + " IS NOT NULL"
	orderBy := d.AsText(qc)

	var args []any
	match := func(m storage.TextMatch) {
		cond, a := d.MatchText(qc, m, pr.Pattern)
		where += " AND " + cond
		args = a
	}

	switch pr.Kind {
	case Shortest:
		orderBy = d.TextLength(qc) + " ASC, " + orderBy
	case Longest:
		orderBy = d.TextLength(qc) + " DESC, " + orderBy
	case Contains:
		match(storage.MatchContains)
	case Prefix:
		match(storage.MatchPrefix)
	case Suffix:
		match(storage.MatchSuffix)
	}

	return d.SelectLimit(qc, d.QuoteTable(table), where, orderBy, limit), args
}

func (p *Profiler) queryValues(ctx context.Context, query string, args ...any) ([]any, error) {
	rs, err := p.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []any
	for rs.Next() {
		var v any
		if err := rs.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, storage.NormalizeValue(v))
	}
	return out, rs.Err()
}

// ParsePredicateKind maps a user-supplied name onto a PredicateKind.
func ParsePredicateKind(s string) (PredicateKind, error) {
	k := PredicateKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case Shortest, Longest, Contains, Prefix, Suffix:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidPredicate, s)
}
