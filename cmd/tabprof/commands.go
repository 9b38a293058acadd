package main

import (
	"context"

	"github.com/spf13/cobra"

	"civicdata/internal/cli"
	"civicdata/internal/profile"
)

func (a *app) tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables",
		Args:  cli.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withProfiler(cmd, func(ctx context.Context, env *cli.Env, p *profile.Profiler) error {
				names, err := p.ListTables(ctx)
				if err != nil {
					return err
				}
				return env.Renderer(cmd).Tables(names)
			})
		},
	}
}

func (a *app) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table>",
		Short: "Show a table's columns and declared types",
		Args:  cli.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withProfiler(cmd, func(ctx context.Context, env *cli.Env, p *profile.Profiler) error {
				cols, err := p.DescribeTable(ctx, args[0])
				if err != nil {
					return err
				}
				return env.Renderer(cmd).Schema(args[0], cols)
			})
		},
	}
}

func (a *app) profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile <table>",
		Short: "Classify columns as unique or non-unique",
		Args:  cli.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withProfiler(cmd, func(ctx context.Context, env *cli.Env, p *profile.Profiler) error {
				c, err := p.ClassifyColumns(ctx, args[0])
				if err != nil {
					return err
				}
				return env.Renderer(cmd).Profile(c)
			})
		},
	}
}

func (a *app) freqCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "freq <table> <column>",
		Short: "Count occurrences of each value in a column",
		Args:  cli.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return cli.Usagef("--limit must not be negative")
			}
			return a.withProfiler(cmd, func(ctx context.Context, env *cli.Env, p *profile.Profiler) error {
				rows, err := p.ValueFrequencies(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return env.Renderer(cmd).Frequencies(args[0], args[1], rows, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many values (0 shows all)")
	return cmd
}

func (a *app) fofCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fof <table> <column>",
		Short: "Count how many values occur N times",
		Args:  cli.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withProfiler(cmd, func(ctx context.Context, env *cli.Env, p *profile.Profiler) error {
				rows, err := p.FrequencyOfFrequencies(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return env.Renderer(cmd).FrequencyOfFrequencies(args[0], args[1], rows)
			})
		},
	}
}

func (a *app) dropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop <table> <column>...",
		Short: "Remove columns by rebuilding the table",
		Args:  cli.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, columns := args[0], args[1:]
			return a.withProfiler(cmd, func(ctx context.Context, env *cli.Env, p *profile.Profiler) error {
				if err := p.DropColumns(ctx, table, columns); err != nil {
					return err
				}
				remaining, err := p.DescribeTable(ctx, table)
				if err != nil {
					return err
				}
				return env.Renderer(cmd).Dropped(table, columns, remaining)
			})
		},
	}
}

type sampleFlags struct {
	shortest bool
	longest  bool
	contains []string
	prefix   []string
	suffix   []string
	limit    int
}

// predicates returns the requested predicates in a fixed order. With no
// predicate flags it samples the shortest and longest values.
func (f sampleFlags) predicates() []profile.Predicate {
	var out []profile.Predicate
	if f.shortest {
		out = append(out, profile.Predicate{Kind: profile.Shortest})
	}
	if f.longest {
		out = append(out, profile.Predicate{Kind: profile.Longest})
	}
	for _, s := range f.contains {
		out = append(out, profile.Predicate{Kind: profile.Contains, Pattern: s})
	}
	for _, s := range f.prefix {
		out = append(out, profile.Predicate{Kind: profile.Prefix, Pattern: s})
	}
	for _, s := range f.suffix {
		out = append(out, profile.Predicate{Kind: profile.Suffix, Pattern: s})
	}
	if len(out) == 0 {
		out = []profile.Predicate{{Kind: profile.Shortest}, {Kind: profile.Longest}}
	}
	return out
}

func (a *app) sampleCmd() *cobra.Command {
	var f sampleFlags
	cmd := &cobra.Command{
		Use:   "sample <table> <column>",
		Short: "Pick example values from a column",
		Args:  cli.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withProfiler(cmd, func(ctx context.Context, env *cli.Env, p *profile.Profiler) error {
				samples, err := p.SampleByPredicate(ctx, args[0], args[1], f.predicates(), f.limit)
				if err != nil {
					return err
				}
				return env.Renderer(cmd).Samples(args[0], args[1], samples)
			})
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&f.shortest, "shortest", false, "shortest values by text length")
	fl.BoolVar(&f.longest, "longest", false, "longest values by text length")
	fl.StringArrayVar(&f.contains, "contains", nil, "values containing this text (repeatable)")
	fl.StringArrayVar(&f.prefix, "prefix", nil, "values starting with this text (repeatable)")
	fl.StringArrayVar(&f.suffix, "suffix", nil, "values ending with this text (repeatable)")
	fl.IntVar(&f.limit, "limit", 5, "values per predicate")
	return cmd
}
