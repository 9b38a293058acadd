package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"civicdata/internal/ckan"
	"civicdata/internal/cli"
	"civicdata/internal/export"
	"civicdata/internal/parser/csv"
	"civicdata/internal/shapefile"
)

// packagesOrDefault returns args, or the configured packages when none are
// given.
func packagesOrDefault(env *cli.Env, args []string) []string {
	if len(args) > 0 {
		return args
	}
	return env.Settings.CKAN.Packages
}

func (a *app) fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [package-id...]",
		Short: "Download CKAN packages and unpack zip resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEnv(cmd, func(ctx context.Context, env *cli.Env) error {
				s := env.Settings
				client, err := ckan.NewClient(s.CKAN.BaseURL, a.deps.HTTPClient, s.CKAN.Timeout, env.Log)
				if err != nil {
					return cli.Usagef("%v", err)
				}
				f := ckan.NewFetcher(client, s.Data.Dir, env.Log)

				var results []*ckan.FetchResult
				for _, id := range packagesOrDefault(env, args) {
					res, err := f.Fetch(ctx, id)
					if err != nil {
						return fmt.Errorf("fetch %s: %w", id, err)
					}
					results = append(results, res)
				}
				return env.Renderer(cmd).Fetched(results)
			})
		},
	}
}

func (a *app) loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load [package-id...]",
		Short: "Load fetched shapefiles into the store, one table per layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEnv(cmd, func(ctx context.Context, env *cli.Env) error {
				store, err := env.OpenStore(ctx)
				if err != nil {
					return err
				}
				defer store.Close()

				s := env.Settings
				l := shapefile.NewLoader(store, shapefile.Options{
					Charset:     s.Data.Charset,
					DefaultEPSG: s.Data.DefaultEPSG,
				}, env.Log)

				var layers []shapefile.Layer
				for _, id := range packagesOrDefault(env, args) {
					dir := filepath.Join(s.Data.Dir, id)
					if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
						return fmt.Errorf("load %s: %s does not exist (run fetch first)", id, dir)
					}
					got, err := l.LoadDir(ctx, dir)
					layers = append(layers, got...)
					if err != nil {
						return fmt.Errorf("load %s: %w", id, err)
					}
					if len(got) == 0 {
						env.Log.Warn("no shapefiles found", zap.String("package", id), zap.String("dir", dir))
					}
				}
				return env.Renderer(cmd).Loaded(layers)
			})
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	var drop []string
	cmd := &cobra.Command{
		Use:   "export <table> <out.csv>",
		Short: "Write a table to CSV, optionally leaving columns out",
		Args:  cli.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, out := args[0], args[1]
			return a.withEnv(cmd, func(ctx context.Context, env *cli.Env) error {
				store, err := env.OpenStore(ctx)
				if err != nil {
					return err
				}
				defer store.Close()

				n, err := writeFile(out, func(f *os.File) (int64, error) {
					return export.TableToCSV(ctx, store, table, f, drop)
				})
				if err != nil {
					return err
				}
				env.Log.Info("table exported", zap.String("table", table), zap.String("out", out), zap.Int64("rows", n))
				return env.Renderer(cmd).Written(out, n)
			})
		},
	}
	cmd.Flags().StringSliceVar(&drop, "drop", nil, "columns to leave out (repeatable or comma separated)")
	return cmd
}

func (a *app) convertCmd() *cobra.Command {
	var (
		comma string
		lazy  bool
	)
	cmd := &cobra.Command{
		Use:   "convert <in.csv> <out.xlsx>",
		Short: "Convert a CSV file into an XLSX workbook",
		Args:  cli.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, size := utf8.DecodeRuneInString(comma)
			if size == 0 || size != len(comma) || r == '"' || r == '\n' || r == '\r' {
				return cli.Usagef("--comma must be a single character, got %q", comma)
			}
			in, out := args[0], args[1]
			return a.withEnv(cmd, func(ctx context.Context, env *cli.Env) error {
				f, err := os.Open(in)
				if err != nil {
					return err
				}
				defer f.Close()

				n, err := export.CSVToXLSX(ctx, f, out, csv.Options{Comma: r, LazyQuotes: lazy}, env.Log)
				if err != nil {
					return fmt.Errorf("convert %s: %w", in, err)
				}
				return env.Renderer(cmd).Written(out, n)
			})
		},
	}
	cmd.Flags().StringVar(&comma, "comma", ",", "field delimiter")
	cmd.Flags().BoolVar(&lazy, "lazy-quotes", false, "accept stray quotes in unquoted fields")
	return cmd
}

// writeFile creates path, runs write and removes the file again if write
// fails.
func writeFile(path string, write func(f *os.File) (int64, error)) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return n, nil
}
