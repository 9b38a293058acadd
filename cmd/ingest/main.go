// Command ingest pulls open-data packages from a CKAN catalog, loads their
// shapefiles into a relational store and converts tables to CSV and XLSX.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"civicdata/internal/cli"
	_ "civicdata/internal/storage/all"
)

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	// HTTPClient is used for catalog calls and downloads. nil means a
	// client with the configured timeout.
	HTTPClient *http.Client

	BackendFactory cli.BackendFactory
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], deps{
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
		BackendFactory: cli.NewDatadogBackend,
	})
	stop()
	os.Exit(code)
}

// run executes one ingest invocation and returns the exit code:
// 0 success, 1 download, load or store failure, 2 usage, 3 unknown table,
// 4 unknown column.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}

	a := &app{deps: d}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(d.Stdout)
	root.SetErr(d.Stderr)
	return cli.Report(d.Stderr, root.ExecuteContext(ctx))
}

type app struct {
	deps  deps
	flags cli.GlobalFlags
}

func (a *app) rootCmd() *cobra.Command {
	root := cli.NewRoot("ingest", "Fetch, load and convert civic open data")
	a.flags.Bind(root)
	root.AddCommand(
		a.fetchCmd(),
		a.loadCmd(),
		a.exportCmd(),
		a.convertCmd(),
	)
	return root
}

// withEnv sets up settings, logging and metrics for one command.
func (a *app) withEnv(cmd *cobra.Command, fn func(ctx context.Context, env *cli.Env) error) error {
	env, err := cli.Setup(cmd.Context(), "ingest", a.flags, a.deps.BackendFactory)
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: metrics: %v\n", err)
		}
	}()
	return fn(cmd.Context(), env)
}
