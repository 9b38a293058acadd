// Command tabprof profiles tables in a relational store: schema, column
// uniqueness, value frequencies, column pruning and value samples.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"civicdata/internal/cli"
	"civicdata/internal/profile"
	_ "civicdata/internal/storage/all"
)

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	// BackendFactory builds the metrics backend when the settings ask for
	// one. nil disables metrics.
	BackendFactory cli.BackendFactory
}

// main only wires real dependencies and exits with a code.
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

// run executes one tabprof invocation and returns the exit code:
// 0 success, 1 store or other failure, 2 usage, 3 unknown table,
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
	root := cli.NewRoot("tabprof", "Profile tables in a relational store")
	a.flags.Bind(root)
	root.AddCommand(
		a.tablesCmd(),
		a.schemaCmd(),
		a.profileCmd(),
		a.freqCmd(),
		a.fofCmd(),
		a.dropCmd(),
		a.sampleCmd(),
	)
	return root
}

// withProfiler sets up the environment, opens the store and hands fn a
// profiler over it. Metrics are flushed when fn returns.
func (a *app) withProfiler(cmd *cobra.Command, fn func(ctx context.Context, env *cli.Env, p *profile.Profiler) error) error {
	ctx := cmd.Context()
	env, err := cli.Setup(ctx, "tabprof", a.flags, a.deps.BackendFactory)
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: metrics: %v\n", err)
		}
	}()

	s, err := env.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(ctx, env, profile.New(s, profile.WithLogger(env.Log)))
}
