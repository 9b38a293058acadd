// Package cli holds the plumbing shared by the command binaries: global
// flags, settings and logger setup, the metrics backend lifetime and the
// mapping from errors to exit codes.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"civicdata/internal/profile"
)

// Exit codes.
const (
	ExitOK             = 0
	ExitError          = 1
	ExitUsage          = 2
	ExitNotFound       = 3
	ExitColumnNotFound = 4
)

// UsageError marks bad invocations: unknown commands or flags, wrong
// argument counts, invalid flag values and unusable settings.
type UsageError struct{ Err error }

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// Usagef returns a formatted *UsageError.
func Usagef(format string, a ...any) error {
	return &UsageError{Err: fmt.Errorf(format, a...)}
}

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	var ue *UsageError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &ue),
		errors.Is(err, profile.ErrInvalidLimit),
		errors.Is(err, profile.ErrInvalidPredicate):
		return ExitUsage
	case errors.Is(err, profile.ErrColumnNotFound):
		return ExitColumnNotFound
	case errors.Is(err, profile.ErrTableNotFound):
		return ExitNotFound
	default:
		return ExitError
	}
}

// Report prints a failing err as "error: ..." and returns its exit code.
func Report(w io.Writer, err error) int {
	code := ExitCode(err)
	if code != ExitOK {
		fmt.Fprintf(w, "error: %v\n", err)
	}
	return code
}

// NewRoot returns a root command that prints its own errors through
// Report, treats unknown subcommands and flag errors as usage errors, and
// shows help when run bare.
func NewRoot(use, short string) *cobra.Command {
	root := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return Usagef("unknown command %q for %q", args[0], cmd.CommandPath())
			}
			return cmd.Help()
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

// ExactArgs is cobra.ExactArgs reporting a *UsageError.
func ExactArgs(n int) cobra.PositionalArgs { return usageArgs(cobra.ExactArgs(n)) }

// MinimumNArgs is cobra.MinimumNArgs reporting a *UsageError.
func MinimumNArgs(n int) cobra.PositionalArgs { return usageArgs(cobra.MinimumNArgs(n)) }

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}
