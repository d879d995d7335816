// Package cli holds the pieces shared by the command binaries: cobra
// execution with exit-code mapping and metrics backend setup.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Exit codes returned by Execute.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// UsageError marks an error caused by bad command-line input.
type UsageError struct{ Err error }

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// Usage wraps err as a UsageError. Nil stays nil.
func Usage(err error) error {
	if err == nil {
		return nil
	}
	return &UsageError{Err: err}
}

// Usagef builds a UsageError from a format string.
func Usagef(format string, a ...any) error {
	return &UsageError{Err: fmt.Errorf(format, a...)}
}

// ExitCode maps err to a process exit status.
func ExitCode(err error) int {
	var ue *UsageError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &ue):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// Execute runs cmd with args and returns the exit status. Flag and argument
// errors exit 2 with the usage line on stderr. Errors returned from RunE exit
// 1.
func Execute(ctx context.Context, cmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return Usage(err) })
	if cmd.Args == nil {
		cmd.Args = cobra.NoArgs
	}
	validate := cmd.Args
	cmd.Args = func(c *cobra.Command, a []string) error { return Usage(validate(c, a)) }

	err := cmd.ExecuteContext(ctx)
	code := ExitCode(err)
	switch code {
	case ExitUsage:
		fmt.Fprintf(stderr, "%s: %v\n", cmd.Name(), err)
		fmt.Fprintf(stderr, "usage: %s\n", cmd.UseLine())
	case ExitFailure:
		fmt.Fprintf(stderr, "%s: %v\n", cmd.Name(), err)
	}
	return code
}
