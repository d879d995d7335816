package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command is one external program invocation.
type Command struct {
	Name string
	Args []string
	// Env is appended to the current process environment.
	Env []string
	Dir string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner executes a Command to completion.
type Runner interface {
	Run(ctx context.Context, c Command) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, c Command) error

// Run calls f(ctx, c).
func (f RunnerFunc) Run(ctx context.Context, c Command) error { return f(ctx, c) }

// CommandRunner runs commands with os/exec. Nil writers default to the
// process stdout and stderr.
type CommandRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Run implements Runner. Cancelling ctx kills the process.
func (r CommandRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Dir = c.Dir
	cmd.Stdout = r.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = r.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", c, err)
	}
	return nil
}
