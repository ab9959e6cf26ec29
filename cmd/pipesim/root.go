package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	exitOK            = 0
	exitSimError      = 2
	exitUnknown       = 3
	exitInvalidOption = 4
)

// simError marks failures of the simulation itself, as opposed to a bad
// command line.
type simError struct {
	err error
}

func (e *simError) Error() string {
	return e.err.Error()
}

func (e *simError) Unwrap() error {
	return e.err
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pipesim",
		Short: "pipesim simulates an in-order CPU pipeline cycle by cycle.",
		Long: `pipesim simulates an in-order CPU pipeline cycle by cycle. It can ` +
			`dump the module topology, trace the stages of the instructions ` +
			`and serve a live monitor of the run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.AddCommand(newRunCmd())

	return rootCmd
}

// execute runs the command line and translates the outcome into a process
// exit code. Panics are reported as unknown failures.
func execute(args []string, stdout, stderr io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "Unknown failure: %v\n", r)
			code = exitUnknown
		}
	}()

	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}

	var se *simError
	if errors.As(err, &se) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitSimError
	}

	fmt.Fprintf(stderr, "Invalid option: %v\n", err)
	fmt.Fprintf(stderr, "Run 'pipesim --help' for usage.\n")

	return exitInvalidOption
}
