// Command balancectl runs consolidations from the shell and manages the
// refresh queue.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("balancectl version %s\n", version)
		os.Exit(0)
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitCodeError carries a process exit code whose message was already
// printed.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var exit exitCodeError
		if errors.As(err, &exit) {
			return exit.code
		}
		_, _ = fmt.Fprintf(stderr, "balancectl: %v\n", err)
		return 1
	}
	return 0
}
