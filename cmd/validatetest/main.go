package main

import (
	"errors"
	"fmt"
	"os"

	domainerrors "validatetest/internal/core/errors"
)

func main() {
	cmd := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(domainerrors.ExitCode(err))
	}
}

// exitError ends the process with code after the command already reported
// its findings.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
