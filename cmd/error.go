package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Warning prints a colorized warning message to standard error.
func Warning(message string) {
	fmt.Fprintln(color.Error, color.YellowString("Warning:"), message)
}

// Error prints a colorized error message to standard error.
func Error(err error) {
	fmt.Fprintln(color.Error, color.RedString("Error:"), err)
}

// Fatal prints an error message to standard error and then terminates the
// process with an error exit code. Entry points should prefer returning an
// error through Mainify so that deferred cleanup runs; Fatal is the terminal
// step once no cleanup remains.
func Fatal(err error) {
	Error(err)
	os.Exit(1)
}
