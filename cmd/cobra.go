package cmd

import (
	"github.com/spf13/cobra"
)

// Mainify wraps an error-returning Cobra entry point into a standard Cobra
// entry point. Entry points in vaultgate rely on defer-based cleanup (session
// closure releases the database lock and runs housekeeping), which wouldn't
// occur if the entry point terminated the process directly; wrapping lets an
// entry point signal failure by returning an error while its deferred
// teardown still runs.
func Mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			Fatal(err)
		}
	}
}
