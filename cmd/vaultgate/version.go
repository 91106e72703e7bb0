package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaultgate/vaultgate/cmd"
	"github.com/vaultgate/vaultgate/pkg/vaultgate"
)

func versionMain(_ *cobra.Command, arguments []string) error {
	// Validate arguments.
	if len(arguments) != 0 {
		return errors.New("unexpected arguments")
	}

	// Print version information.
	fmt.Println(vaultgate.Version)

	// Success.
	return nil
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run:   cmd.Mainify(versionMain),
}

var versionConfiguration struct {
	// help indicates the presence of the -h/--help flag.
	help bool
}

func init() {
	flags := versionCommand.Flags()
	flags.BoolVarP(&versionConfiguration.help, "help", "h", false, "Show help information")
}
