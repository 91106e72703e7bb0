package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/vaultgate/vaultgate/cmd"
	"github.com/vaultgate/vaultgate/pkg/vaultgate"
)

func rootMain(command *cobra.Command, _ []string) error {
	// Print version information, if requested.
	if rootConfiguration.version {
		command.Println(vaultgate.Version)
		return nil
	}

	// If no flags were set, then print help information and bail. We don't
	// have to worry about warning about arguments being present here (which
	// would be incorrect usage) because arguments can't even reach this point
	// (they will be mistaken for subcommands and an error will be displayed).
	command.Help()

	// Success.
	return nil
}

var rootCommand = &cobra.Command{
	Use:   "vaultgate",
	Short: "Vaultgate deduplicates incoming files against a crash-safe content index.",
	Run:   cmd.Mainify(rootMain),
}

var rootConfiguration struct {
	// help indicates the presence of the -h/--help flag.
	help bool
	// version indicates the presence of the -V/--version flag.
	version bool
}

func init() {
	// Bind flags to configuration. We manually add help to override the
	// default message, but Cobra still implements it automatically.
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVarP(&rootConfiguration.version, "version", "V", false, "Show version information")

	// Disable Cobra's command sorting behavior. By default, it sorts commands
	// alphabetically in the help output.
	cobra.EnableCommandSorting = false

	// Register commands. We do this here (rather than in individual init
	// functions) so that we can control the order.
	rootCommand.AddCommand(
		scanCommand,
		statsCommand,
		versionCommand,
	)
}

func main() {
	// Execute the root command.
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
