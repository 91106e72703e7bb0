package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaultgate/vaultgate/cmd"
	"github.com/vaultgate/vaultgate/pkg/store"
)

func statsMain(_ *cobra.Command, arguments []string) error {
	// Validate arguments.
	if len(arguments) != 0 {
		return errors.New("unexpected arguments")
	}
	if statsConfiguration.database == "" {
		return errors.New("no database path specified")
	}

	// Open the store read-only and defer its closure.
	st, err := store.OpenReadOnly(statsConfiguration.database, rootLogger)
	if err != nil {
		return err
	}
	defer st.Close()

	// Compute and report statistics.
	stats, err := st.Stats()
	if err != nil {
		return err
	}
	fmt.Println("Sizes indexed:      ", stats.Sizes)
	fmt.Println("Fringes indexed:    ", stats.Fringes)
	fmt.Println("Contents indexed:   ", stats.Fulls)
	fmt.Println("Moves in flight:    ", stats.JournalUnterminated)
	fmt.Println("Orphans pending:    ", stats.OrphansPending)

	// Success.
	return nil
}

var statsCommand = &cobra.Command{
	Use:   "stats",
	Short: "Report index sizes and pending recovery work",
	Run:   cmd.Mainify(statsMain),
}

var statsConfiguration struct {
	// help indicates the presence of the -h/--help flag.
	help bool
	// database is the index database path.
	database string
}

func init() {
	flags := statsCommand.Flags()
	flags.BoolVarP(&statsConfiguration.help, "help", "h", false, "Show help information")
	flags.StringVar(&statsConfiguration.database, "db", "", "Index database path")
}
