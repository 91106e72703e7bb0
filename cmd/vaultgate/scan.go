package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vaultgate/vaultgate/cmd"
	"github.com/vaultgate/vaultgate/pkg/configuration"
	"github.com/vaultgate/vaultgate/pkg/dedup"
	"github.com/vaultgate/vaultgate/pkg/session"
)

// errTerminated indicates that a termination signal arrived between files.
var errTerminated = errors.New("terminated by signal")

// decisionRecord is the JSON shape of a decision, with the stable field names
// of the invoker contract.
type decisionRecord struct {
	Result       string `json:"result"`
	Tier         int    `json:"tier"`
	OriginalPath string `json:"original_path"`
	StoredPath   string `json:"stored_path,omitempty"`
	DuplicateOf  string `json:"duplicate_of,omitempty"`
	Error        string `json:"error,omitempty"`
}

// recordFromDecision converts a decision into its JSON shape.
func recordFromDecision(decision dedup.Decision) decisionRecord {
	record := decisionRecord{
		Result:       decision.Result.String(),
		Tier:         decision.Tier,
		OriginalPath: decision.OriginalPath,
		StoredPath:   decision.StoredPath,
		DuplicateOf:  decision.DuplicateOf,
	}
	if decision.Err != nil {
		record.Error = decision.Err.Error()
	}
	return record
}

// scanTally accumulates summary counts across a scan.
type scanTally struct {
	unique     int
	duplicate  int
	skipped    int
	uniqueSize uint64
}

// printDecision prints a single colorized decision line.
func printDecision(decision dedup.Decision) {
	switch decision.Result {
	case dedup.ResultUnique:
		fmt.Printf("%s [%d] %s\n", color.GreenString("unique   "), decision.Tier, decision.OriginalPath)
	case dedup.ResultDuplicate:
		fmt.Printf("%s [%d] %s (duplicate of %s)\n",
			color.YellowString("duplicate"), decision.Tier, decision.OriginalPath, decision.DuplicateOf)
	case dedup.ResultSkipped:
		fmt.Printf("%s [%d] %s (%v)\n",
			color.New(color.Faint).Sprint("skipped  "), decision.Tier, decision.OriginalPath, decision.Err)
	}
}

func scanMain(_ *cobra.Command, arguments []string) error {
	// Validate arguments.
	if len(arguments) == 0 {
		return errors.New("no paths specified")
	}

	// Load the configuration file, if any, and let flags take precedence.
	configurationPath := scanConfiguration.configFile
	if configurationPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configurationPath = filepath.Join(home, ".vaultgate.toml")
		}
	}
	loaded := configuration.Default()
	if configurationPath != "" {
		result, err := configuration.Load(configurationPath)
		if err != nil {
			return fmt.Errorf("unable to load configuration: %w", err)
		}
		loaded = result
	}
	database := scanConfiguration.database
	if database == "" {
		database = loaded.Database
	}
	vaultRoot := scanConfiguration.vault
	if vaultRoot == "" {
		vaultRoot = loaded.Vault
	}
	hddMode := scanConfiguration.hddMode || loaded.HDDMode

	// Open the session (locking, schema verification, and recovery happen
	// here) and defer its closure.
	handle, err := session.Open(&session.Options{
		Database:         database,
		Vault:            vaultRoot,
		HDDMode:          hddMode,
		JournalRetention: time.Duration(loaded.JournalRetention),
		OrphanRetention:  time.Duration(loaded.OrphanRetention),
	}, rootLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := handle.Close(); err != nil {
			cmd.Warning(fmt.Sprintf("unable to close session: %v", err))
		}
	}()

	// Watch for termination signals so that the scan stops cleanly after the
	// current record. Signals arriving inside the move engine's critical
	// section are deferred there and re-raised into this channel afterward.
	terminated := make(chan os.Signal, 1)
	signal.Notify(terminated, cmd.TerminationSignals...)
	defer signal.Stop(terminated)

	// Process each record as it is produced. In human-readable mode a status
	// line below the decision stream tracks the running tally.
	var tally scanTally
	encoder := json.NewEncoder(os.Stdout)
	printer := &cmd.StatusLinePrinter{}
	handleDecision := func(decision dedup.Decision) error {
		if scanConfiguration.json {
			if err := encoder.Encode(recordFromDecision(decision)); err != nil {
				return err
			}
		} else {
			printer.Clear()
			printDecision(decision)
		}
		switch decision.Result {
		case dedup.ResultUnique:
			tally.unique++
			if metadata, err := os.Stat(decision.StoredPath); err == nil {
				tally.uniqueSize += uint64(metadata.Size())
			}
		case dedup.ResultDuplicate:
			tally.duplicate++
		case dedup.ResultSkipped:
			tally.skipped++
		}
		if !scanConfiguration.json {
			printer.Print(fmt.Sprintf("%d unique / %d duplicate / %d skipped",
				tally.unique, tally.duplicate, tally.skipped))
		}
		select {
		case <-terminated:
			return errTerminated
		default:
			return nil
		}
	}

	// Process each path argument, dispatching on file versus directory.
	for _, argument := range arguments {
		metadata, err := os.Stat(argument)
		if err != nil {
			return fmt.Errorf("unable to probe path: %w", err)
		}
		if metadata.IsDir() {
			err = handle.ProcessDirectory(argument, scanConfiguration.recursive, handleDecision)
		} else {
			var decision dedup.Decision
			if decision, err = handle.ProcessFile(argument); err == nil {
				err = handleDecision(decision)
			}
		}
		if err == errTerminated {
			break
		} else if err != nil {
			return err
		}
	}

	// Print a summary unless emitting JSON.
	if !scanConfiguration.json {
		printer.Clear()
		fmt.Printf("%d unique (%s), %d duplicate, %d skipped\n",
			tally.unique, humanize.Bytes(tally.uniqueSize), tally.duplicate, tally.skipped)
	}

	// Success.
	return nil
}

var scanCommand = &cobra.Command{
	Use:   "scan <path>...",
	Short: "Deduplicate files against the index, relocating uniques to the vault",
	Run:   cmd.Mainify(scanMain),
}

var scanConfiguration struct {
	// help indicates the presence of the -h/--help flag.
	help bool
	// database is the index database path.
	database string
	// vault is the vault root directory (enables active mode).
	vault string
	// hddMode enables the sequential fringe reader.
	hddMode bool
	// json enables JSON-lines output.
	json bool
	// recursive enables recursive directory traversal.
	recursive bool
	// configFile overrides the configuration file path.
	configFile string
}

func init() {
	flags := scanCommand.Flags()
	flags.BoolVarP(&scanConfiguration.help, "help", "h", false, "Show help information")
	flags.StringVar(&scanConfiguration.database, "db", "", "Index database path")
	flags.StringVar(&scanConfiguration.vault, "vault", "", "Vault root directory (enables moves)")
	flags.BoolVar(&scanConfiguration.hddMode, "hdd", false, "Use the sequential fringe reader for rotational media")
	flags.BoolVar(&scanConfiguration.json, "json", false, "Emit decision records as JSON lines")
	flags.BoolVarP(&scanConfiguration.recursive, "recursive", "r", false, "Traverse directories recursively")
	flags.StringVar(&scanConfiguration.configFile, "config", "", "Configuration file path")
}
