package main

import (
	"log"
	"os"

	"github.com/vaultgate/vaultgate/pkg/logging"
)

// rootLogger is the logger handed to sessions created by this process.
var rootLogger = logging.RootLogger

func init() {
	// Route log output to standard error so that decision records on
	// standard output stay machine-consumable.
	log.SetOutput(os.Stderr)
}
