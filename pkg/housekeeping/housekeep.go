// Package housekeeping provides bounded maintenance of the recovery tables:
// completed journal rows and recovered orphan rows older than their retention
// windows are pruned so that the two tables don't grow without bound. It runs
// at session close and is purely best-effort; failures are logged, never
// fatal.
package housekeeping

import (
	"time"

	"github.com/vaultgate/vaultgate/pkg/logging"
	"github.com/vaultgate/vaultgate/pkg/store"
)

// Housekeep prunes terminal recovery rows older than the specified retention
// windows from the store.
func Housekeep(st *store.Store, journalRetention, orphanRetention time.Duration, logger *logging.Logger) {
	// Prune completed journal rows.
	if pruned, err := st.JournalPruneCompleted(time.Now().Add(-journalRetention)); err != nil {
		logger.Warnf("unable to prune move journal: %s", err.Error())
	} else if pruned > 0 {
		logger.Debugf("pruned %d completed journal rows", pruned)
	}

	// Prune recovered orphan rows.
	if pruned, err := st.OrphanPruneRecovered(time.Now().Add(-orphanRetention)); err != nil {
		logger.Warnf("unable to prune orphan registry: %s", err.Error())
	} else if pruned > 0 {
		logger.Debugf("pruned %d recovered orphan rows", pruned)
	}
}
