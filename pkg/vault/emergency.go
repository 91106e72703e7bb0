package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// emergencyRecord is the JSON-lines record appended to the emergency log when
// the index store itself is unwritable during a post-link failure. It carries
// the same information as an orphan registry row so that manual recovery is
// possible.
type emergencyRecord struct {
	Time   time.Time `json:"time"`
	Source string    `json:"source"`
	Orphan string    `json:"orphan"`
	Size   uint64    `json:"size"`
	Cause  string    `json:"cause"`
}

// appendEmergencyRecord appends a single record to the emergency log at the
// specified path, creating the log if necessary. The append is flushed to
// persistent storage before returning.
func appendEmergencyRecord(path string, record emergencyRecord) error {
	log, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("unable to open emergency log: %w", err)
	}
	defer log.Close()
	if err := json.NewEncoder(log).Encode(record); err != nil {
		return fmt.Errorf("unable to append emergency record: %w", err)
	}
	if err := log.Sync(); err != nil {
		return fmt.Errorf("unable to sync emergency log: %w", err)
	}
	return nil
}
