// Package configuration provides the TOML-backed configuration layer for the
// command line front end. Flags take precedence over file values; the file is
// optional.
package configuration

import (
	"fmt"
	"os"
	"time"

	"github.com/vaultgate/vaultgate/pkg/encoding"
)

const (
	// DefaultJournalRetention is the default retention window for completed
	// move journal rows.
	DefaultJournalRetention = 7 * 24 * time.Hour
	// DefaultOrphanRetention is the default retention window for recovered
	// orphan rows.
	DefaultOrphanRetention = 7 * 24 * time.Hour
)

// Duration is a time.Duration that unmarshals from TOML strings in the format
// accepted by time.ParseDuration.
type Duration time.Duration

// UnmarshalText implements the text unmarshalling interface used when loading
// from TOML files.
func (d *Duration) UnmarshalText(textBytes []byte) error {
	parsed, err := time.ParseDuration(string(textBytes))
	if err != nil {
		return fmt.Errorf("unknown duration specification: %s", string(textBytes))
	}
	*d = Duration(parsed)
	return nil
}

// Configuration is the top-level configuration structure.
type Configuration struct {
	// Database is the path of the index database file.
	Database string `toml:"database"`
	// Vault is the vault root directory. An empty vault leaves the system in
	// read-only mode: indices are updated but no file is relocated.
	Vault string `toml:"vault"`
	// HDDMode selects the sequential fringe reader. Databases written in the
	// two reader modes are not interchangeable.
	HDDMode bool `toml:"hdd_mode"`
	// JournalRetention is the retention window for completed journal rows.
	JournalRetention Duration `toml:"journal_retention"`
	// OrphanRetention is the retention window for recovered orphan rows.
	OrphanRetention Duration `toml:"orphan_retention"`
}

// Default returns a configuration with default values.
func Default() *Configuration {
	return &Configuration{
		JournalRetention: Duration(DefaultJournalRetention),
		OrphanRetention:  Duration(DefaultOrphanRetention),
	}
}

// Load loads a TOML-based configuration file from the specified path. If the
// file doesn't exist, a default configuration is returned.
func Load(path string) (*Configuration, error) {
	// Start with defaults.
	result := Default()

	// Attempt loading, treating absence as empty.
	if err := encoding.LoadAndUnmarshalTOML(path, result); err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, err
	}

	// Success.
	return result, nil
}
