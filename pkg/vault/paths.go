// Package vault provides the crash-safe move engine: journaled, fsync-ordered
// relocation of unique files into a two-level sharded vault, plus the startup
// recovery that reconciles interrupted moves and registered orphans.
package vault

import (
	"fmt"
	"path/filepath"
)

// identifierLength is the required length of a vault identifier in hex
// characters, matching the width of a 128-bit fingerprint.
const identifierLength = 32

// shardPrefixLength is the number of leading identifier characters used as
// the shard directory name, giving 256 shards.
const shardPrefixLength = 2

// pathForVault computes the vault path for the specified identifier/suffix
// pair. It returns the full destination path and the shard directory name but
// does not ensure that the shard directory has been created.
func pathForVault(root, identifier, suffix string) (string, string, error) {
	// Validate the identifier length. Identifiers are either full-content
	// fingerprints or random values of the same width.
	if len(identifier) != identifierLength {
		return "", "", fmt.Errorf("invalid vault identifier length: %d", len(identifier))
	}

	// Compute the shard prefix and entry name.
	prefix := identifier[:shardPrefixLength]
	name := identifier[shardPrefixLength:] + suffix

	// Success.
	return filepath.Join(root, prefix, name), prefix, nil
}
