// Package passageid derives stable storage identifiers for passages that arrive without one.
package passageid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
)

const prefix = "passage:"

// New returns a stable ID for the ordinal-th passage (0-based) of sourceFile.
// The same source and position always yield the same ID, so reloading an
// unchanged file replaces passages instead of duplicating them.
func New(sourceFile string, ordinal int) string {
	normalized := filepath.Clean(sourceFile)
	hash := sha256.Sum256([]byte(normalized + "\x00" + strconv.Itoa(ordinal)))
	return prefix + hex.EncodeToString(hash[:16])
}
