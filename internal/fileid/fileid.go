// Package fileid derives stable identifiers from file paths.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

const prefix = "file:"

// SourceKey returns a stable key for the given path. The same cleaned path always
// yields the same key.
func SourceKey(path string) string {
	normalized := filepath.Clean(path)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}

// ChunkID returns a name-based (version 5) UUID for chunk ordinal n of source.
// Re-ingesting the same file produces the same IDs, so upserts replace in place.
func ChunkID(source string, n int) string {
	name := SourceKey(source) + "#" + strconv.Itoa(n)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
