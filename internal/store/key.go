package store

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// KeyFor derives a stable session key from a workspace path. The same path
// always yields the same key, so repeated invocations from one workspace
// address the same underlying tmux session. The first 8 hex characters of a
// sha256 are collision-resistant enough for per-machine workspace counts and
// keep tmux session names short.
func KeyFor(workspacePath string) string {
	cleaned := workspacePath
	if cleaned != "" {
		if abs, err := filepath.Abs(cleaned); err == nil {
			cleaned = abs
		}
		cleaned = filepath.Clean(cleaned)
	}
	sum := sha256.Sum256([]byte(cleaned))
	return hex.EncodeToString(sum[:])[:8]
}
