package task

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContextHash computes the drift-detection digest binding a task ID to its
// originating request. It is a pure function: recomputing it for the same
// inputs always yields the same value.
func ContextHash(originalRequest, taskID string) string {
	sum := sha256.Sum256([]byte(originalRequest + taskID))
	return hex.EncodeToString(sum[:])
}
