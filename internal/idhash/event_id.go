// Package idhash derives deterministic identifiers for stored records.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeEventID computes a deterministic settlement event_id using SHA256.
// Formula: SHA256(signature|source|outcome)
// Returns hex-encoded hash (64 characters).
//
// A signature has at most one outcome per confirmation source, so a repeated
// insert of the same observation maps to the same id.
func ComputeEventID(signature, source, outcome string) string {
	data := fmt.Sprintf("%s|%s|%s", signature, source, outcome)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
