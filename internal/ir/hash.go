package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainRevision prefixes revision snapshot hashes.
// The version suffix leaves room for a future algorithm change.
const DomainRevision = "contentgraph/revision/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotHash computes the content hash of a revision snapshot. Two
// snapshots with the same hash describe the same visible state.
func SnapshotHash(snapshot IRObject) (string, error) {
	canonical, err := MarshalCanonical(snapshot)
	if err != nil {
		return "", fmt.Errorf("snapshot hash: %w", err)
	}
	return hashWithDomain(DomainRevision, canonical), nil
}
