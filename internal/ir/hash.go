package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainDelta  = "loopmerge/delta/v1"
	DomainDigest = "loopmerge/digest/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DeltaID computes the content-addressed ID of a delta.
// Seq is part of the content, so identical deltas at different positions
// of a run get different IDs.
func DeltaID(d Delta) (string, error) {
	canonical, err := MarshalCanonical(d.Canonical())
	if err != nil {
		return "", fmt.Errorf("DeltaID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDelta, canonical), nil
}

// MustDeltaID is like DeltaID but panics on error.
// Use only in tests or when the delta is known to be finite.
func MustDeltaID(d Delta) string {
	id, err := DeltaID(d)
	if err != nil {
		panic(err)
	}
	return id
}

// Digest accumulates a run fingerprint over delta IDs in emission order.
// Two runs with the same input and configuration produce the same digest.
type Digest struct {
	h     hash.Hash
	count int
}

// NewDigest starts an empty digest.
func NewDigest() *Digest {
	h := sha256.New()
	h.Write([]byte(DomainDigest))
	h.Write([]byte{0x00})
	return &Digest{h: h}
}

// Add folds one delta ID into the digest.
func (d *Digest) Add(deltaID string) {
	d.h.Write([]byte(deltaID))
	d.h.Write([]byte{0x00})
	d.count++
}

// Count returns how many IDs were added.
func (d *Digest) Count() int {
	return d.count
}

// Sum returns the hex digest. Sum does not reset the accumulator.
func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
