// Package preimage defines the fixed-size hash and preimage value types
// shared by the payment-channel and reply-decryption paths. A Preimage is
// both a hash-lock secret and a symmetric onion-layer key (sweetgossip's
// central binding, see gossip/ledger.go); Hash is its commitment.
package preimage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Size is the length in bytes of a Preimage and a Hash.
const Size = 32

// Preimage is a secret value whose hash commits a hash-locked invoice.
type Preimage [Size]byte

// Hash computes the payment hash committed to by p.
func (p Preimage) Hash() Hash {
	return Hash(sha256.Sum256(p[:]))
}

// String returns the hex encoding of the preimage.
func (p Preimage) String() string {
	return hex.EncodeToString(p[:])
}

// Hash is a collision-resistant commitment to a Preimage.
type Hash [Size]byte

// String returns the hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// NewPreimage draws a fresh CSPRNG-sourced preimage. Preimages must never be
// reused across distinct hop tuples (spec.md §4.3).
func NewPreimage() (Preimage, error) {
	var p Preimage
	if _, err := rand.Read(p[:]); err != nil {
		return p, fmt.Errorf("generate preimage: %w", err)
	}

	return p, nil
}
