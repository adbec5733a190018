// Package gpow implements the proof-of-work collaborator named in
// spec.md §6: it bounds broadcast storms (spec.md §1(c)) by requiring a
// relay's proof of work over a BroadcastPayload before the broadcast engine
// will accept a POWBroadcastFrame. No library in the retrieval pack
// implements a PoW scheme (bitcoin's own difficulty-bits machinery in
// btcsuite/btcd/blockchain is full consensus code, an order of magnitude
// heavier than broadcast admission needs), so this is a direct
// SHA-256-leading-zero-bits hashcash construction over stdlib crypto/sha256,
// using kkdai/bstream to count leading zero bits without assuming byte
// alignment.
package gpow

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/kkdai/bstream"
	"github.com/sweetgossip/sweetgossip/gcrypto"
)

// SchemeSHA256LeadingZeroBits is the only scheme this implementation
// speaks; the type exists so conditions/frames can reject a mismatched
// scheme without this package needing to know about every possible one.
const SchemeSHA256LeadingZeroBits = "sha256-leading-zero-bits"

// Target is the minimum number of leading zero bits a valid proof's hash
// must exhibit.
type Target uint32

// PowTargetFromComplexity maps a node's configured PoW complexity into a
// concrete target for the given scheme.
func PowTargetFromComplexity(scheme string, complexity uint32) (Target, error) {
	if scheme != SchemeSHA256LeadingZeroBits {
		return 0, fmt.Errorf("unsupported pow scheme %q", scheme)
	}

	return Target(complexity), nil
}

// WorkRequest is the (scheme, target) pair a node advertises in its
// POWBroadcastConditionsFrame (spec.md §3).
type WorkRequest struct {
	Scheme string
	Target Target
}

// ProofOfWork is a solved nonce that, hashed together with the payload it
// was computed over, exhibits at least Target leading zero bits.
type ProofOfWork struct {
	Scheme string
	Target Target
	Nonce  uint64
}

// ComputeProof blocks until it finds a nonce solving the work request over
// payload. Spec.md §5 notes this has no suspension points inside the
// protocol engine proper; it is the one genuinely blocking external call,
// invoked only by the condition→broadcast step (spec.md §4.4).
func (w WorkRequest) ComputeProof(payload gcrypto.Encodable) (ProofOfWork, error) {
	encoded, err := gcrypto.EncodeCanonical(payload)
	if err != nil {
		return ProofOfWork{}, fmt.Errorf("encode payload for pow: %w", err)
	}

	for nonce := uint64(0); ; nonce++ {
		if leadingZeroBits(hashWithNonce(encoded, nonce)) >= uint32(w.Target) {
			return ProofOfWork{
				Scheme: w.Scheme,
				Target: w.Target,
				Nonce:  nonce,
			}, nil
		}
	}
}

// Validate recomputes the proof's hash over payload and checks that it
// still exhibits the claimed target's leading zero bits.
func (p ProofOfWork) Validate(payload gcrypto.Encodable) bool {
	if p.Scheme != SchemeSHA256LeadingZeroBits {
		return false
	}

	encoded, err := gcrypto.EncodeCanonical(payload)
	if err != nil {
		return false
	}

	return leadingZeroBits(hashWithNonce(encoded, p.Nonce)) >= uint32(p.Target)
}

func hashWithNonce(payload []byte, nonce uint64) []byte {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)

	h := sha256.New()
	h.Write(payload)
	h.Write(nonceBytes[:])

	return h.Sum(nil)
}

// leadingZeroBits counts the number of leading zero bits in h, reading it
// bit-by-bit rather than assuming the target is byte-aligned.
func leadingZeroBits(h []byte) uint32 {
	reader := bstream.NewBStreamReader(h)

	var count uint32
	for {
		bit, err := reader.ReadBit()
		if err != nil {
			return count
		}
		if bit == bstream.One {
			return count
		}

		count++
	}
}
