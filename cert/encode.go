package cert

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// CanonicalBytes renders c as a flat, deterministic byte string, used by
// gossip's frame model to embed a certificate inside the canonical encoding
// of a larger signed object (RequestPayload, ResponseFrame). The layout is
// fixed-width fields followed by the variable-length subject and signature,
// length-prefixed so ParseCertificateBytes can recover exact boundaries.
func (c *Certificate) CanonicalBytes() ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("canonical bytes: nil certificate")
	}

	sig := c.Signature.Serialize()

	subject := []byte(c.Subject)

	out := make([]byte, 0, 33+33+4+len(subject)+4+len(sig))
	out = append(out, c.PublicKey.SerializeCompressed()...)
	out = append(out, c.IssuerPublicKey.SerializeCompressed()...)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(subject)))
	out = append(out, lenBuf[:]...)
	out = append(out, subject...)

	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(sig)))
	out = append(out, lenBuf[:]...)
	out = append(out, sig...)

	return out, nil
}

// ParseCertificateBytes reverses CanonicalBytes.
func ParseCertificateBytes(data []byte) (*Certificate, error) {
	if len(data) < 33+33+4 {
		return nil, fmt.Errorf("parse certificate: truncated")
	}

	pub, err := btcec.ParsePubKey(data[:33])
	if err != nil {
		return nil, fmt.Errorf("parse certificate pubkey: %w", err)
	}
	issuerPub, err := btcec.ParsePubKey(data[33:66])
	if err != nil {
		return nil, fmt.Errorf("parse certificate issuer pubkey: %w", err)
	}

	rest := data[66:]

	subjectLen := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint32(len(rest)) < subjectLen {
		return nil, fmt.Errorf("parse certificate: truncated subject")
	}
	subject := string(rest[:subjectLen])
	rest = rest[subjectLen:]

	if len(rest) < 4 {
		return nil, fmt.Errorf("parse certificate: truncated sig length")
	}
	sigLen := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint32(len(rest)) < sigLen {
		return nil, fmt.Errorf("parse certificate: truncated signature")
	}

	sig, err := ecdsa.ParseDERSignature(rest[:sigLen])
	if err != nil {
		return nil, fmt.Errorf("parse certificate signature: %w", err)
	}

	return &Certificate{
		Subject:         subject,
		PublicKey:       pub,
		IssuerPublicKey: issuerPub,
		Signature:       sig,
	}, nil
}
