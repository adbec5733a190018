// Package cert implements the certificate authority collaborator named in
// spec.md §6: issuance and verification of the attestations that bind a
// node's public key to a subject name, plus the ECDH keyring the asymmetric
// primitives in gcrypto are built on (generalized from keychain/router.go's
// RouterKeychain).
package cert

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Certificate is a public-key attestation: "IssuerPublicKey vouches that
// PublicKey belongs to Subject". It is immutable once issued (spec.md §3).
type Certificate struct {
	// Subject is the human-readable identity the certificate attests to,
	// typically a node name.
	Subject string

	// PublicKey is the attested public key.
	PublicKey *btcec.PublicKey

	// IssuerPublicKey is the public key of the certificate authority that
	// signed this attestation.
	IssuerPublicKey *btcec.PublicKey

	// Signature is the issuer's signature over (PublicKey, Subject).
	Signature *ecdsa.Signature
}

// signedDigest is the canonical, deterministic message a Certificate's
// signature commits to.
func signedDigest(subject string, pub *btcec.PublicKey) [32]byte {
	h := sha256.New()
	h.Write(pub.SerializeCompressed())
	h.Write([]byte(subject))

	var digest [32]byte
	copy(digest[:], h.Sum(nil))

	return digest
}

// Verify returns true iff the issuer's signature over (public_key, subject)
// is valid, per spec.md §3's Certificate invariant.
func (c *Certificate) Verify() bool {
	if c == nil || c.Signature == nil || c.PublicKey == nil ||
		c.IssuerPublicKey == nil {

		return false
	}

	digest := signedDigest(c.Subject, c.PublicKey)

	return c.Signature.Verify(digest[:], c.IssuerPublicKey)
}

// Authority is a certificate issuer: the "certificate authority" external
// collaborator of spec.md §6, kept intentionally minimal (no revocation, no
// chains) since the spec only requires single-level issuer verification.
type Authority struct {
	privKey *btcec.PrivateKey
}

// NewAuthority constructs an Authority from a freshly generated keypair.
func NewAuthority() (*Authority, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate authority key: %w", err)
	}

	return &Authority{privKey: priv}, nil
}

// PublicKey returns the authority's public key, against which issued
// certificates verify.
func (a *Authority) PublicKey() *btcec.PublicKey {
	return a.privKey.PubKey()
}

// Issue attests that pub belongs to subject.
func (a *Authority) Issue(subject string,
	pub *btcec.PublicKey) *Certificate {

	digest := signedDigest(subject, pub)
	sig := ecdsa.Sign(a.privKey, digest[:])

	return &Certificate{
		Subject:         subject,
		PublicKey:       pub,
		IssuerPublicKey: a.PublicKey(),
		Signature:       sig,
	}
}
