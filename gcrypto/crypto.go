// Package gcrypto implements the cryptographic-primitives collaborator
// named in spec.md §6: signing/verification over the canonical encoding
// (codec.go), asymmetric and symmetric authenticated encryption, and
// payment-hash computation. None of this is itself part of the core
// protocol state machine; gossip/ depends on it the way the spec treats
// crypto as an external module.
package gcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/sweetgossip/sweetgossip/cert"
	"github.com/sweetgossip/sweetgossip/preimage"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	asymmetricHKDFInfo = "sweetgossip-asymmetric-object"
	ephemeralKeyLen    = 33
	nonceLen           = chacha20poly1305.NonceSize
)

// SignObject computes a detached signature over obj's canonical encoding,
// per spec.md §4.1.
func SignObject(priv *btcec.PrivateKey, obj Encodable) (*ecdsa.Signature, error) {
	digest, err := canonicalDigest(obj)
	if err != nil {
		return nil, fmt.Errorf("sign object: %w", err)
	}

	return ecdsa.Sign(priv, digest[:]), nil
}

// VerifyObject checks a detached signature over obj's canonical encoding.
func VerifyObject(obj Encodable, sig *ecdsa.Signature,
	pub *btcec.PublicKey) bool {

	if sig == nil || pub == nil {
		return false
	}

	digest, err := canonicalDigest(obj)
	if err != nil {
		return false
	}

	return sig.Verify(digest[:], pub)
}

func canonicalDigest(obj Encodable) ([32]byte, error) {
	encoded, err := EncodeCanonical(obj)
	if err != nil {
		return [32]byte{}, err
	}

	return sha256.Sum256(encoded), nil
}

// deriveAEADKey expands an ECDH shared secret into a chacha20poly1305 key.
func deriveAEADKey(shared [32]byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)

	reader := hkdf.New(sha256.New, shared[:], nil, []byte(asymmetricHKDFInfo))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive aead key: %w", err)
	}

	return key, nil
}

// EncryptObject asymmetrically encrypts plaintext under pub: an ephemeral
// keypair is generated, ECDH'd with pub, and the resulting shared secret
// (after HKDF expansion) seals plaintext with chacha20poly1305. The
// ephemeral public key and nonce are prefixed onto the returned ciphertext
// so DecryptObject can recover them.
func EncryptObject(plaintext []byte, pub *btcec.PublicKey) ([]byte, error) {
	ephemeral, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}

	shared := cert.ECDH(ephemeral, pub)

	key, err := deriveAEADKey(shared)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, ephemeralKeyLen+nonceLen+len(sealed))
	out = append(out, ephemeral.PubKey().SerializeCompressed()...)
	out = append(out, nonce...)
	out = append(out, sealed...)

	return out, nil
}

// DecryptObject reverses EncryptObject using keyring's private key.
func DecryptObject(ciphertext []byte, keyring cert.ECDH) ([]byte, error) {
	if len(ciphertext) < ephemeralKeyLen+nonceLen {
		return nil, fmt.Errorf("decrypt object: ciphertext too short")
	}

	ephemeralPub, err := btcec.ParsePubKey(ciphertext[:ephemeralKeyLen])
	if err != nil {
		return nil, fmt.Errorf("parse ephemeral key: %w", err)
	}

	shared, err := keyring.ECDH(ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}

	key, err := deriveAEADKey(shared)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	nonce := ciphertext[ephemeralKeyLen : ephemeralKeyLen+nonceLen]
	sealed := ciphertext[ephemeralKeyLen+nonceLen:]

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt object: %w", err)
	}

	return plaintext, nil
}

// SymmetricEncrypt authenticated-encrypts plaintext under key, one onion
// reply layer's worth of wrapping (spec.md §4.5).
func SymmetricEncrypt(key preimage.Preimage, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)

	return append(nonce, sealed...), nil
}

// SymmetricDecrypt reverses SymmetricEncrypt, peeling one reply layer.
func SymmetricDecrypt(key preimage.Preimage, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < nonceLen {
		return nil, fmt.Errorf("symmetric decrypt: ciphertext too short")
	}

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	nonce := ciphertext[:nonceLen]
	sealed := ciphertext[nonceLen:]

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("symmetric decrypt: %w", err)
	}

	return plaintext, nil
}

// GenerateSymmetricKey draws a fresh CSPRNG symmetric key, used both as a
// hash-lock preimage and a reply symmetric-layer key (spec.md §4.3).
func GenerateSymmetricKey() (preimage.Preimage, error) {
	return preimage.NewPreimage()
}

// ComputePaymentHash hashes a preimage into the payment hash that commits
// an invoice.
func ComputePaymentHash(p preimage.Preimage) preimage.Hash {
	return p.Hash()
}
