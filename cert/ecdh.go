package cert

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ECDH is the interface gcrypto's asymmetric primitives depend on to derive
// a shared secret with a remote public key. Generalized from
// keychain/router.go's SingleKeyECDH (the route-blinding scalar-mult method
// that interface also carried isn't needed here and was dropped).
type ECDH interface {
	// PubKey returns the public key side of this keyring's keypair.
	PubKey() *btcec.PublicKey

	// ECDH performs a scalar multiplication of this keyring's private key
	// with the given public key, returning a 32-byte shared secret.
	ECDH(pub *btcec.PublicKey) ([32]byte, error)
}

// KeyRing is the concrete single-keypair ECDH implementation every node
// owns for its own identity key.
type KeyRing struct {
	priv *btcec.PrivateKey
}

// NewKeyRing wraps a private key in a KeyRing.
func NewKeyRing(priv *btcec.PrivateKey) *KeyRing {
	return &KeyRing{priv: priv}
}

// GenerateKeyRing creates a KeyRing around a freshly generated keypair.
func GenerateKeyRing() (*KeyRing, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}

	return &KeyRing{priv: priv}, nil
}

// PubKey returns the public half of the keyring's keypair.
func (k *KeyRing) PubKey() *btcec.PublicKey {
	return k.priv.PubKey()
}

// ECDH derives a shared secret with pub using the same scalar-multiply +
// SHA-256 construction lnd's keychain package uses for its ECDH keyrings.
func (k *KeyRing) ECDH(pub *btcec.PublicKey) ([32]byte, error) {
	return ECDH(k.priv, pub), nil
}

// PrivKey exposes the underlying private key, needed by gcrypto's signing
// helpers which operate directly on *btcec.PrivateKey.
func (k *KeyRing) PrivKey() *btcec.PrivateKey {
	return k.priv
}

// ECDH performs the scalar multiplication underlying every keyring's ECDH
// method; exported standalone so one-off ephemeral keys (see gcrypto's
// asymmetric object encryption) can use the same construction without
// wrapping themselves in a KeyRing.
func ECDH(priv *btcec.PrivateKey, pub *btcec.PublicKey) [32]byte {
	var (
		point  btcec.JacobianPoint
		result btcec.JacobianPoint
	)

	pub.AsJacobian(&point)

	var scalar btcec.ModNScalar
	scalar.Set(&priv.Key)

	btcec.ScalarMultNonConst(&scalar, &point, &result)
	result.ToAffine()

	xBytes := result.X.Bytes()

	return sha256.Sum256(xBytes[:])
}
