package cert

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestECDHIsSymmetric(t *testing.T) {
	t.Parallel()

	a, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	b, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	secretAB := ECDH(a, b.PubKey())
	secretBA := ECDH(b, a.PubKey())

	require.Equal(t, secretAB, secretBA)
}

func TestKeyRingECDHMatchesStandaloneECDH(t *testing.T) {
	t.Parallel()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	ring := NewKeyRing(priv)

	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	secret, err := ring.ECDH(other.PubKey())
	require.NoError(t, err)

	require.Equal(t, ECDH(priv, other.PubKey()), secret)
	require.True(t, ring.PubKey().IsEqual(priv.PubKey()))
	require.Equal(t, priv, ring.PrivKey())
}

func TestGenerateKeyRingProducesUsableKeyring(t *testing.T) {
	t.Parallel()

	ring, err := GenerateKeyRing()
	require.NoError(t, err)

	other, err := GenerateKeyRing()
	require.NoError(t, err)

	secret, err := ring.ECDH(other.PubKey())
	require.NoError(t, err)

	reciprocal, err := other.ECDH(ring.PubKey())
	require.NoError(t, err)

	require.Equal(t, secret, reciprocal)
}
