package gcrypto

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/sweetgossip/sweetgossip/cert"
	"github.com/sweetgossip/sweetgossip/preimage"
	"github.com/stretchr/testify/require"
)

// fixedEncodable is a minimal Encodable used to exercise
// SignObject/VerifyObject without pulling in gossip's frame types.
type fixedEncodable struct {
	data []byte
}

func (f *fixedEncodable) Fields() []tlv.Record {
	return []tlv.Record{BytesRecord(0, &f.data)}
}

func TestEncryptDecryptObjectRoundTrips(t *testing.T) {
	t.Parallel()

	ring, err := cert.GenerateKeyRing()
	require.NoError(t, err)

	plaintext := []byte("hello sweetgossip")

	ciphertext, err := EncryptObject(plaintext, ring.PubKey())
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	decrypted, err := DecryptObject(ciphertext, ring)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestDecryptObjectFailsForWrongKey(t *testing.T) {
	t.Parallel()

	ring, err := cert.GenerateKeyRing()
	require.NoError(t, err)

	other, err := cert.GenerateKeyRing()
	require.NoError(t, err)

	ciphertext, err := EncryptObject([]byte("secret"), ring.PubKey())
	require.NoError(t, err)

	_, err = DecryptObject(ciphertext, other)
	require.Error(t, err)
}

func TestSymmetricEncryptDecryptRoundTrips(t *testing.T) {
	t.Parallel()

	key, err := GenerateSymmetricKey()
	require.NoError(t, err)

	plaintext := []byte("onion reply layer")

	ciphertext, err := SymmetricEncrypt(key, plaintext)
	require.NoError(t, err)

	decrypted, err := SymmetricDecrypt(key, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestSymmetricDecryptFailsForWrongKey(t *testing.T) {
	t.Parallel()

	key, err := GenerateSymmetricKey()
	require.NoError(t, err)

	wrongKey, err := GenerateSymmetricKey()
	require.NoError(t, err)

	ciphertext, err := SymmetricEncrypt(key, []byte("payload"))
	require.NoError(t, err)

	_, err = SymmetricDecrypt(wrongKey, ciphertext)
	require.Error(t, err)
}

func TestComputePaymentHashMatchesPreimageHash(t *testing.T) {
	t.Parallel()

	p, err := preimage.NewPreimage()
	require.NoError(t, err)

	require.Equal(t, p.Hash(), ComputePaymentHash(p))
}

func TestSignVerifyObjectRoundTrips(t *testing.T) {
	t.Parallel()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	obj := &fixedEncodable{data: []byte("sign me")}

	sig, err := SignObject(priv, obj)
	require.NoError(t, err)

	require.True(t, VerifyObject(obj, sig, priv.PubKey()))

	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	require.False(t, VerifyObject(obj, sig, other.PubKey()))
}
