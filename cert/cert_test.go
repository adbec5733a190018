package cert

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestIssuedCertificateVerifies(t *testing.T) {
	t.Parallel()

	authority, err := NewAuthority()
	require.NoError(t, err)

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	c := authority.Issue("relay-1", priv.PubKey())
	require.True(t, c.Verify())
	require.Equal(t, "relay-1", c.Subject)
	require.True(t, authority.PublicKey().IsEqual(c.IssuerPublicKey))
}

func TestCertificateFailsUnderWrongAuthority(t *testing.T) {
	t.Parallel()

	authority, err := NewAuthority()
	require.NoError(t, err)
	other, err := NewAuthority()
	require.NoError(t, err)

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	c := authority.Issue("relay-1", priv.PubKey())
	c.IssuerPublicKey = other.PublicKey()

	require.False(t, c.Verify())
}

func TestCertificateFailsIfSubjectTampered(t *testing.T) {
	t.Parallel()

	authority, err := NewAuthority()
	require.NoError(t, err)

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	c := authority.Issue("relay-1", priv.PubKey())
	c.Subject = "relay-2"

	require.False(t, c.Verify())
}

func TestNilCertificateDoesNotVerify(t *testing.T) {
	t.Parallel()

	var c *Certificate
	require.False(t, c.Verify())
}
