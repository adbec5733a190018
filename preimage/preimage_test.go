package preimage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPreimageHashIsDeterministic checks Hash never changes for the same
// preimage value and differs across distinct ones.
func TestPreimageHashIsDeterministic(t *testing.T) {
	t.Parallel()

	p1, err := NewPreimage()
	require.NoError(t, err)

	p2, err := NewPreimage()
	require.NoError(t, err)

	require.NotEqual(t, p1, p2)
	require.Equal(t, p1.Hash(), p1.Hash())
	require.NotEqual(t, p1.Hash(), p2.Hash())
}

func TestPreimageStringLength(t *testing.T) {
	t.Parallel()

	p, err := NewPreimage()
	require.NoError(t, err)

	require.Len(t, p.String(), Size*2)
	require.Len(t, p.Hash().String(), Size*2)
}
