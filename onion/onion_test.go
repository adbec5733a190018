package onion

import (
	"testing"

	"github.com/sweetgossip/sweetgossip/cert"
	"github.com/stretchr/testify/require"
)

func TestEmptyRouteIsEmpty(t *testing.T) {
	t.Parallel()

	r := Empty()
	require.True(t, r.IsEmpty())
	require.Empty(t, r.Bytes())
}

func TestGrowPeelRoundTripsSingleHop(t *testing.T) {
	t.Parallel()

	hopRing, err := cert.GenerateKeyRing()
	require.NoError(t, err)

	grown, err := Empty().Grow(Layer{PeerName: "requester"}, hopRing.PubKey())
	require.NoError(t, err)
	require.False(t, grown.IsEmpty())

	layer, rest, err := grown.Peel(hopRing)
	require.NoError(t, err)
	require.Equal(t, "requester", layer.PeerName)
	require.True(t, rest.IsEmpty())
}

// TestGrowPeelRoundTripsMultiHop builds a three-hop onion the way fanOut
// grows one layer per relay traversed, then peels it the way relayResponse
// unwinds it hop by hop in reverse order.
func TestGrowPeelRoundTripsMultiHop(t *testing.T) {
	t.Parallel()

	hop1, err := cert.GenerateKeyRing()
	require.NoError(t, err)
	hop2, err := cert.GenerateKeyRing()
	require.NoError(t, err)
	hop3, err := cert.GenerateKeyRing()
	require.NoError(t, err)

	route := Empty()

	route, err = route.Grow(Layer{PeerName: "requester"}, hop1.PubKey())
	require.NoError(t, err)
	route, err = route.Grow(Layer{PeerName: "relay-1"}, hop2.PubKey())
	require.NoError(t, err)
	route, err = route.Grow(Layer{PeerName: "relay-2"}, hop3.PubKey())
	require.NoError(t, err)

	// Peeling happens in reverse growth order: the last hop grown is the
	// first to peel, since it's the outermost layer.
	layer, route, err := route.Peel(hop3)
	require.NoError(t, err)
	require.Equal(t, "relay-2", layer.PeerName)

	layer, route, err = route.Peel(hop2)
	require.NoError(t, err)
	require.Equal(t, "relay-1", layer.PeerName)

	layer, route, err = route.Peel(hop1)
	require.NoError(t, err)
	require.Equal(t, "requester", layer.PeerName)
	require.True(t, route.IsEmpty())
}

func TestPeelEmptyRouteFails(t *testing.T) {
	t.Parallel()

	ring, err := cert.GenerateKeyRing()
	require.NoError(t, err)

	_, _, err = Empty().Peel(ring)
	require.Error(t, err)
}

func TestPeelWithWrongKeyFails(t *testing.T) {
	t.Parallel()

	hopRing, err := cert.GenerateKeyRing()
	require.NoError(t, err)

	wrongRing, err := cert.GenerateKeyRing()
	require.NoError(t, err)

	grown, err := Empty().Grow(Layer{PeerName: "requester"}, hopRing.PubKey())
	require.NoError(t, err)

	_, _, err = grown.Peel(wrongRing)
	require.Error(t, err)
}

func TestFromBytesRoundTrips(t *testing.T) {
	t.Parallel()

	hopRing, err := cert.GenerateKeyRing()
	require.NoError(t, err)

	grown, err := Empty().Grow(Layer{PeerName: "requester"}, hopRing.PubKey())
	require.NoError(t, err)

	recovered := FromBytes(grown.Bytes())

	layer, _, err := recovered.Peel(hopRing)
	require.NoError(t, err)
	require.Equal(t, "requester", layer.PeerName)
}
