package gossip

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/sweetgossip/sweetgossip/cert"
	"github.com/sweetgossip/sweetgossip/gpayment"
	"github.com/stretchr/testify/require"
)

// TestPaymentFailureFallsBackToOtherRoute implements spec.md §8's S5: the
// requester has two candidate routes to the same replier, tries the
// cheaper one first, and falls back to the other once the cheap route's
// relay rejects payment.
func TestPaymentFailureFallsBackToOtherRoute(t *testing.T) {
	authority, err := cert.NewAuthority()
	require.NoError(t, err)

	clk := clock.NewTestClock(time.Now())
	paymentNet := gpayment.NewNetwork(clk)
	net := newTestNetwork()

	var replyMsg = []byte("paid")

	a := newTestNode(t, authority, paymentNet, clk, "A", 0, nil)
	cheapRelay := newTestNode(t, authority, paymentNet, clk, "cheap-relay", 2, nil)
	pricierRelay := newTestNode(t, authority, paymentNet, clk, "pricier-relay", 5, nil)
	r := newTestNode(t, authority, paymentNet, clk, "R", 0,
		func(req RequestPayload) ([]byte, uint64, bool) {
			return replyMsg, 10, true
		})

	connect(net, a.Node, cheapRelay.Node)
	connect(net, a.Node, pricierRelay.Node)
	connect(net, cheapRelay.Node, r.Node)
	connect(net, pricierRelay.Node, r.Node)

	// The cheap relay's backend is the one that fails payment, forcing
	// fallback to the pricier route.
	cheapRelay.channel.RejectAllPayments(true)

	reqID, err := a.Broadcast([]byte("topic"))
	require.NoError(t, err)
	net.pump()

	// Both candidate routes answer for the same replier, so get_offers
	// reports one offer (keyed by replier), backed by two collected
	// response frames under the hood.
	offers := a.GetOffers(reqID)
	require.Len(t, offers, 1)

	plaintext, err := a.PayAndReadResponse(reqID, r.PublicKey())
	require.NoError(t, err)
	require.Equal(t, replyMsg, plaintext)
}

// TestPreimageReuseAcrossSharedFirstHop implements spec.md §8's S6: two
// candidate routes share a first hop and the replier's own hop, and a hop
// paid during a failed attempt is reused (not re-paid) when a later attempt
// needs the same hop.
func TestPreimageReuseAcrossSharedFirstHop(t *testing.T) {
	authority, err := cert.NewAuthority()
	require.NoError(t, err)

	clk := clock.NewTestClock(time.Now())
	paymentNet := gpayment.NewNetwork(clk)
	net := newTestNetwork()

	var replyMsg = []byte("shared hop")

	a := newTestNode(t, authority, paymentNet, clk, "A", 0, nil)
	z := newTestNode(t, authority, paymentNet, clk, "Z", 4, nil)
	w1 := newTestNode(t, authority, paymentNet, clk, "W1", 3, nil)
	w2 := newTestNode(t, authority, paymentNet, clk, "W2", 6, nil)
	r := newTestNode(t, authority, paymentNet, clk, "R", 0,
		func(req RequestPayload) ([]byte, uint64, bool) {
			return replyMsg, 10, true
		})

	connect(net, a.Node, z.Node)
	connect(net, z.Node, w1.Node)
	connect(net, z.Node, w2.Node)
	connect(net, w1.Node, r.Node)
	connect(net, w2.Node, r.Node)

	// The route through W1 is cheaper but W1 itself rejects payment.
	// Invoices are paid in frame order (R, W1, Z), so that candidate
	// fails after R's hop is already paid and before Z is tried; the W2
	// route must still succeed, reusing R's already-settled invoice
	// (both routes carry the same R hop hash) rather than paying it twice.
	w1.channel.RejectAllPayments(true)

	reqID, err := a.Broadcast([]byte("topic"))
	require.NoError(t, err)
	net.pump()

	offers := a.GetOffers(reqID)
	require.Len(t, offers, 1)

	plaintext, err := a.PayAndReadResponse(reqID, r.PublicKey())
	require.NoError(t, err)
	require.Equal(t, replyMsg, plaintext)
}
