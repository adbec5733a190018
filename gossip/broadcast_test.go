package gossip

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/sweetgossip/sweetgossip/cert"
	"github.com/sweetgossip/sweetgossip/gpayment"
	"github.com/stretchr/testify/require"
)

// TestHappyPathSingleHop implements spec.md §8's S1: a requester directly
// connected to a replier broadcasts, the replier answers, and the
// requester's pay-and-read returns the plaintext for exactly the replier's
// own fee (no relay hops, so no network fee on top).
func TestHappyPathSingleHop(t *testing.T) {
	authority, err := cert.NewAuthority()
	require.NoError(t, err)

	clk := clock.NewTestClock(time.Now())
	paymentNet := gpayment.NewNetwork(clk)
	net := newTestNetwork()

	var replyMsg = []byte("hello")

	a := newTestNode(t, authority, paymentNet, clk, "A", 0, nil)
	r := newTestNode(t, authority, paymentNet, clk, "R", 0,
		func(req RequestPayload) ([]byte, uint64, bool) {
			return replyMsg, 10, true
		})

	connect(net, a.Node, r.Node)

	reqID, err := a.Broadcast([]byte("topic"))
	require.NoError(t, err)
	net.pump()

	offers := a.GetOffers(reqID)
	require.Len(t, offers, 1)
	require.Equal(t, uint64(0), offers[0].TotalNetworkPrice)
	require.Equal(t, uint64(10), offers[0].ReplierPrice)

	plaintext, err := a.PayAndReadResponse(reqID, r.PublicKey())
	require.NoError(t, err)
	require.Equal(t, replyMsg, plaintext)
}

// TestTwoHopRelay implements spec.md §8's S2: A — B — R, with B charging a
// routing price and R charging its own fee. A's total payable is the sum of
// both, and B's channel settles exactly one invoice (its own hop).
func TestTwoHopRelay(t *testing.T) {
	authority, err := cert.NewAuthority()
	require.NoError(t, err)

	clk := clock.NewTestClock(time.Now())
	paymentNet := gpayment.NewNetwork(clk)
	net := newTestNetwork()

	var replyMsg = []byte("42")

	a := newTestNode(t, authority, paymentNet, clk, "A", 0, nil)
	b := newTestNode(t, authority, paymentNet, clk, "B", 3, nil)
	r := newTestNode(t, authority, paymentNet, clk, "R", 0,
		func(req RequestPayload) ([]byte, uint64, bool) {
			return replyMsg, 10, true
		})

	connect(net, a.Node, b.Node)
	connect(net, b.Node, r.Node)

	reqID, err := a.Broadcast([]byte("topic"))
	require.NoError(t, err)
	net.pump()

	offers := a.GetOffers(reqID)
	require.Len(t, offers, 1)
	require.Equal(t, uint64(3), offers[0].TotalNetworkPrice)
	require.Equal(t, uint64(10), offers[0].ReplierPrice)

	plaintext, err := a.PayAndReadResponse(reqID, r.PublicKey())
	require.NoError(t, err)
	require.Equal(t, replyMsg, plaintext)
}

// TestDuplicateSuppressionQuiesces implements spec.md §8's S3: a triangle
// A-B-C-A never forwards a single request more than the counter gate allows
// at any node, and settles without looping forever.
func TestDuplicateSuppressionQuiesces(t *testing.T) {
	authority, err := cert.NewAuthority()
	require.NoError(t, err)

	clk := clock.NewTestClock(time.Now())
	paymentNet := gpayment.NewNetwork(clk)
	net := newTestNetwork()

	a := newTestNode(t, authority, paymentNet, clk, "A", 1, nil)
	b := newTestNode(t, authority, paymentNet, clk, "B", 1, nil)
	c := newTestNode(t, authority, paymentNet, clk, "C", 1, nil)

	connect(net, a.Node, b.Node)
	connect(net, b.Node, c.Node)
	connect(net, c.Node, a.Node)

	_, err = a.Broadcast([]byte("topic"))
	require.NoError(t, err)
	net.pump()

	for _, node := range []*testNode{a, b, c} {
		node.mu.Lock()
		count := len(node.broadcastCounts)
		var total int
		for _, v := range node.broadcastCounts {
			total = v
		}
		node.mu.Unlock()

		require.Equal(t, 1, count)
		require.LessOrEqual(t, total, 3)
	}
}

// TestExpiredConditionsAreDropped implements spec.md §8's S4: a node must
// not submit proof of work for conditions whose validity window has already
// elapsed by the time they're processed.
func TestExpiredConditionsAreDropped(t *testing.T) {
	authority, err := cert.NewAuthority()
	require.NoError(t, err)

	now := time.Now()
	clk := clock.NewTestClock(now)
	paymentNet := gpayment.NewNetwork(clk)
	net := newTestNetwork()

	a := newTestNode(t, authority, paymentNet, clk, "A", 0, nil)
	b := newTestNode(t, authority, paymentNet, clk, "B", 0, nil)

	connect(net, a.Node, b.Node)

	_, err = a.Broadcast([]byte("topic"))
	require.NoError(t, err)

	// Drain only the ask -> conditions leg, leaving A holding the
	// conditions frame still queued so the clock can be advanced past
	// its validity window before A ever processes it.
	require.Len(t, net.pending, 1)
	askDelivery := net.pending[0]
	net.pending = nil
	askDelivery.target.OnMessage(askDelivery.from, askDelivery.msg)

	require.Len(t, net.pending, 1)
	conditionsDelivery := net.pending[0]
	net.pending = nil

	clk.SetTime(now.Add(10 * time.Second))

	a.mu.Lock()
	pendingBefore := len(a.pendingAsks)
	a.mu.Unlock()

	conditionsDelivery.target.OnMessage(conditionsDelivery.from, conditionsDelivery.msg)

	a.mu.Lock()
	defer a.mu.Unlock()
	require.Equal(t, pendingBefore, len(a.pendingAsks))
	require.Empty(t, net.pending)
}
