package gossip

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/sweetgossip/sweetgossip/cert"
	"github.com/sweetgossip/sweetgossip/gpayment"
	"github.com/stretchr/testify/require"
)

// testNetwork is a deterministic stand-in for a real transport. A naive
// peer that called target.OnMessage straight from Send would re-enter the
// sending node's own mutex the moment a reply loops back to it within the
// same call stack (every scenario here does: the asked peer answers the
// asker before the asker's own Broadcast call returns), so instead Send
// just queues the delivery and pump drains it breadth-first on the test
// goroutine. This gets the same decoupling transport.SimNetwork's
// goroutine-backed mailboxes give a real node, without needing real
// goroutines for deterministic assertions.
type testNetwork struct {
	pending []delivery
}

type delivery struct {
	target *Node
	from   Peer
	msg    Message
}

func newTestNetwork() *testNetwork {
	return &testNetwork{}
}

func (tn *testNetwork) enqueue(target *Node, from Peer, msg Message) {
	tn.pending = append(tn.pending, delivery{target: target, from: from, msg: msg})
}

// pump delivers every queued message, including ones enqueued while
// handling an earlier one, until the network goes quiet.
func (tn *testNetwork) pump() {
	for len(tn.pending) > 0 {
		next := tn.pending[0]
		tn.pending = tn.pending[1:]
		next.target.OnMessage(next.from, next.msg)
	}
}

// directPeer hands Send off to the owning testNetwork's queue, standing in
// for a real transport the way contractcourt's test mocks stand in for the
// switch.
type directPeer struct {
	net    *testNetwork
	name   string
	pub    *btcec.PublicKey
	target *Node
	self   *directPeer // set once both directions exist
}

func (p *directPeer) Name() string                { return p.name }
func (p *directPeer) PublicKey() *btcec.PublicKey { return p.pub }
func (p *directPeer) Send(msg Message) error {
	p.net.enqueue(p.target, p.self, msg)
	return nil
}

func connect(net *testNetwork, a, b *Node) {
	aToB := &directPeer{net: net, name: b.Name(), pub: b.PublicKey(), target: b}
	bToA := &directPeer{net: net, name: a.Name(), pub: a.PublicKey(), target: a}
	aToB.self = bToA
	bToA.self = aToB

	a.AddPeer(aToB)
	b.AddPeer(bToA)
}

// testNode bundles a Node with the identity and payment channel it was
// built from, for assertions in tests.
type testNode struct {
	*Node
	channel *gpayment.SimulatedChannel
	priv    *btcec.PrivateKey
}

func newTestNode(t *testing.T, authority *cert.Authority,
	net *gpayment.Network, clk clock.Clock, name string,
	routingPrice uint64, acceptBroadcast AcceptBroadcastFunc) *testNode {

	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	channel := net.NewChannel(gpayment.Account(name))

	cfg := Config{
		Name:                             name,
		Certificate:                      authority.Issue(name, priv.PubKey()),
		PrivateKey:                       priv,
		PaymentChannel:                   channel,
		PriceAmountForRouting:            routingPrice,
		BroadcastConditionsTimeout:       5 * time.Second,
		BroadcastConditionsPOWScheme:     "sha256-leading-zero-bits",
		BroadcastConditionsPOWComplexity: 4,
		InvoicePaymentTimeout:            time.Minute,
	}

	node := NewNode(cfg, clk, func([]byte) bool { return true }, acceptBroadcast)
	node.SetHealthy(true)

	return &testNode{Node: node, channel: channel, priv: priv}
}
