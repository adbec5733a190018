// Package transport implements the agent transport collaborator named in
// spec.md §6: point-to-point message delivery, logging hooks, and the
// serialization of delivery into each node's single-threaded event loop
// (spec.md §5). This file defines the interfaces; simulation.go provides an
// in-process implementation for tests and the simulation harness.
package transport

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/sweetgossip/sweetgossip/gossip"
)

// Endpoint is anything that can receive dispatched messages, satisfied by
// *gossip.Node. Kept as a narrow interface so transport never imports more
// of gossip than it needs.
type Endpoint interface {
	Name() string
	PublicKey() *btcec.PublicKey
	OnMessage(from gossip.Peer, msg gossip.Message)
	AddPeer(p gossip.Peer)
}

// Network registers endpoints and wires them together as gossip.Peer
// handles, modelled on spec.md §9's "store peers by stable name and look up
// on send" guidance.
type Network interface {
	// Register adds an endpoint to the network under its own name.
	Register(ep Endpoint)

	// Connect makes a and b mutual peers: each is handed a gossip.Peer
	// handle for the other.
	Connect(a, b string) error
}
