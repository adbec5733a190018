package gossip

import (
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btclog"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/sweetgossip/sweetgossip/cert"
)

// log is this package's sub-logger, wired up by UseLogger the way every lnd
// package does (see healthcheck/healthcheck.go's log.Warnf calls).
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by Node.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Peer is a handle to a known remote node. Transport implementations
// (transport.Peer) satisfy this so that gossip never depends on how bytes
// actually move between nodes (spec.md §9: "store peers by stable name and
// look up on send, never co-owning peer graphs").
type Peer interface {
	// Name is the stable identity used to address this peer.
	Name() string

	// PublicKey is the peer's onion/signature-verification key.
	PublicKey() *btcec.PublicKey

	// Send dispatches msg to the peer. The concrete transport is
	// responsible for serializing it and delivering it into the remote
	// node's single-threaded OnMessage call (spec.md §5).
	Send(msg Message) error
}

// Message is the tagged-variant interface spec.md §9 describes: each
// concrete frame type dispatched by OnMessage implements it.
type Message interface {
	isMessage()
}

func (*AskForBroadcastFrame) isMessage()        {}
func (*POWBroadcastConditionsFrame) isMessage() {}
func (*POWBroadcastFrame) isMessage()           {}
func (*ResponseFrame) isMessage()               {}

// AcceptTopicFunc is the replier-side policy predicate deciding whether this
// node is willing to relay/answer a given topic (spec.md §4.4).
type AcceptTopicFunc func(topic []byte) bool

// AcceptBroadcastFunc decides, given the fully-formed request payload,
// whether this node replies. A nil []byte return (ok=false) means "forward
// instead of replying" (spec.md §4.4's accept_broadcast).
type AcceptBroadcastFunc func(req RequestPayload) (reply []byte, fee uint64, ok bool)

// Node is the per-node protocol engine: frame model, onion route, preimage
// ledger, broadcast engine, reply engine and requester pay-and-decrypt all
// operate on this type's state. Per spec.md §5, one Node's state is
// single-threaded: every exported entry point that touches node state takes
// mu, giving the "one lock per node" discipline the spec requires of a
// preemptive-runtime implementation.
type Node struct {
	cfg Config

	clock clock.Clock

	acceptTopic     AcceptTopicFunc
	acceptBroadcast AcceptBroadcastFunc

	mu    sync.Mutex
	peers map[string]Peer

	// pendingAsks maps an ask_id we originated to the BroadcastPayload we
	// will transmit once its conditions arrive.
	pendingAsks map[uuid.UUID]*BroadcastPayload

	// issuedConditions maps an ask_id we issued (as the asked peer) to the
	// conditions frame we sent, so we can validate the PoW submission.
	issuedConditions map[uuid.UUID]*POWBroadcastConditionsFrame

	// broadcastCounts tracks, per request id, how many times this node has
	// entered broadcast() for it (spec.md §4.4, §8 invariant 3).
	broadcastCounts map[uuid.UUID]int

	ledger *preimageLedger

	// responses holds, per request id then per replier pubkey, every
	// ResponseFrame this node (as requester) has collected.
	responses map[uuid.UUID]map[string][]*ResponseFrame

	// healthy gates condition issuance; see health.go. Accessed
	// atomically since NewHealthMonitor's check runs outside mu.
	healthy int32
}

// NewNode constructs a Node from cfg. acceptTopic/acceptBroadcast implement
// this node's replier policy; a pure relay-only node can pass a
// acceptBroadcast that always returns ok=false.
func NewNode(cfg Config, clk clock.Clock, acceptTopic AcceptTopicFunc,
	acceptBroadcast AcceptBroadcastFunc) *Node {

	return &Node{
		cfg:              cfg,
		clock:            clk,
		acceptTopic:      acceptTopic,
		acceptBroadcast:  acceptBroadcast,
		peers:            make(map[string]Peer),
		pendingAsks:      make(map[uuid.UUID]*BroadcastPayload),
		issuedConditions: make(map[uuid.UUID]*POWBroadcastConditionsFrame),
		broadcastCounts:  make(map[uuid.UUID]int),
		ledger:           newPreimageLedger(),
		responses:        make(map[uuid.UUID]map[string][]*ResponseFrame),
		healthy:          1,
	}
}

// Name returns this node's announced name.
func (n *Node) Name() string {
	return n.cfg.Name
}

// PublicKey returns this node's public key.
func (n *Node) PublicKey() *btcec.PublicKey {
	return n.cfg.PrivateKey.PubKey()
}

// Certificate returns this node's certificate.
func (n *Node) Certificate() *cert.Certificate {
	return n.cfg.Certificate
}

// AddPeer registers a known peer by its stable name.
func (n *Node) AddPeer(p Peer) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.peers[p.Name()] = p
}

// peersExcept returns every known peer other than the one named except.
func (n *Node) peersExcept(except string) []Peer {
	out := make([]Peer, 0, len(n.peers))
	for name, p := range n.peers {
		if name == except {
			continue
		}
		out = append(out, p)
	}

	return out
}

// OnMessage is the single dispatch point every inbound frame passes
// through, modelled as a tagged variant over the concrete frame types
// (spec.md §9). The transport MUST serialize calls into this method per
// peer-pair and overall per node (spec.md §5's single-threaded event loop).
func (n *Node) OnMessage(from Peer, msg Message) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch m := msg.(type) {
	case *AskForBroadcastFrame:
		n.handleAskForBroadcast(from, m)
	case *POWBroadcastConditionsFrame:
		n.handlePOWBroadcastConditions(from, m)
	case *POWBroadcastFrame:
		n.handlePOWBroadcast(from, m)
	case *ResponseFrame:
		n.handleResponse(m)
	default:
		log.Warnf("%s: dropping unknown message type %T", n.cfg.Name, msg)
	}
}

// emit calls cfg.OnEvent if one is configured, a no-op otherwise.
func (n *Node) emit(kind, topic, detail string) {
	if n.cfg.OnEvent != nil {
		n.cfg.OnEvent(kind, topic, detail)
	}
}

// ResponseFrames is a read accessor over the per-replier response-frame map
// for topicID, returning copies so callers outside the package need not
// reach into Node internals directly.
func (n *Node) ResponseFrames(topicID uuid.UUID) map[string][]*ResponseFrame {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make(map[string][]*ResponseFrame, len(n.responses[topicID]))
	for k, v := range n.responses[topicID] {
		out[k] = append([]*ResponseFrame(nil), v...)
	}

	return out
}
