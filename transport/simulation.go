package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/queue"
	"github.com/sweetgossip/sweetgossip/gossip"
	"golang.org/x/sync/errgroup"
)

// SimNetwork is an in-process Network: every registered endpoint gets its
// own single-consumer mailbox, drained by one supervised goroutine, so that
// messages are delivered into each node's OnMessage one at a time in send
// order from any one sender (spec.md §5's ordering guarantee), without the
// node itself needing to know anything about goroutines.
type SimNetwork struct {
	mu       sync.Mutex
	nodes    map[string]*simNode
	activity map[string]*PeerActivityLog

	group *errgroup.Group
}

type simNode struct {
	endpoint Endpoint
	mailbox  *queue.ConcurrentQueue[inbound]
}

type inbound struct {
	from gossip.Peer
	msg  gossip.Message
}

// NewSimNetwork constructs an empty simulation network.
func NewSimNetwork() *SimNetwork {
	return &SimNetwork{
		nodes:    make(map[string]*simNode),
		activity: make(map[string]*PeerActivityLog),
		group:    &errgroup.Group{},
	}
}

// Register adds ep to the network and starts its mailbox-draining
// goroutine.
func (s *SimNetwork) Register(ep Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mailbox := queue.NewConcurrentQueue[inbound](50)
	mailbox.Start()

	n := &simNode{endpoint: ep, mailbox: mailbox}
	s.nodes[ep.Name()] = n
	s.activity[ep.Name()] = NewPeerActivityLog(ep.Name(), ep.PublicKey(), time.Now)

	s.group.Go(func() error {
		for item := range mailbox.ChanOut() {
			ep.OnMessage(item.from, item.msg)
		}

		return nil
	})
}

// Connect makes a and b mutual peers: each gets a Peer handle addressing
// the other, and Send on one handle enqueues into the other's mailbox with
// `from` set to the reciprocal handle, so replies route back correctly
// without either node holding a live reference to the other's internals
// (spec.md §9's peer-registry guidance).
func (s *SimNetwork) Connect(a, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	na, ok := s.nodes[a]
	if !ok {
		return fmt.Errorf("connect: unknown endpoint %q", a)
	}
	nb, ok := s.nodes[b]
	if !ok {
		return fmt.Errorf("connect: unknown endpoint %q", b)
	}

	aToB := &peerHandle{name: b, pubKey: nb.endpoint.PublicKey(), target: nb}
	bToA := &peerHandle{name: a, pubKey: na.endpoint.PublicKey(), target: na}
	aToB.reciprocal = bToA
	bToA.reciprocal = aToB

	na.endpoint.AddPeer(aToB)
	nb.endpoint.AddPeer(bToA)

	s.activity[a].Record(true)
	s.activity[b].Record(true)

	return nil
}

// PeerUptime reports how long name's activity log has recorded it online
// over [start, end], the way a relay might weigh a candidate's recent
// reachability before routing a condition through it.
func (s *SimNetwork) PeerUptime(name string, start, end time.Time) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activity[name]
	if !ok {
		return 0, fmt.Errorf("peer uptime: unknown endpoint %q", name)
	}

	return a.Uptime(start, end)
}

// Close stops every mailbox, marks every tracked peer offline, and waits
// for each draining goroutine to exit.
func (s *SimNetwork) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.nodes {
		n.mailbox.Stop()
	}
	for _, a := range s.activity {
		a.Record(false)
		a.Remove()
	}

	return s.group.Wait()
}

// peerHandle is one directed edge of the simulated network: calling Send
// enqueues into target's mailbox, tagged with the reciprocal handle as the
// sender.
type peerHandle struct {
	name       string
	pubKey     *btcec.PublicKey
	target     *simNode
	reciprocal *peerHandle
}

func (h *peerHandle) Name() string                 { return h.name }
func (h *peerHandle) PublicKey() *btcec.PublicKey  { return h.pubKey }
func (h *peerHandle) Send(msg gossip.Message) error {
	h.target.mailbox.ChanIn() <- inbound{from: h.reciprocal, msg: msg}
	return nil
}

var _ gossip.Peer = (*peerHandle)(nil)
