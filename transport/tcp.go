package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/NebulousLabs/go-upnp"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btclog"
	"github.com/jackpal/gateway"
	natpmp "github.com/jackpal/go-nat-pmp"
	"github.com/sweetgossip/sweetgossip/gossip"
	"golang.org/x/time/rate"
)

// acceptRateLimit caps how often this network will complete an inbound
// handshake, so a peer that keeps reconnecting can't burn handshake/ECDH
// work indefinitely; it can still be dialed again once the limiter refills.
const (
	acceptRateLimit = 10 // connections per second
	acceptBurst     = 20
)

// log is this package's sub-logger, wired up by UseLogger.
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by TCPNetwork.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// frameMaxSize bounds a single wire frame, rejecting anything a misbehaving
// or malicious peer sends that would otherwise force an unbounded read.
const frameMaxSize = 1 << 20

// TCPNetwork is a real point-to-point Network: it listens on one TCP
// address shared by its registered endpoints, and Connect dials the peer and performs a
// one-message handshake exchanging public keys and names before handing
// each side a live gossip.Peer. Best-effort NAT traversal (UPnP, then
// NAT-PMP) punches the listen port through on networks behind a home
// router, mirroring the "we may not have a public IP" reality of a gossip
// relay run outside a data center.
type TCPNetwork struct {
	mu       sync.Mutex
	nodes    map[string]*tcpNode
	listener net.Listener

	advertiseAddr string

	acceptLimiter *rate.Limiter
}

type tcpNode struct {
	endpoint Endpoint
}

// NewTCPNetwork starts listening on listenAddr (host:port, port may be
// "0" to pick an ephemeral one) and attempts to map it on the local
// gateway so remote peers can dial in on advertiseHost. advertiseHost may
// be empty if this node is only ever dialed directly (e.g. from inside
// the same LAN).
func NewTCPNetwork(listenAddr, advertiseHost string) (*TCPNetwork, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	n := &TCPNetwork{
		nodes:         make(map[string]*tcpNode),
		listener:      ln,
		acceptLimiter: rate.NewLimiter(acceptRateLimit, acceptBurst),
	}

	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	n.advertiseAddr = forwardPort(advertiseHost, port)

	go n.acceptLoop()

	return n, nil
}

// AdvertiseAddr returns the address a remote peer should dial to reach
// this network, best-effort NAT-mapped.
func (n *TCPNetwork) AdvertiseAddr() string {
	return n.advertiseAddr
}

// forwardPort tries UPnP first, falling back to NAT-PMP, to map port
// through the local gateway. Failure is logged and swallowed: a node
// behind a NAT that cannot be punched can still dial out and be dialed
// directly on a LAN, it just won't be reachable from the open internet.
func forwardPort(advertiseHost string, port uint16) string {
	if advertiseHost == "" {
		return ""
	}

	addr := fmt.Sprintf("%s:%d", advertiseHost, port)

	igd, err := upnp.Discover()
	if err == nil {
		if err := igd.Forward(port, "sweetgossip"); err == nil {
			if ip, err := igd.ExternalIP(); err == nil {
				return fmt.Sprintf("%s:%d", ip, port)
			}
			return addr
		}
	}
	log.Debugf("upnp discovery/forward failed, falling back to nat-pmp: %v", err)

	gatewayIP, err := gateway.DiscoverGateway()
	if err != nil {
		log.Warnf("no NAT gateway discovered, advertising %s unmapped: %v",
			addr, err)
		return addr
	}

	client := natpmp.NewClient(gatewayIP)
	if _, err := client.AddPortMapping("tcp", int(port), int(port), 3600); err != nil {
		log.Warnf("nat-pmp port mapping failed, advertising %s unmapped: %v",
			addr, err)
		return addr
	}

	external, err := client.GetExternalAddress()
	if err != nil {
		log.Warnf("nat-pmp external address lookup failed: %v", err)
		return addr
	}
	ip := external.ExternalIPAddress

	return fmt.Sprintf("%d.%d.%d.%d:%d", ip[0], ip[1], ip[2], ip[3], port)
}

// Register adds ep under its own name. Inbound connections are attached to
// a registered endpoint (see acceptLoop), so an endpoint must be registered
// before any peer can reach it.
func (n *TCPNetwork) Register(ep Endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nodes[ep.Name()] = &tcpNode{endpoint: ep}
}

// Connect dials addr, completes the handshake, and wires the resulting
// connection as a for the endpoint registered under localName.
func (n *TCPNetwork) Connect(localName, addr string) error {
	n.mu.Lock()
	local, ok := n.nodes[localName]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("connect: unknown local endpoint %q", localName)
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	if err := n.handshakeAndAttach(conn, local.endpoint); err != nil {
		conn.Close()
		return fmt.Errorf("handshake with %s: %w", addr, err)
	}

	return nil
}

func (n *TCPNetwork) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			log.Debugf("tcp accept loop exiting: %v", err)
			return
		}

		if !n.acceptLimiter.Allow() {
			log.Warnf("inbound connection from %s rejected, over accept rate limit",
				conn.RemoteAddr())
			conn.Close()
			continue
		}

		go func() {
			// An inbound connection doesn't say which of our registered
			// endpoints it's for (the handshake names only the remote
			// side); in this implementation each process runs a single
			// gossip node, so whichever registered endpoint the map yields
			// first is used.
			n.mu.Lock()
			var local Endpoint
			for _, node := range n.nodes {
				local = node.endpoint
				break
			}
			n.mu.Unlock()

			if local == nil {
				log.Warnf("inbound connection with no registered endpoint, dropping")
				conn.Close()
				return
			}

			if err := n.handshakeAndAttach(conn, local); err != nil {
				log.Errorf("inbound handshake failed: %v", err)
				conn.Close()
			}
		}()
	}
}

// handshakeAndAttach exchanges (name, public key) with the remote end of
// conn, then registers the result as a peer of local and starts the
// connection's read loop.
func (n *TCPNetwork) handshakeAndAttach(conn net.Conn, local Endpoint) error {
	if err := writeHandshake(conn, local.Name(), local.PublicKey()); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}

	remoteName, remotePub, err := readHandshake(conn)
	if err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}

	peer := &tcpPeer{
		name:   remoteName,
		pubKey: remotePub,
		conn:   conn,
	}
	local.AddPeer(peer)

	go peer.readLoop(local)

	return nil
}

func writeHandshake(conn net.Conn, name string, pub *btcec.PublicKey) error {
	nameBytes := []byte(name)
	pubBytes := pub.SerializeCompressed()

	var buf []byte
	buf = appendUint32Prefixed(buf, nameBytes)
	buf = append(buf, pubBytes...)

	_, err := conn.Write(buf)
	return err
}

func readHandshake(conn net.Conn) (string, *btcec.PublicKey, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return "", nil, err
	}
	nameLen := binary.BigEndian.Uint32(lenBuf[:])
	if nameLen > frameMaxSize {
		return "", nil, fmt.Errorf("handshake name too long")
	}

	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(conn, nameBytes); err != nil {
		return "", nil, err
	}

	pubBytes := make([]byte, 33)
	if _, err := io.ReadFull(conn, pubBytes); err != nil {
		return "", nil, err
	}

	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return "", nil, fmt.Errorf("parse handshake pubkey: %w", err)
	}

	return string(nameBytes), pub, nil
}

func appendUint32Prefixed(out, b []byte) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	out = append(out, l[:]...)
	return append(out, b...)
}

// Close shuts down the listener. Live connections are left to their own
// read loops, which exit once their peer hangs up.
func (n *TCPNetwork) Close() error {
	return n.listener.Close()
}

// tcpPeer is a gossip.Peer backed by a live net.Conn.
type tcpPeer struct {
	name   string
	pubKey *btcec.PublicKey

	writeMu sync.Mutex
	conn    net.Conn
}

func (p *tcpPeer) Name() string                { return p.name }
func (p *tcpPeer) PublicKey() *btcec.PublicKey { return p.pubKey }

// Send serializes msg and writes it to the connection as one
// length-prefixed frame. Concurrent sends are serialized by writeMu so
// frames from different goroutines never interleave.
func (p *tcpPeer) Send(msg gossip.Message) error {
	body, err := gossip.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if len(body) > frameMaxSize {
		return fmt.Errorf("encoded message too large: %d bytes", len(body))
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))

	if _, err := p.conn.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := p.conn.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}

	return nil
}

// readLoop decodes one length-prefixed frame at a time off the
// connection, delivering each into local's single-threaded OnMessage,
// until the connection errors out (typically EOF on peer disconnect).
func (p *tcpPeer) readLoop(local Endpoint) {
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(p.conn, lenBuf[:]); err != nil {
			log.Debugf("%s: connection to %s closed: %v",
				local.Name(), p.name, err)
			return
		}

		frameLen := binary.BigEndian.Uint32(lenBuf[:])
		if frameLen > frameMaxSize {
			log.Errorf("%s: oversized frame from %s, dropping connection",
				local.Name(), p.name)
			return
		}

		body := make([]byte, frameLen)
		if _, err := io.ReadFull(p.conn, body); err != nil {
			log.Debugf("%s: connection to %s closed mid-frame: %v",
				local.Name(), p.name, err)
			return
		}

		msg, err := gossip.DecodeMessage(body)
		if err != nil {
			log.Errorf("%s: decode frame from %s: %v",
				local.Name(), p.name, err)
			continue
		}

		local.OnMessage(p, msg)
	}
}

var _ gossip.Peer = (*tcpPeer)(nil)
