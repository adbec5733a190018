// Package onion implements the reverse-path onion route of spec.md §4.2: a
// layered asymmetric encryption chain where each layer names the next hop
// and is peelable only by that hop's private key. Modeled on the
// peel-one-layer-at-a-time shape of htlcswitch/hop/iterator.go, but much
// simpler than a sphinx mix packet: there is no fixed packet size or
// per-hop padding, since spec.md's onion only needs to carry a reverse
// peer-name chain, not an outbound payment route.
package onion

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/sweetgossip/sweetgossip/cert"
	"github.com/sweetgossip/sweetgossip/gcrypto"
)

const (
	layerPeerNameType tlv.Type = 0
	layerRestType     tlv.Type = 1
)

// Layer names the next hop on the return path. It is opaque to anyone but
// the hop that peels it off (spec.md §3).
type Layer struct {
	// PeerName is the identity of the next hop on the return path.
	PeerName string
}

// envelope is the (layer, remaining-ciphertext) pair that gets encrypted as
// a unit under the next hop's public key, per spec.md §4.2's grow().
type envelope struct {
	layer Layer
	rest  []byte
}

func (e *envelope) Fields() []tlv.Record {
	return []tlv.Record{
		gcrypto.StringRecord(layerPeerNameType, &e.layer.PeerName),
		gcrypto.BytesRecord(layerRestType, &e.rest),
	}
}

// Route is an opaque onion ciphertext. Empty exactly at the terminus
// (spec.md §3, §4.2).
type Route struct {
	ciphertext []byte
}

// Empty returns a Route with no layers, the starting point for Grow calls
// made by the requester (the innermost/first onion).
func Empty() Route {
	return Route{}
}

// Bytes returns the route's raw ciphertext, for embedding in a larger
// canonical encoding (gossip's BroadcastPayload/ResponseFrame).
func (r Route) Bytes() []byte {
	return r.ciphertext
}

// FromBytes reconstructs a Route from bytes previously returned by Bytes.
func FromBytes(b []byte) Route {
	return Route{ciphertext: b}
}

// IsEmpty is true when no bytes remain, i.e. this node is the requester.
func (r Route) IsEmpty() bool {
	return len(r.ciphertext) == 0
}

// Grow produces a new route whose ciphertext is the asymmetric encryption
// of (layer, r's current ciphertext) under nextHopPubKey. Called by the
// sender of each outbound broadcast (spec.md §4.2).
func (r Route) Grow(layer Layer, nextHopPubKey *btcec.PublicKey) (Route, error) {
	env := envelope{layer: layer, rest: r.ciphertext}

	encoded, err := gcrypto.EncodeCanonical(&env)
	if err != nil {
		return Route{}, fmt.Errorf("encode onion layer: %w", err)
	}

	ciphertext, err := gcrypto.EncryptObject(encoded, nextHopPubKey)
	if err != nil {
		return Route{}, fmt.Errorf("encrypt onion layer: %w", err)
	}

	return Route{ciphertext: ciphertext}, nil
}

// Peel decrypts the outermost envelope with priv, returning the layer and
// the remaining route (which replaces r for the next peel). Called by the
// receiver of each inbound response (spec.md §4.2).
func (r Route) Peel(priv cert.ECDH) (Layer, Route, error) {
	if r.IsEmpty() {
		return Layer{}, Route{}, fmt.Errorf("peel: route is empty")
	}

	plaintext, err := gcrypto.DecryptObject(r.ciphertext, priv)
	if err != nil {
		return Layer{}, Route{}, fmt.Errorf("decrypt onion layer: %w", err)
	}

	var env envelope
	if err := gcrypto.DecodeCanonical(plaintext, &env); err != nil {
		return Layer{}, Route{}, fmt.Errorf("decode onion layer: %w", err)
	}

	return env.layer, Route{ciphertext: env.rest}, nil
}
