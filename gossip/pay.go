package gossip

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"github.com/sweetgossip/sweetgossip/fn"
	"github.com/sweetgossip/sweetgossip/gcrypto"
	"github.com/sweetgossip/sweetgossip/preimage"
	"golang.org/x/exp/slices"
)

func replierKeyFor(pub *btcec.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed())
}

// GetOffers implements spec.md §4.6's get_offers: one Offer per replier that
// has responded to topicID, exposing the replier's certificate, the summed
// network (relay-chain) price on the first collected response, and the
// replier's own advertised price.
func (n *Node) GetOffers(topicID uuid.UUID) []Offer {
	n.mu.Lock()
	defer n.mu.Unlock()

	byReplier := n.responses[topicID]

	offers := make([]Offer, 0, len(byReplier))
	for _, frames := range byReplier {
		if len(frames) == 0 {
			continue
		}

		first := frames[0]
		replierAccount := first.Reply.Payload.ReplierInvoice.Account

		// The chain's first invoice is the replier's own hash-locked hop
		// (produceReply always appends the replier as the last hop), so
		// it is excluded here: "network price" means relay-only fees,
		// even though pay_and_read_response pays it along with the rest.
		var networkPrice uint64
		for _, inv := range first.Invoices {
			if bytes.Equal(inv.Account, replierAccount) {
				continue
			}
			networkPrice += inv.Amount
		}

		offers = append(offers, Offer{
			ReplierCertificate: first.ReplierCertificate,
			TotalNetworkPrice:  networkPrice,
			ReplierPrice:       first.Reply.Payload.ReplierInvoice.Amount,
		})
	}

	return offers
}

// candidateFee is the still-unpaid cost of a candidate ResponseFrame,
// excluding hops whose preimage is already known from a prior attempt.
func candidateFee(frame *ResponseFrame,
	known map[preimage.Hash]preimage.Preimage,
	failed map[preimage.Hash]bool) (fee uint64, viable bool) {

	for _, inv := range frame.Invoices {
		if failed[inv.PaymentHash] {
			return 0, false
		}
		if _, ok := known[inv.PaymentHash]; !ok {
			fee += inv.Amount
		}
	}

	return fee, true
}

// PayAndReadResponse implements spec.md §4.6's pay_and_read_response: rank
// the collected ResponseFrames for replierPub by unpaid network fee, pay
// the cheapest with fallback on payment failure, and decrypt the reply once
// every hop on the winning candidate is paid.
func (n *Node) PayAndReadResponse(topicID uuid.UUID,
	replierPub *btcec.PublicKey) ([]byte, error) {

	n.mu.Lock()
	defer n.mu.Unlock()

	candidates := n.responses[topicID][replierKeyFor(replierPub)]
	if len(candidates) == 0 {
		return nil, fmt.Errorf(
			"pay and read response: no responses from replier")
	}

	known := make(map[preimage.Hash]preimage.Preimage)
	failed := make(map[preimage.Hash]bool)

	for {
		best, err := cheapestCandidate(candidates, known, failed).UnwrapOrErr(
			fmt.Errorf("pay and read response: all candidate routes exhausted"))
		if err != nil {
			return nil, err
		}

		if !n.payCandidate(best, known, failed) {
			continue
		}

		plaintext, err := n.decryptCandidate(best, known)
		if err != nil {
			// Per spec.md §9 Open Question 3: if the hop ordering and
			// wrap ordering disagree, authenticated decryption fails and
			// this candidate must be treated as failed, not retried.
			log.Errorf("%s: decrypt candidate: %v", n.cfg.Name, err)

			for _, inv := range best.Invoices {
				failed[inv.PaymentHash] = true
			}

			continue
		}

		return plaintext, nil
	}
}

// rankedCandidate pairs a still-viable ResponseFrame with its remaining
// unpaid fee, so the set of them can be sorted cheapest-first in one pass.
type rankedCandidate struct {
	frame *ResponseFrame
	fee   uint64
}

// cheapestCandidate picks the still-unpaid-cheapest viable route, or
// fn.None if every candidate is either exhausted or has a known-failed hop.
func cheapestCandidate(candidates []*ResponseFrame,
	known map[preimage.Hash]preimage.Preimage,
	failed map[preimage.Hash]bool) fn.Option[*ResponseFrame] {

	ranked := make([]rankedCandidate, 0, len(candidates))
	for _, frame := range candidates {
		fee, viable := candidateFee(frame, known, failed)
		if !viable {
			continue
		}

		ranked = append(ranked, rankedCandidate{frame: frame, fee: fee})
	}

	if len(ranked) == 0 {
		return fn.None[*ResponseFrame]()
	}

	slices.SortFunc(ranked, func(a, b rankedCandidate) bool {
		return a.fee < b.fee
	})

	return fn.Some(ranked[0].frame)
}

// payCandidate attempts to settle every invoice of candidate not already
// known, recording newly revealed preimages into known and any failure into
// failed. Returns true iff every invoice ended up paid.
func (n *Node) payCandidate(candidate *ResponseFrame,
	known map[preimage.Hash]preimage.Preimage,
	failed map[preimage.Hash]bool) bool {

	for i := range candidate.Invoices {
		inv := candidate.Invoices[i]

		if _, ok := known[inv.PaymentHash]; ok {
			continue
		}

		proof, err := n.cfg.PaymentChannel.PayInvoice(&inv)
		if err != nil {
			log.Errorf("%s: pay invoice for hash %s: %v",
				n.cfg.Name, inv.PaymentHash, err)
			failed[inv.PaymentHash] = true
			n.emit("invoice-failed", "", inv.PaymentHash.String())

			return false
		}

		known[inv.PaymentHash] = proof.Preimage
		n.emit("invoice-paid", "", inv.PaymentHash.String())
	}

	return true
}

// decryptCandidate peels candidate's reply message: one symmetric layer per
// invoice in the order they appear on the response frame, then the final
// asymmetric layer under this node's own private key (spec.md §4.6 step 5).
func (n *Node) decryptCandidate(candidate *ResponseFrame,
	known map[preimage.Hash]preimage.Preimage) ([]byte, error) {

	ciphertext := candidate.Reply.Payload.EncryptedMessage

	for _, inv := range candidate.Invoices {
		p, ok := known[inv.PaymentHash]
		if !ok {
			return nil, fmt.Errorf("missing preimage for hash %s",
				inv.PaymentHash)
		}

		plaintext, err := gcrypto.SymmetricDecrypt(p, ciphertext)
		if err != nil {
			return nil, fmt.Errorf("symmetric decrypt layer: %w", err)
		}

		ciphertext = plaintext
	}

	return gcrypto.DecryptObject(ciphertext, n.keyRing())
}
