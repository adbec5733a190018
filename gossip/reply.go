package gossip

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/sweetgossip/sweetgossip/cert"
	"github.com/sweetgossip/sweetgossip/gcrypto"
	"github.com/sweetgossip/sweetgossip/gpayment"
	"github.com/sweetgossip/sweetgossip/preimage"
)

// keyRing wraps this node's private key for the cert.ECDH operations onion
// peeling and preimage decryption need.
func (n *Node) keyRing() cert.ECDH {
	return cert.NewKeyRing(n.cfg.PrivateKey)
}

// produceReply implements spec.md §4.5: the replier builds a
// PaymentCryptoInstruction per traversed hop (including itself), wraps the
// reply message in nested encryption, mints its own fee invoice, signs the
// bundle and immediately dispatches it through the normal receive path to
// begin onion peeling.
func (n *Node) produceReply(payload *BroadcastPayload, replyBytes []byte,
	fee uint64) {

	hops := append(copyRoutingList(payload.RoutingList), RoutingPaymentInstruction{
		Account:   n.cfg.PaymentChannel.Account(),
		Amount:    fee,
		PublicKey: n.PublicKey(),
	})
	topicID := payload.Request.Payload.ID.String()

	instructions := make([]PaymentCryptoInstruction, 0, len(hops))
	preimages := make([]preimage.Preimage, 0, len(hops))

	for _, hop := range hops {
		p, err := n.ledger.preimageFor(topicID, hop)
		if err != nil {
			log.Errorf("%s: derive hop preimage: %v", n.cfg.Name, err)
			return
		}
		preimages = append(preimages, p)

		encPreimage, err := gcrypto.EncryptObject(p[:], hop.PublicKey)
		if err != nil {
			log.Errorf("%s: encrypt hop preimage: %v", n.cfg.Name, err)
			return
		}

		instructions = append(instructions, PaymentCryptoInstruction{
			Account:           hop.Account,
			Amount:            hop.Amount,
			EncryptedPreimage: encPreimage,
			PaymentHash:       gcrypto.ComputePaymentHash(p),
		})
	}

	requesterPub := payload.Request.Payload.SenderCertificate.PublicKey

	ciphertext, err := gcrypto.EncryptObject(replyBytes, requesterPub)
	if err != nil {
		log.Errorf("%s: encrypt reply for requester: %v", n.cfg.Name, err)
		return
	}

	// Wrap with one symmetric layer per hop, in hop-list order: outermost
	// is the last hop (this replier), innermost the first hop (spec.md
	// §4.5).
	for _, p := range preimages {
		ciphertext, err = gcrypto.SymmetricEncrypt(p, ciphertext)
		if err != nil {
			log.Errorf("%s: symmetric-wrap reply: %v", n.cfg.Name, err)
			return
		}
	}

	invoice, err := n.cfg.PaymentChannel.CreateInvoice(fee)
	if err != nil {
		log.Errorf("%s: create reply invoice: %v", n.cfg.Name, err)
		return
	}
	n.emit("invoice-created", topicID, invoice.PaymentHash.String())

	signedReply, err := SignReply(n.cfg.PrivateKey, ReplyPayload{
		Request:          payload.Request,
		Instructions:     instructions,
		EncryptedMessage: ciphertext,
		ReplierInvoice:   *invoice,
	})
	if err != nil {
		log.Errorf("%s: sign reply: %v", n.cfg.Name, err)
		return
	}

	response := &ResponseFrame{
		ReplierCertificate: n.cfg.Certificate,
		Reply:              signedReply,
		ForwardOnion:       payload.BackwardOnion,
	}

	n.handleResponse(response)
}

// handleResponse implements spec.md §4.5.1: at the requester, a fully
// peeled frame is recorded; at a relay, one onion layer is peeled, the
// matching payment layer invoiced, and the frame forwarded to the next hop.
func (n *Node) handleResponse(frame *ResponseFrame) {
	if !frame.Verify() {
		log.Tracef("%s: dropping response with invalid signature chain:\n%s",
			n.cfg.Name, spew.Sdump(frame))
		return
	}

	if frame.ForwardOnion.IsEmpty() {
		n.recordResponse(frame)
		return
	}

	n.relayResponse(frame)
}

func (n *Node) recordResponse(frame *ResponseFrame) {
	if !frame.InvoicesAreCoherentWithSignedReplyPayload() {
		log.Tracef("%s: dropping response with incoherent invoices:\n%s",
			n.cfg.Name, spew.Sdump(frame.Invoices, frame.Reply.Payload.Instructions))
		return
	}

	reqID := frame.Reply.Payload.Request.Payload.ID
	replierKey := hex.EncodeToString(
		frame.ReplierCertificate.PublicKey.SerializeCompressed(),
	)

	if n.responses[reqID] == nil {
		n.responses[reqID] = make(map[string][]*ResponseFrame)
	}
	n.responses[reqID][replierKey] = append(
		n.responses[reqID][replierKey], frame,
	)
}

// findRoutePaymentLayer scans instructions for the entry matching both this
// node's account and ourPrice, mirroring find_route_payment_layer(account,
// amount) in the original simulation: a relay must bind to the one
// instruction it actually issued, not just any entry bearing its own account
// (spec.md §4.5.1 step 3).
func (n *Node) findRoutePaymentLayer(instructions []PaymentCryptoInstruction,
	ourPrice uint64) *PaymentCryptoInstruction {

	ourAccount := n.cfg.PaymentChannel.Account()

	for i := range instructions {
		candidate := &instructions[i]
		if bytes.Equal(candidate.Account, ourAccount) &&
			candidate.Amount == ourPrice {

			return candidate
		}
	}

	return nil
}

func (n *Node) relayResponse(frame *ResponseFrame) {
	// A relay's layer carries its routing price; the replier's own layer,
	// peeled first by the replier itself, carries its reply fee.
	ourPrice := n.cfg.PriceAmountForRouting
	if frame.ReplierCertificate.PublicKey.IsEqual(n.PublicKey()) {
		ourPrice = frame.Reply.Payload.ReplierInvoice.Amount
	}

	instr := n.findRoutePaymentLayer(frame.Reply.Payload.Instructions, ourPrice)
	if instr == nil {
		log.Tracef("%s: no matching payment layer in response:\n%s",
			n.cfg.Name, spew.Sdump(frame.Reply.Payload.Instructions))
		return
	}

	layer, rest, err := frame.ForwardOnion.Peel(n.keyRing())
	if err != nil {
		log.Errorf("%s: peel forward onion: %v", n.cfg.Name, err)
		return
	}

	nextPeer, ok := n.peers[layer.PeerName]
	if !ok {
		log.Tracef("%s: onion peer %q unknown", n.cfg.Name, layer.PeerName)
		return
	}

	invoice, err := n.makeInvoice(instr, n.cfg.PaymentChannel.Account())
	if err != nil {
		log.Errorf("%s: make invoice: %v", n.cfg.Name, err)
		return
	}
	n.emit("invoice-created",
		frame.Reply.Payload.Request.Payload.ID.String(),
		invoice.PaymentHash.String())

	forwarded := &ResponseFrame{
		ReplierCertificate: frame.ReplierCertificate,
		Reply:              frame.Reply,
		ForwardOnion:       rest,
		Invoices:           append(append([]gpayment.Invoice(nil), frame.Invoices...), *invoice),
	}

	if err := nextPeer.Send(forwarded); err != nil {
		log.Errorf("%s: forward response: %v", n.cfg.Name, err)
	}
}

// makeInvoice implements spec.md §4.5.1's make_invoice: decrypt the hop's
// preimage, verify it matches the announced payment hash and account, and
// mint a hash-locked invoice against it.
func (n *Node) makeInvoice(instr *PaymentCryptoInstruction,
	ourAccount gpayment.Account) (*gpayment.Invoice, error) {

	plaintext, err := gcrypto.DecryptObject(instr.EncryptedPreimage, n.keyRing())
	if err != nil {
		return nil, fmt.Errorf("decrypt hop preimage: %w", err)
	}
	if len(plaintext) != preimage.Size {
		return nil, fmt.Errorf("%w: unexpected preimage length", newErr(
			ErrPreimageMismatch, "decrypted preimage has wrong size"))
	}

	var p preimage.Preimage
	copy(p[:], plaintext)

	if p.Hash() != instr.PaymentHash || !bytes.Equal(instr.Account, ourAccount) {
		return nil, newErr(ErrPreimageMismatch,
			"preimage hash or account does not match instruction")
	}

	validTill := n.clock.Now().Add(n.cfg.InvoicePaymentTimeout)

	return n.cfg.PaymentChannel.CreateHashLockedInvoice(
		instr.Amount, p, validTill,
	)
}
