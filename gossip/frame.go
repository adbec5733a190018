// Package gossip is the core protocol engine: the frame model and signing
// (this file), the preimage ledger (ledger.go), the broadcast engine
// (broadcast.go), the reply engine (reply.go), the requester pay-and-decrypt
// loop (pay.go), and the Node that wires them together (node.go).
package gossip

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/sweetgossip/sweetgossip/cert"
	"github.com/sweetgossip/sweetgossip/gcrypto"
	"github.com/sweetgossip/sweetgossip/gpayment"
	"github.com/sweetgossip/sweetgossip/gpow"
	"github.com/sweetgossip/sweetgossip/onion"
	"github.com/sweetgossip/sweetgossip/preimage"
)

// RoutingPaymentInstruction is a relay's advertised demand attached to a
// broadcast: account, amount, public key (spec.md §3, GLOSSARY). Immutable
// after creation.
type RoutingPaymentInstruction struct {
	Account   gpayment.Account
	Amount    uint64
	PublicKey *btcec.PublicKey
}

func (i RoutingPaymentInstruction) canonicalBytes() []byte {
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], i.Amount)

	out := make([]byte, 0, 4+len(i.Account)+8+33)
	out = appendLenPrefixed(out, i.Account)
	out = append(out, amt[:]...)
	out = append(out, i.PublicKey.SerializeCompressed()...)

	return out
}

func parseRoutingPaymentInstruction(data []byte) (RoutingPaymentInstruction, []byte, error) {
	account, rest, err := readLenPrefixed(data)
	if err != nil {
		return RoutingPaymentInstruction{}, nil, fmt.Errorf(
			"parse routing instruction account: %w", err)
	}

	if len(rest) < 8+33 {
		return RoutingPaymentInstruction{}, nil, fmt.Errorf(
			"parse routing instruction: truncated")
	}

	amount := binary.BigEndian.Uint64(rest[:8])
	pub, err := btcec.ParsePubKey(rest[8:41])
	if err != nil {
		return RoutingPaymentInstruction{}, nil, fmt.Errorf(
			"parse routing instruction pubkey: %w", err)
	}

	return RoutingPaymentInstruction{
		Account:   gpayment.Account(account),
		Amount:    amount,
		PublicKey: pub,
	}, rest[41:], nil
}

// appendLenPrefixed appends a 4-byte big-endian length followed by b.
func appendLenPrefixed(out, b []byte) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	out = append(out, l[:]...)
	return append(out, b...)
}

// readLenPrefixed reads one length-prefixed chunk off the front of data,
// returning it and the remainder.
func readLenPrefixed(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("truncated length prefix")
	}

	l := binary.BigEndian.Uint32(data[:4])
	data = data[4:]

	if uint32(len(data)) < l {
		return nil, nil, fmt.Errorf("truncated payload")
	}

	return data[:l], data[l:], nil
}

func encodeRoutingList(list []RoutingPaymentInstruction) []byte {
	var out []byte
	out = appendLenPrefixed(nil, binary.BigEndian.AppendUint32(nil, uint32(len(list))))
	for _, inst := range list {
		out = appendLenPrefixed(out, inst.canonicalBytes())
	}

	return out
}

func decodeRoutingList(data []byte) ([]RoutingPaymentInstruction, error) {
	countBytes, rest, err := readLenPrefixed(data)
	if err != nil {
		return nil, fmt.Errorf("decode routing list count: %w", err)
	}
	if len(countBytes) != 4 {
		return nil, fmt.Errorf("decode routing list: bad count encoding")
	}
	count := binary.BigEndian.Uint32(countBytes)

	list := make([]RoutingPaymentInstruction, 0, count)
	for i := uint32(0); i < count; i++ {
		chunk, remainder, err := readLenPrefixed(rest)
		if err != nil {
			return nil, fmt.Errorf("decode routing list entry %d: %w", i, err)
		}

		inst, trailing, err := parseRoutingPaymentInstruction(chunk)
		if err != nil {
			return nil, err
		}
		if len(trailing) != 0 {
			return nil, fmt.Errorf("decode routing list entry %d: trailing bytes", i)
		}

		list = append(list, inst)
		rest = remainder
	}

	return list, nil
}

// copyRoutingList returns a fresh copy of list, never aliasing the caller's
// backing array (spec.md §9 Open Question 2: implementations MUST copy
// before appending).
func copyRoutingList(list []RoutingPaymentInstruction) []RoutingPaymentInstruction {
	out := make([]RoutingPaymentInstruction, len(list))
	copy(out, list)
	return out
}

// RequestPayload is the unsigned body a requester originates (spec.md §3).
type RequestPayload struct {
	ID                uuid.UUID
	Topic             []byte
	SenderCertificate *cert.Certificate
}

const (
	reqIDType    tlv.Type = 0
	reqTopicType tlv.Type = 1
	reqCertType  tlv.Type = 2
)

func (r *RequestPayload) Fields() []tlv.Record {
	certBytes, _ := r.SenderCertificate.CanonicalBytes()

	return []tlv.Record{
		gcrypto.UUIDRecord(reqIDType, &r.ID),
		gcrypto.BytesRecord(reqTopicType, &r.Topic),
		gcrypto.CanonicalRecord(reqCertType, &certBytes, func(b []byte) error {
			parsed, err := cert.ParseCertificateBytes(b)
			if err != nil {
				return err
			}
			r.SenderCertificate = parsed
			return nil
		}),
	}
}

// SignedRequestPayload pairs a RequestPayload with its sender's detached
// signature (spec.md §9's Signed<T> = (T, Signature) design note).
type SignedRequestPayload struct {
	Payload   RequestPayload
	Signature *ecdsa.Signature
}

// SignRequest signs payload under priv, returning the signed wrapper.
func SignRequest(priv *btcec.PrivateKey,
	payload RequestPayload) (*SignedRequestPayload, error) {

	sig, err := gcrypto.SignObject(priv, &payload)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	return &SignedRequestPayload{Payload: payload, Signature: sig}, nil
}

// Verify checks (iii)+(iv) of §4.1's ResponseFrame.verify(): the embedded
// sender certificate is valid and the sender signature verifies under it.
func (s *SignedRequestPayload) Verify() bool {
	if s == nil || s.Payload.SenderCertificate == nil {
		return false
	}
	if !s.Payload.SenderCertificate.Verify() {
		return false
	}

	return gcrypto.VerifyObject(
		&s.Payload, s.Signature, s.Payload.SenderCertificate.PublicKey,
	)
}

func encodeSignedRequest(s *SignedRequestPayload) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("encode signed request: nil request")
	}

	payloadBytes, err := gcrypto.EncodeCanonical(&s.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode signed request payload: %w", err)
	}

	out := appendLenPrefixed(nil, payloadBytes)
	out = appendLenPrefixed(out, s.Signature.Serialize())

	return out, nil
}

func decodeSignedRequest(data []byte) (*SignedRequestPayload, error) {
	payloadBytes, rest, err := readLenPrefixed(data)
	if err != nil {
		return nil, fmt.Errorf("decode signed request payload: %w", err)
	}

	sigBytes, _, err := readLenPrefixed(rest)
	if err != nil {
		return nil, fmt.Errorf("decode signed request signature: %w", err)
	}

	var payload RequestPayload
	if err := gcrypto.DecodeCanonical(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("decode request payload: %w", err)
	}

	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return nil, fmt.Errorf("decode request signature: %w", err)
	}

	return &SignedRequestPayload{Payload: payload, Signature: sig}, nil
}

// AskForBroadcastFrame offers a peer the chance to issue broadcast
// conditions for a fresh ask_id (spec.md §3, §4.4).
type AskForBroadcastFrame struct {
	AskID   uuid.UUID
	Request *SignedRequestPayload
}

// POWBroadcastConditionsFrame is the reply to an AskForBroadcastFrame: a
// validity window, a proof-of-work target, and the issuer's own routing
// price (spec.md §3).
type POWBroadcastConditionsFrame struct {
	AskID       uuid.UUID
	ValidTill   time.Time
	Work        gpow.WorkRequest
	Instruction RoutingPaymentInstruction
}

// BroadcastPayload is the accumulating body that grows one onion layer and
// one RoutingPaymentInstruction per relay hop traversed (spec.md §3).
type BroadcastPayload struct {
	Request       *SignedRequestPayload
	BackwardOnion onion.Route
	RoutingList   []RoutingPaymentInstruction
}

const (
	bcastRequestType tlv.Type = 0
	bcastOnionType   tlv.Type = 1
	bcastRoutingType tlv.Type = 2
)

func (b *BroadcastPayload) Fields() []tlv.Record {
	requestBytes, _ := encodeSignedRequest(b.Request)
	onionBytes := b.BackwardOnion.Bytes()
	routingBytes := encodeRoutingList(b.RoutingList)

	return []tlv.Record{
		gcrypto.CanonicalRecord(bcastRequestType, &requestBytes, func(data []byte) error {
			req, err := decodeSignedRequest(data)
			if err != nil {
				return err
			}
			b.Request = req
			return nil
		}),
		gcrypto.CanonicalRecord(bcastOnionType, &onionBytes, func(data []byte) error {
			b.BackwardOnion = onion.FromBytes(data)
			return nil
		}),
		gcrypto.CanonicalRecord(bcastRoutingType, &routingBytes, func(data []byte) error {
			list, err := decodeRoutingList(data)
			if err != nil {
				return err
			}
			b.RoutingList = list
			return nil
		}),
	}
}

// POWBroadcastFrame carries a solved proof of work over its BroadcastPayload
// (spec.md §3, §4.4).
type POWBroadcastFrame struct {
	AskID   uuid.UUID
	Payload *BroadcastPayload
	Proof   gpow.ProofOfWork
}

// PaymentCryptoInstruction is one hop's hash-locked payment instruction: the
// preimage it must be paid against, encrypted so only that hop can read it
// (spec.md §3, §4.3).
type PaymentCryptoInstruction struct {
	Account           gpayment.Account
	Amount            uint64
	EncryptedPreimage []byte
	PaymentHash       preimage.Hash
}

func (p PaymentCryptoInstruction) canonicalBytes() []byte {
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], p.Amount)

	out := appendLenPrefixed(nil, p.Account)
	out = append(out, amt[:]...)
	out = appendLenPrefixed(out, p.EncryptedPreimage)
	out = append(out, p.PaymentHash[:]...)

	return out
}

func parsePaymentCryptoInstruction(data []byte) (PaymentCryptoInstruction, []byte, error) {
	account, rest, err := readLenPrefixed(data)
	if err != nil {
		return PaymentCryptoInstruction{}, nil, err
	}

	if len(rest) < 8 {
		return PaymentCryptoInstruction{}, nil, fmt.Errorf("truncated amount")
	}
	amount := binary.BigEndian.Uint64(rest[:8])
	rest = rest[8:]

	encPreimage, rest, err := readLenPrefixed(rest)
	if err != nil {
		return PaymentCryptoInstruction{}, nil, err
	}

	if len(rest) < preimage.Size {
		return PaymentCryptoInstruction{}, nil, fmt.Errorf("truncated payment hash")
	}

	var hash preimage.Hash
	copy(hash[:], rest[:preimage.Size])

	return PaymentCryptoInstruction{
		Account:           gpayment.Account(account),
		Amount:            amount,
		EncryptedPreimage: encPreimage,
		PaymentHash:       hash,
	}, rest[preimage.Size:], nil
}

func encodeInstructionList(list []PaymentCryptoInstruction) []byte {
	out := appendLenPrefixed(nil, binary.BigEndian.AppendUint32(nil, uint32(len(list))))
	for _, inst := range list {
		out = appendLenPrefixed(out, inst.canonicalBytes())
	}

	return out
}

func decodeInstructionList(data []byte) ([]PaymentCryptoInstruction, error) {
	countBytes, rest, err := readLenPrefixed(data)
	if err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(countBytes)

	list := make([]PaymentCryptoInstruction, 0, count)
	for i := uint32(0); i < count; i++ {
		chunk, remainder, err := readLenPrefixed(rest)
		if err != nil {
			return nil, err
		}

		inst, trailing, err := parsePaymentCryptoInstruction(chunk)
		if err != nil {
			return nil, err
		}
		if len(trailing) != 0 {
			return nil, fmt.Errorf("decode instruction list: trailing bytes")
		}

		list = append(list, inst)
		rest = remainder
	}

	return list, nil
}

func encodeInvoice(inv gpayment.Invoice) []byte {
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], inv.Amount)

	var validTill [8]byte
	binary.BigEndian.PutUint64(validTill[:], uint64(inv.ValidTill.UnixNano()))

	out := appendLenPrefixed(nil, inv.Account)
	out = append(out, amt[:]...)
	out = append(out, inv.PaymentHash[:]...)
	out = append(out, validTill[:]...)

	return out
}

func decodeInvoice(data []byte) (gpayment.Invoice, []byte, error) {
	account, rest, err := readLenPrefixed(data)
	if err != nil {
		return gpayment.Invoice{}, nil, err
	}

	if len(rest) < 8+preimage.Size+8 {
		return gpayment.Invoice{}, nil, fmt.Errorf("truncated invoice")
	}

	amount := binary.BigEndian.Uint64(rest[:8])
	rest = rest[8:]

	var hash preimage.Hash
	copy(hash[:], rest[:preimage.Size])
	rest = rest[preimage.Size:]

	validTillNano := binary.BigEndian.Uint64(rest[:8])
	rest = rest[8:]

	return gpayment.Invoice{
		Account:     gpayment.Account(account),
		Amount:      amount,
		PaymentHash: hash,
		ValidTill:   time.Unix(0, int64(validTillNano)),
	}, rest, nil
}

// ReplyPayload is the replier's signed response body (spec.md §3, §4.5).
type ReplyPayload struct {
	Request          *SignedRequestPayload
	Instructions     []PaymentCryptoInstruction
	EncryptedMessage []byte
	ReplierInvoice   gpayment.Invoice
}

const (
	replyRequestType tlv.Type = 0
	replyInstrType   tlv.Type = 1
	replyMsgType     tlv.Type = 2
	replyInvoiceType tlv.Type = 3
)

func (r *ReplyPayload) Fields() []tlv.Record {
	requestBytes, _ := encodeSignedRequest(r.Request)
	instrBytes := encodeInstructionList(r.Instructions)
	invoiceBytes := encodeInvoice(r.ReplierInvoice)

	return []tlv.Record{
		gcrypto.CanonicalRecord(replyRequestType, &requestBytes, func(data []byte) error {
			req, err := decodeSignedRequest(data)
			if err != nil {
				return err
			}
			r.Request = req
			return nil
		}),
		gcrypto.CanonicalRecord(replyInstrType, &instrBytes, func(data []byte) error {
			list, err := decodeInstructionList(data)
			if err != nil {
				return err
			}
			r.Instructions = list
			return nil
		}),
		gcrypto.BytesRecord(replyMsgType, &r.EncryptedMessage),
		gcrypto.CanonicalRecord(replyInvoiceType, &invoiceBytes, func(data []byte) error {
			inv, trailing, err := decodeInvoice(data)
			if err != nil {
				return err
			}
			if len(trailing) != 0 {
				return fmt.Errorf("decode reply invoice: trailing bytes")
			}
			r.ReplierInvoice = inv
			return nil
		}),
	}
}

// SignedReplyPayload pairs a ReplyPayload with the replier's signature.
type SignedReplyPayload struct {
	Payload   ReplyPayload
	Signature *ecdsa.Signature
}

// SignReply signs payload under the replier's priv.
func SignReply(priv *btcec.PrivateKey,
	payload ReplyPayload) (*SignedReplyPayload, error) {

	sig, err := gcrypto.SignObject(priv, &payload)
	if err != nil {
		return nil, fmt.Errorf("sign reply: %w", err)
	}

	return &SignedReplyPayload{Payload: payload, Signature: sig}, nil
}

// ResponseFrame is a reply in flight along the reverse onion path (spec.md
// §3).
type ResponseFrame struct {
	ReplierCertificate *cert.Certificate
	Reply              *SignedReplyPayload
	ForwardOnion       onion.Route
	Invoices           []gpayment.Invoice
}

// Verify implements spec.md §4.1's ResponseFrame.verify(): (i) replier
// certificate valid, (ii) reply-payload signature verifies under it, (iii)
// embedded request's sender certificate is valid, (iv) sender signature
// verifies.
func (f *ResponseFrame) Verify() bool {
	if f.ReplierCertificate == nil || !f.ReplierCertificate.Verify() {
		return false
	}

	if !gcrypto.VerifyObject(
		&f.Reply.Payload, f.Reply.Signature, f.ReplierCertificate.PublicKey,
	) {
		return false
	}

	return f.Reply.Payload.Request.Verify()
}

// InvoicesAreCoherentWithSignedReplyPayload implements spec.md §8 invariant
// 2: the multiset {(account, amount, payment_hash)} over Invoices equals the
// same multiset over Instructions.
func (f *ResponseFrame) InvoicesAreCoherentWithSignedReplyPayload() bool {
	if len(f.Invoices) != len(f.Reply.Payload.Instructions) {
		return false
	}

	type triple struct {
		account string
		amount  uint64
		hash    preimage.Hash
	}

	counts := make(map[triple]int, len(f.Invoices))
	for _, inv := range f.Invoices {
		counts[triple{inv.Account.String(), inv.Amount, inv.PaymentHash}]++
	}
	for _, instr := range f.Reply.Payload.Instructions {
		t := triple{instr.Account.String(), instr.Amount, instr.PaymentHash}
		counts[t]--
	}

	for _, c := range counts {
		if c != 0 {
			return false
		}
	}

	return true
}

// Offer summarizes one replier's collected response for the requester's
// get_offers (spec.md §4.6).
type Offer struct {
	ReplierCertificate *cert.Certificate
	TotalNetworkPrice  uint64
	ReplierPrice       uint64
}

// Wire framing for Message, used by any out-of-process transport (see
// transport/tcp.go). Each frame is a one-byte type tag followed by the
// frame's length-prefixed encoding; in-process transports (transport.SimNetwork)
// never touch this, passing Go values directly.
const (
	wireTagAskForBroadcast        byte = 1
	wireTagPOWBroadcastConditions byte = 2
	wireTagPOWBroadcast           byte = 3
	wireTagResponse               byte = 4
)

// EncodeMessage serializes msg for transmission over a byte-oriented
// transport, tagging it with its concrete frame type.
func EncodeMessage(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *AskForBroadcastFrame:
		body, err := encodeSignedRequest(m.Request)
		if err != nil {
			return nil, fmt.Errorf("encode ask-for-broadcast: %w", err)
		}

		out := []byte{wireTagAskForBroadcast}
		out = append(out, m.AskID[:]...)
		return append(out, body...), nil

	case *POWBroadcastConditionsFrame:
		out := []byte{wireTagPOWBroadcastConditions}
		out = append(out, m.AskID[:]...)

		var validTill [8]byte
		binary.BigEndian.PutUint64(validTill[:], uint64(m.ValidTill.UnixNano()))
		out = append(out, validTill[:]...)

		out = appendLenPrefixed(out, []byte(m.Work.Scheme))

		var target [4]byte
		binary.BigEndian.PutUint32(target[:], uint32(m.Work.Target))
		out = append(out, target[:]...)

		out = appendLenPrefixed(out, m.Instruction.canonicalBytes())

		return out, nil

	case *POWBroadcastFrame:
		requestBytes, err := encodeSignedRequest(m.Payload.Request)
		if err != nil {
			return nil, fmt.Errorf("encode pow-broadcast payload: %w", err)
		}

		payloadBytes := appendLenPrefixed(nil, requestBytes)
		payloadBytes = appendLenPrefixed(payloadBytes, m.Payload.BackwardOnion.Bytes())
		payloadBytes = appendLenPrefixed(payloadBytes, encodeRoutingList(m.Payload.RoutingList))

		out := []byte{wireTagPOWBroadcast}
		out = append(out, m.AskID[:]...)
		out = appendLenPrefixed(out, payloadBytes)
		out = appendLenPrefixed(out, []byte(m.Proof.Scheme))

		var target [4]byte
		binary.BigEndian.PutUint32(target[:], uint32(m.Proof.Target))
		out = append(out, target[:]...)

		var nonce [8]byte
		binary.BigEndian.PutUint64(nonce[:], m.Proof.Nonce)
		out = append(out, nonce[:]...)

		return out, nil

	case *ResponseFrame:
		certBytes, err := m.ReplierCertificate.CanonicalBytes()
		if err != nil {
			return nil, fmt.Errorf("encode response certificate: %w", err)
		}

		replyPayloadBytes, err := gcrypto.EncodeCanonical(&m.Reply.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode response reply payload: %w", err)
		}

		out := []byte{wireTagResponse}
		out = appendLenPrefixed(out, certBytes)
		out = appendLenPrefixed(out, replyPayloadBytes)
		out = appendLenPrefixed(out, m.Reply.Signature.Serialize())
		out = appendLenPrefixed(out, m.ForwardOnion.Bytes())

		out = appendLenPrefixed(out, binary.BigEndian.AppendUint32(nil, uint32(len(m.Invoices))))
		for _, inv := range m.Invoices {
			out = appendLenPrefixed(out, encodeInvoice(inv))
		}

		return out, nil

	default:
		return nil, fmt.Errorf("encode message: unknown frame type %T", msg)
	}
}

// DecodeMessage reverses EncodeMessage.
func DecodeMessage(data []byte) (Message, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("decode message: empty frame")
	}
	tag, data := data[0], data[1:]

	switch tag {
	case wireTagAskForBroadcast:
		if len(data) < 16 {
			return nil, fmt.Errorf("decode ask-for-broadcast: truncated")
		}
		var askID uuid.UUID
		copy(askID[:], data[:16])

		req, err := decodeSignedRequest(data[16:])
		if err != nil {
			return nil, fmt.Errorf("decode ask-for-broadcast: %w", err)
		}

		return &AskForBroadcastFrame{AskID: askID, Request: req}, nil

	case wireTagPOWBroadcastConditions:
		if len(data) < 16+8 {
			return nil, fmt.Errorf("decode broadcast conditions: truncated")
		}
		var askID uuid.UUID
		copy(askID[:], data[:16])
		data = data[16:]

		validTillNano := binary.BigEndian.Uint64(data[:8])
		data = data[8:]

		scheme, data, err := readLenPrefixed(data)
		if err != nil {
			return nil, fmt.Errorf("decode broadcast conditions scheme: %w", err)
		}

		if len(data) < 4 {
			return nil, fmt.Errorf("decode broadcast conditions: truncated target")
		}
		target := binary.BigEndian.Uint32(data[:4])
		data = data[4:]

		instrBytes, _, err := readLenPrefixed(data)
		if err != nil {
			return nil, fmt.Errorf("decode broadcast conditions instruction: %w", err)
		}
		instr, trailing, err := parseRoutingPaymentInstruction(instrBytes)
		if err != nil {
			return nil, fmt.Errorf("decode broadcast conditions instruction: %w", err)
		}
		if len(trailing) != 0 {
			return nil, fmt.Errorf("decode broadcast conditions: trailing instruction bytes")
		}

		return &POWBroadcastConditionsFrame{
			AskID:     askID,
			ValidTill: time.Unix(0, int64(validTillNano)),
			Work: gpow.WorkRequest{
				Scheme: string(scheme),
				Target: gpow.Target(target),
			},
			Instruction: instr,
		}, nil

	case wireTagPOWBroadcast:
		if len(data) < 16 {
			return nil, fmt.Errorf("decode pow-broadcast: truncated")
		}
		var askID uuid.UUID
		copy(askID[:], data[:16])
		data = data[16:]

		payloadBytes, data, err := readLenPrefixed(data)
		if err != nil {
			return nil, fmt.Errorf("decode pow-broadcast payload: %w", err)
		}

		var payload BroadcastPayload
		requestBytes, rest, err := readLenPrefixed(payloadBytes)
		if err != nil {
			return nil, fmt.Errorf("decode pow-broadcast payload request: %w", err)
		}
		onionBytes, rest, err := readLenPrefixed(rest)
		if err != nil {
			return nil, fmt.Errorf("decode pow-broadcast payload onion: %w", err)
		}
		routingBytes, _, err := readLenPrefixed(rest)
		if err != nil {
			return nil, fmt.Errorf("decode pow-broadcast payload routing: %w", err)
		}

		payload.Request, err = decodeSignedRequest(requestBytes)
		if err != nil {
			return nil, fmt.Errorf("decode pow-broadcast payload request: %w", err)
		}
		payload.BackwardOnion = onion.FromBytes(onionBytes)
		payload.RoutingList, err = decodeRoutingList(routingBytes)
		if err != nil {
			return nil, fmt.Errorf("decode pow-broadcast payload routing: %w", err)
		}

		scheme, data, err := readLenPrefixed(data)
		if err != nil {
			return nil, fmt.Errorf("decode pow-broadcast proof scheme: %w", err)
		}

		if len(data) < 4+8 {
			return nil, fmt.Errorf("decode pow-broadcast: truncated proof")
		}
		target := binary.BigEndian.Uint32(data[:4])
		nonce := binary.BigEndian.Uint64(data[4:12])

		return &POWBroadcastFrame{
			AskID:   askID,
			Payload: &payload,
			Proof: gpow.ProofOfWork{
				Scheme: string(scheme),
				Target: gpow.Target(target),
				Nonce:  nonce,
			},
		}, nil

	case wireTagResponse:
		certBytes, data, err := readLenPrefixed(data)
		if err != nil {
			return nil, fmt.Errorf("decode response certificate: %w", err)
		}
		replyPayloadBytes, data, err := readLenPrefixed(data)
		if err != nil {
			return nil, fmt.Errorf("decode response reply payload: %w", err)
		}
		sigBytes, data, err := readLenPrefixed(data)
		if err != nil {
			return nil, fmt.Errorf("decode response signature: %w", err)
		}
		onionBytes, data, err := readLenPrefixed(data)
		if err != nil {
			return nil, fmt.Errorf("decode response onion: %w", err)
		}
		countBytes, data, err := readLenPrefixed(data)
		if err != nil {
			return nil, fmt.Errorf("decode response invoice count: %w", err)
		}
		if len(countBytes) != 4 {
			return nil, fmt.Errorf("decode response: bad invoice count encoding")
		}
		count := binary.BigEndian.Uint32(countBytes)

		replierCert, err := cert.ParseCertificateBytes(certBytes)
		if err != nil {
			return nil, fmt.Errorf("decode response certificate: %w", err)
		}

		var replyPayload ReplyPayload
		if err := gcrypto.DecodeCanonical(replyPayloadBytes, &replyPayload); err != nil {
			return nil, fmt.Errorf("decode response reply payload: %w", err)
		}

		sig, err := ecdsa.ParseDERSignature(sigBytes)
		if err != nil {
			return nil, fmt.Errorf("decode response signature: %w", err)
		}

		invoices := make([]gpayment.Invoice, 0, count)
		for i := uint32(0); i < count; i++ {
			var invBytes []byte
			invBytes, data, err = readLenPrefixed(data)
			if err != nil {
				return nil, fmt.Errorf("decode response invoice %d: %w", i, err)
			}

			inv, trailing, err := decodeInvoice(invBytes)
			if err != nil {
				return nil, fmt.Errorf("decode response invoice %d: %w", i, err)
			}
			if len(trailing) != 0 {
				return nil, fmt.Errorf("decode response invoice %d: trailing bytes", i)
			}

			invoices = append(invoices, inv)
		}

		return &ResponseFrame{
			ReplierCertificate: replierCert,
			Reply: &SignedReplyPayload{
				Payload:   replyPayload,
				Signature: sig,
			},
			ForwardOnion: onion.FromBytes(onionBytes),
			Invoices:     invoices,
		}, nil

	default:
		return nil, fmt.Errorf("decode message: unknown tag %d", tag)
	}
}
