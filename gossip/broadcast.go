package gossip

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/sweetgossip/sweetgossip/gpow"
	"github.com/sweetgossip/sweetgossip/onion"
)

// Broadcast originates a fresh request for topic, fanning it out to every
// known peer. Returns the request id under which responses will later be
// collected (spec.md §4.4's requester entry point).
func (n *Node) Broadcast(topic []byte) (uuid.UUID, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	req := RequestPayload{
		ID:                uuid.New(),
		Topic:             topic,
		SenderCertificate: n.cfg.Certificate,
	}

	signed, err := SignRequest(n.cfg.PrivateKey, req)
	if err != nil {
		return uuid.Nil, err
	}

	payload := &BroadcastPayload{
		Request:       signed,
		BackwardOnion: onion.Empty(),
		RoutingList:   nil,
	}

	n.fanOut(payload, "")

	return req.ID, nil
}

// fanOut implements spec.md §4.4's Fan-out: for every known peer other than
// originatorPeerName, mint a fresh ask_id, grow the backward onion one layer
// for that peer, and send an AskForBroadcastFrame. basePayload.RoutingList
// is expected to already reflect this node's own instruction when it is
// itself a relay (appended by the caller before invoking fanOut, not here,
// so the append happens exactly once per forwarding decision rather than
// once per peer).
func (n *Node) fanOut(basePayload *BroadcastPayload, originatorPeerName string) {
	reqID := basePayload.Request.Payload.ID
	topic := basePayload.Request.Payload.Topic

	if n.acceptTopic != nil && !n.acceptTopic(topic) {
		log.Tracef("%s: topic refused for request %s, not counted",
			n.cfg.Name, reqID)
		return
	}

	n.broadcastCounts[reqID]++
	if n.broadcastCounts[reqID] > 2 {
		log.Tracef("%s: suppressing duplicate broadcast for request %s",
			n.cfg.Name, reqID)
		n.emit("broadcast-suppressed", reqID.String(), "")
		return
	}

	for _, peer := range n.peersExcept(originatorPeerName) {
		askID := uuid.New()

		grown, err := basePayload.BackwardOnion.Grow(
			onion.Layer{PeerName: n.cfg.Name}, peer.PublicKey(),
		)
		if err != nil {
			log.Errorf("%s: grow onion for %s: %v",
				n.cfg.Name, peer.Name(), err)
			continue
		}

		payload := &BroadcastPayload{
			Request:       basePayload.Request,
			BackwardOnion: grown,
			RoutingList:   copyRoutingList(basePayload.RoutingList),
		}

		n.pendingAsks[askID] = payload

		log.Debugf("%s: asking %s for broadcast, ask=%s",
			n.cfg.Name, peer.Name(), shortID(askID))

		if err := peer.Send(&AskForBroadcastFrame{
			AskID:   askID,
			Request: basePayload.Request,
		}); err != nil {
			log.Errorf("%s: send ask to %s: %v",
				n.cfg.Name, peer.Name(), err)
			continue
		}

		n.emit("broadcast-sent", reqID.String(), peer.Name())
	}
}

// handleAskForBroadcast implements spec.md §4.4's Ask → condition step.
func (n *Node) handleAskForBroadcast(from Peer, ask *AskForBroadcastFrame) {
	if !ask.Request.Verify() {
		log.Tracef("%s: dropping ask %s with invalid request signature:\n%s",
			n.cfg.Name, ask.AskID, spew.Sdump(ask))
		return
	}

	reqID := ask.Request.Payload.ID
	topic := ask.Request.Payload.Topic

	if n.acceptTopic != nil && !n.acceptTopic(topic) {
		log.Tracef("%s: topic refused for ask %s", n.cfg.Name, ask.AskID)
		return
	}
	if n.broadcastCounts[reqID] > 2 {
		log.Tracef("%s: duplicate suppression refuses ask %s",
			n.cfg.Name, ask.AskID)
		return
	}
	if !n.isHealthy() {
		log.Warnf("%s: payment channel unhealthy, refusing ask %s",
			n.cfg.Name, ask.AskID)
		return
	}

	target, err := gpow.PowTargetFromComplexity(
		n.cfg.BroadcastConditionsPOWScheme,
		n.cfg.BroadcastConditionsPOWComplexity,
	)
	if err != nil {
		log.Errorf("%s: pow target: %v", n.cfg.Name, err)
		return
	}

	conditions := &POWBroadcastConditionsFrame{
		AskID:     ask.AskID,
		ValidTill: n.clock.Now().Add(n.cfg.BroadcastConditionsTimeout),
		Work: gpow.WorkRequest{
			Scheme: n.cfg.BroadcastConditionsPOWScheme,
			Target: target,
		},
		Instruction: n.ownRoutingInstruction(),
	}

	n.issuedConditions[ask.AskID] = conditions

	if err := from.Send(conditions); err != nil {
		log.Errorf("%s: send conditions for %s: %v",
			n.cfg.Name, ask.AskID, err)
	}
}

// handlePOWBroadcastConditions implements spec.md §4.4's Condition →
// broadcast step.
func (n *Node) handlePOWBroadcastConditions(from Peer,
	conditions *POWBroadcastConditionsFrame) {

	if n.clock.Now().After(conditions.ValidTill) {
		log.Tracef("%s: conditions for ask %s expired",
			n.cfg.Name, conditions.AskID)
		return
	}

	payload, ok := n.pendingAsks[conditions.AskID]
	if !ok {
		log.Tracef("%s: unknown ask id %s in conditions",
			n.cfg.Name, conditions.AskID)
		return
	}

	n.emit("pow-attempt", conditions.AskID.String(), "")

	proof, err := conditions.Work.ComputeProof(payload)
	if err != nil {
		log.Errorf("%s: compute pow for ask %s: %v",
			n.cfg.Name, conditions.AskID, err)
		return
	}

	if err := from.Send(&POWBroadcastFrame{
		AskID:   conditions.AskID,
		Payload: payload,
		Proof:   proof,
	}); err != nil {
		log.Errorf("%s: send pow broadcast for %s: %v",
			n.cfg.Name, conditions.AskID, err)
	}
}

// handlePOWBroadcast implements spec.md §4.4's Broadcast receipt step.
func (n *Node) handlePOWBroadcast(from Peer, frame *POWBroadcastFrame) {
	conditions, ok := n.issuedConditions[frame.AskID]
	if !ok {
		log.Tracef("%s: unknown ask id %s in pow broadcast",
			n.cfg.Name, frame.AskID)
		return
	}

	if frame.Proof.Scheme != conditions.Work.Scheme ||
		frame.Proof.Target != conditions.Work.Target {

		log.Tracef("%s: pow scheme/target mismatch for ask %s",
			n.cfg.Name, frame.AskID)
		return
	}

	if !frame.Payload.Request.Verify() {
		log.Tracef("%s: dropping pow broadcast %s with invalid request signature:\n%s",
			n.cfg.Name, frame.AskID, spew.Sdump(frame.Payload))
		return
	}

	if !frame.Proof.Validate(frame.Payload) {
		log.Tracef("%s: dropping pow broadcast %s with invalid proof:\n%s",
			n.cfg.Name, frame.AskID, spew.Sdump(frame.Proof))
		return
	}

	delete(n.issuedConditions, frame.AskID)
	n.emit("broadcast-received", frame.Payload.Request.Payload.ID.String(), "")

	var (
		reply      []byte
		fee        uint64
		willAnswer bool
	)
	if n.acceptBroadcast != nil {
		reply, fee, willAnswer = n.acceptBroadcast(frame.Payload.Request.Payload)
	}

	if !willAnswer {
		nextList := append(
			copyRoutingList(frame.Payload.RoutingList),
			n.ownRoutingInstruction(),
		)

		n.fanOut(&BroadcastPayload{
			Request:       frame.Payload.Request,
			BackwardOnion: frame.Payload.BackwardOnion,
			RoutingList:   nextList,
		}, from.Name())

		return
	}

	n.produceReply(frame.Payload, reply, fee)
}

// ownRoutingInstruction is this node's advertised demand for acting as a
// relay hop (spec.md §3's RoutingPaymentInstruction).
func (n *Node) ownRoutingInstruction() RoutingPaymentInstruction {
	return RoutingPaymentInstruction{
		Account:   n.cfg.PaymentChannel.Account(),
		Amount:    n.cfg.PriceAmountForRouting,
		PublicKey: n.PublicKey(),
	}
}
