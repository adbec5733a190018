package transport

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
)

type eventType int

const (
	peerOnlineEvent eventType = iota
	peerOfflineEvent
)

// String provides string representations of peer activity events.
func (e eventType) String() string {
	switch e {
	case peerOnlineEvent:
		return "peer_online"

	case peerOfflineEvent:
		return "peer_offline"
	}

	return "unknown"
}

// peerEvent is a timestamped connectivity event observed for a peer.
type peerEvent struct {
	timestamp time.Time
	eventType eventType
}

// PeerActivityLog tracks a single peer's connect/disconnect history so a
// node can answer "how much of the last hour was this peer reachable".
// SimNetwork.PeerUptime reads it back; the gossip engine's fanOut does not
// consult it.
type PeerActivityLog struct {
	peerName string
	peerKey  *btcec.PublicKey

	events []*peerEvent

	// now is supplied as an external function to enable deterministic
	// unit tests.
	now func() time.Time

	firstSeen time.Time
	removedAt time.Time
}

// NewPeerActivityLog creates an activity log for peerName with firstSeen
// set to now().
func NewPeerActivityLog(peerName string, peerKey *btcec.PublicKey,
	now func() time.Time) *PeerActivityLog {

	return &PeerActivityLog{
		peerName:  peerName,
		peerKey:   peerKey,
		now:       now,
		firstSeen: now(),
	}
}

// Remove marks the peer as permanently removed (e.g. AddPeer's record
// replaced or the connection torn down for good).
func (l *PeerActivityLog) Remove() {
	l.removedAt = l.now()
}

// Record appends a connect/disconnect event with the current timestamp.
// Events recorded after Remove are ignored.
func (l *PeerActivityLog) Record(online bool) {
	if !l.removedAt.IsZero() {
		return
	}

	eventType := peerOfflineEvent
	if online {
		eventType = peerOnlineEvent
	}

	l.events = append(l.events, &peerEvent{
		timestamp: l.now(),
		eventType: eventType,
	})

	log.Debugf("peer %s recording activity event: %v", l.peerName, eventType)
}

// onlinePeriod represents a span of time a peer was reachable.
type onlinePeriod struct {
	start, end time.Time
}

// onlinePeriods reconstructs the set of online spans from the recorded
// event log. The log is expected ordered by ascending timestamp and may
// contain repeated consecutive online or offline events.
func (l *PeerActivityLog) onlinePeriods() []*onlinePeriod {
	if len(l.events) == 0 {
		return nil
	}

	var (
		previous *peerEvent
		periods  []*onlinePeriod
	)

	for _, event := range l.events {
		switch event.eventType {
		case peerOnlineEvent:
			if previous == nil {
				previous = event
				break
			}

			if previous.eventType == peerOfflineEvent {
				previous = event
			}

		case peerOfflineEvent:
			if previous == nil {
				previous = event
				break
			}

			if previous.eventType == peerOnlineEvent {
				periods = append(periods, &onlinePeriod{
					start: previous.timestamp,
					end:   event.timestamp,
				})

				previous = event
			}
		}
	}

	if previous.eventType == peerOfflineEvent {
		return periods
	}

	final := &onlinePeriod{start: previous.timestamp, end: l.removedAt}
	if final.end.IsZero() {
		final.end = l.now()
	}

	return append(periods, final)
}

// Uptime sums recorded online time over [start, end].
func (l *PeerActivityLog) Uptime(start, end time.Time) (time.Duration, error) {
	if end.Before(start) {
		return 0, fmt.Errorf("end time: %v before start time: %v", end, start)
	}
	if end.IsZero() {
		return 0, fmt.Errorf("zero end time")
	}

	var uptime time.Duration

	for _, p := range l.onlinePeriods() {
		if p.end.Before(start) {
			continue
		}
		if p.start.After(end) {
			break
		}

		if p.start.Before(start) {
			p.start = start
		}
		if p.end.After(end) {
			p.end = end
		}

		uptime += p.end.Sub(p.start)
	}

	return uptime, nil
}
