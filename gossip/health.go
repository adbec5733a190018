package gossip

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sweetgossip/sweetgossip/healthcheck"
)

// healthy tracks whether this node currently believes its payment channel
// backend can mint and settle invoices. Conditions are only issued while
// set (spec.md's SUPPLEMENTED FEATURES: health-gated condition issuance).
// Defaults to healthy so a Node never needs a monitor wired up to operate.
func (n *Node) isHealthy() bool {
	return atomic.LoadInt32(&n.healthy) == 1
}

// SetHealthy updates the node's health flag directly, for tests and for the
// check function built by NewHealthMonitor.
func (n *Node) SetHealthy(healthy bool) {
	var v int32
	if healthy {
		v = 1
	}
	atomic.StoreInt32(&n.healthy, v)
}

// NewHealthMonitor builds a healthcheck.Monitor that polls this node's
// configured PaymentChannel and flips the node unhealthy/healthy as the
// channel's own Healthy() reports failure/recovery. Interval/timeout/backoff
// and attempts mirror healthcheck.Observation's teacher-inherited knobs;
// callers that don't need liveness gating simply never construct one, and
// the node stays healthy by default.
func NewHealthMonitor(n *Node, interval, timeout,
	backoff time.Duration, attempts int) *healthcheck.Monitor {

	check := func() error {
		if n.cfg.PaymentChannel.Healthy() {
			n.SetHealthy(true)
			return nil
		}

		n.SetHealthy(false)
		return fmt.Errorf("payment channel backend unhealthy")
	}

	observation := healthcheck.NewObservation(
		"payment-channel", check, interval, timeout, backoff, attempts,
	)

	return healthcheck.NewMonitor(&healthcheck.Config{
		Checks: []*healthcheck.Observation{observation},
		Shutdown: func(format string, params ...interface{}) {
			log.Warnf("%s: "+format, append([]interface{}{n.cfg.Name}, params...)...)
		},
	})
}
