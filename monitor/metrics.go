// Package monitor provides ambient observability for a running node:
// prometheus counters and an optional websocket event feed, neither of
// which the protocol engine itself depends on (gossip never imports this
// package; callers feed it events explicitly).
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a registered set of counters tracking broadcast/reply engine
// activity, modeled on the switch/router-level instrumentation lnd exposes.
type Metrics struct {
	BroadcastsSent       prometheus.Counter
	BroadcastsReceived   prometheus.Counter
	BroadcastsSuppressed prometheus.Counter
	PowAttempts          prometheus.Counter
	InvoicesCreated      prometheus.Counter
	InvoicesPaid         prometheus.Counter
	InvoicesFailed       prometheus.Counter
}

// NewMetrics constructs and registers a Metrics set against reg, labeling
// every counter with node.
func NewMetrics(reg prometheus.Registerer, node string) *Metrics {
	labels := prometheus.Labels{"node": node}

	m := &Metrics{
		BroadcastsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "sweetgossip",
			Name:        "broadcasts_sent_total",
			Help:        "Number of AskForBroadcastFrames sent to peers.",
			ConstLabels: labels,
		}),
		BroadcastsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "sweetgossip",
			Name:        "broadcasts_received_total",
			Help:        "Number of POWBroadcastFrames accepted for processing.",
			ConstLabels: labels,
		}),
		BroadcastsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "sweetgossip",
			Name:        "broadcasts_suppressed_total",
			Help:        "Number of broadcasts dropped by duplicate suppression.",
			ConstLabels: labels,
		}),
		PowAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "sweetgossip",
			Name:        "pow_attempts_total",
			Help:        "Number of proof-of-work computations started.",
			ConstLabels: labels,
		}),
		InvoicesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "sweetgossip",
			Name:        "invoices_created_total",
			Help:        "Number of invoices minted, own fee or relay hop.",
			ConstLabels: labels,
		}),
		InvoicesPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "sweetgossip",
			Name:        "invoices_paid_total",
			Help:        "Number of invoices successfully settled.",
			ConstLabels: labels,
		}),
		InvoicesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "sweetgossip",
			Name:        "invoices_failed_total",
			Help:        "Number of invoice payment attempts that failed.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		m.BroadcastsSent,
		m.BroadcastsReceived,
		m.BroadcastsSuppressed,
		m.PowAttempts,
		m.InvoicesCreated,
		m.InvoicesPaid,
		m.InvoicesFailed,
	)

	return m
}

// Observe bumps the counter matching kind, a no-op for any kind this
// Metrics set doesn't track. Matches the event kinds gossip.Node.emit
// produces (see gossip/config.go's EventFunc doc comment).
func (m *Metrics) Observe(kind string) {
	switch kind {
	case "broadcast-sent":
		m.BroadcastsSent.Inc()
	case "broadcast-received":
		m.BroadcastsReceived.Inc()
	case "broadcast-suppressed":
		m.BroadcastsSuppressed.Inc()
	case "pow-attempt":
		m.PowAttempts.Inc()
	case "invoice-created":
		m.InvoicesCreated.Inc()
	case "invoice-paid":
		m.InvoicesPaid.Inc()
	case "invoice-failed":
		m.InvoicesFailed.Inc()
	}
}
