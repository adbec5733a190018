package gossip

import (
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/sweetgossip/sweetgossip/cert"
	"github.com/sweetgossip/sweetgossip/gpayment"
)

// Config enumerates spec.md §6's Node configuration, loaded the way lnd's
// root config and lncfg sub-configs declare struct tags for
// jessevdk/go-flags.
type Config struct {
	Name string `long:"name" description:"human-readable name this node announces to peers"`

	Certificate *cert.Certificate `no-flag:"true"`
	PrivateKey  *btcec.PrivateKey `no-flag:"true"`

	PaymentChannel gpayment.PaymentChannel `no-flag:"true"`

	PriceAmountForRouting uint64 `long:"routingprice" description:"fee this node demands per hop it relays"`

	BroadcastConditionsTimeout time.Duration `long:"conditionstimeout" description:"validity window offered on issued POWBroadcastConditionsFrame" default:"5s"`

	BroadcastConditionsPOWScheme     string `long:"powscheme" description:"proof-of-work scheme advertised in broadcast conditions" default:"sha256-leading-zero-bits"`
	BroadcastConditionsPOWComplexity uint32 `long:"powcomplexity" description:"proof-of-work complexity advertised in broadcast conditions" default:"8"`

	InvoicePaymentTimeout time.Duration `long:"invoicetimeout" description:"validity window on invoices a relay creates for its hop payment" default:"1m"`

	// OnEvent, if set, is called for significant engine occurrences
	// (broadcast sent/received/suppressed, invoice created/paid/failed).
	// gossip itself has no observability dependency; callers that want
	// prometheus counters or a live dashboard (see monitor/) wire this up
	// to feed one.
	OnEvent EventFunc `no-flag:"true"`
}

// EventFunc receives one observability event. kind is a short
// machine-readable tag ("broadcast-sent", "invoice-paid", ...); topic and
// detail are free-form and may be empty.
type EventFunc func(kind, topic, detail string)
