// Package gpayment implements the payment-channel collaborator named in
// spec.md §6: invoice creation, invoice payment, and preimage-revealing
// settlement. The protocol core only ever talks to the PaymentChannel
// interface; Network/SimulatedChannel is a single concrete, in-memory
// implementation suitable for the simulation harness and tests, grounded on
// the preimage-lookup shape of htlcswitch/mock.go's mockPreimageCache.
package gpayment

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/sweetgossip/sweetgossip/preimage"
)

// Account identifies a payment channel's counterparty endpoint.
type Account []byte

// String renders the account as hex for logging.
func (a Account) String() string {
	return hex.EncodeToString(a)
}

func (a Account) key() string {
	return string(a)
}

// Invoice is a payment obligation, hash-locked to PaymentHash, created by a
// PaymentChannel and settleable only by presenting its preimage.
type Invoice struct {
	Account     Account
	Amount      uint64
	PaymentHash preimage.Hash
	ValidTill   time.Time
}

// ProofOfPayment is returned by a successful PayInvoice, revealing the
// preimage that settled the invoice.
type ProofOfPayment struct {
	Preimage preimage.Preimage
}

// PaymentChannel is the external payment-channel collaborator spec.md §6
// names. A node owns exactly one, identified by Account().
type PaymentChannel interface {
	// Account returns this channel's own counterparty-identifying account.
	Account() Account

	// CreateInvoice mints an invoice for amount, generating its own
	// hash-lock preimage.
	CreateInvoice(amount uint64) (*Invoice, error)

	// CreateHashLockedInvoice mints an invoice hash-locked to an
	// explicitly supplied preimage, expiring at validTill. Used by a
	// relay settling a hop payment (spec.md §4.5.1's make_invoice).
	CreateHashLockedInvoice(amount uint64, preimg preimage.Preimage,
		validTill time.Time) (*Invoice, error)

	// PayInvoice attempts to pay inv, returning the revealed preimage on
	// success or nil if payment could not be completed (spec.md §7:
	// failed payments are absorbed into the requester's fallback, never
	// retried by the channel itself).
	PayInvoice(inv *Invoice) (*ProofOfPayment, error)

	// Healthy reports whether this channel's backend is currently able to
	// mint and settle invoices. A node stops issuing broadcast conditions
	// while this is false (see gossip/health.go).
	Healthy() bool
}

// Network is an in-memory payment network: it links every node's
// SimulatedChannel by Account so that paying an invoice created by one
// node's channel reveals that channel's preimage to the payer, the way a
// real settled Lightning payment would.
type Network struct {
	clock clock.Clock

	mu       sync.Mutex
	channels map[string]*SimulatedChannel
}

// NewNetwork creates an empty simulated payment network.
func NewNetwork(clk clock.Clock) *Network {
	return &Network{
		clock:    clk,
		channels: make(map[string]*SimulatedChannel),
	}
}

// NewChannel registers and returns a fresh SimulatedChannel for account.
func (n *Network) NewChannel(account Account) *SimulatedChannel {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := &SimulatedChannel{
		network:  n,
		account:  account,
		invoices: make(map[preimage.Hash]invoiceRecord),
	}
	n.channels[account.key()] = ch

	return ch
}

func (n *Network) lookup(account Account) (*SimulatedChannel, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch, ok := n.channels[account.key()]

	return ch, ok
}

type invoiceRecord struct {
	preimage preimage.Preimage
	amount   uint64
	validTill time.Time
	settled  bool
}

// SimulatedChannel is a single node's view into Network: it mints invoices
// hash-locked to preimages it controls, and attempts payment of invoices
// minted by other nodes' channels.
type SimulatedChannel struct {
	network *Network
	account Account

	mu           sync.Mutex
	invoices     map[preimage.Hash]invoiceRecord
	rejectAll    bool
	rejectHashes map[preimage.Hash]bool
	unhealthy    bool
}

// Account returns the channel's own account.
func (c *SimulatedChannel) Account() Account {
	return c.account
}

// CreateInvoice mints a self-settling invoice with a freshly generated
// preimage.
func (c *SimulatedChannel) CreateInvoice(amount uint64) (*Invoice, error) {
	p, err := preimage.NewPreimage()
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	validTill := c.network.clock.Now().Add(time.Hour)

	return c.CreateHashLockedInvoice(amount, p, validTill)
}

// CreateHashLockedInvoice mints an invoice hash-locked to an explicit
// preimage that this channel will reveal once that invoice is paid.
func (c *SimulatedChannel) CreateHashLockedInvoice(amount uint64,
	p preimage.Preimage, validTill time.Time) (*Invoice, error) {

	hash := p.Hash()

	c.mu.Lock()
	c.invoices[hash] = invoiceRecord{
		preimage:  p,
		amount:    amount,
		validTill: validTill,
	}
	c.mu.Unlock()

	return &Invoice{
		Account:     c.account,
		Amount:      amount,
		PaymentHash: hash,
		ValidTill:   validTill,
	}, nil
}

// PayInvoice looks up the channel that issued inv via the shared network
// registry and, absent an injected failure, reveals its preimage.
func (c *SimulatedChannel) PayInvoice(inv *Invoice) (*ProofOfPayment, error) {
	issuer, ok := c.network.lookup(inv.Account)
	if !ok {
		return nil, fmt.Errorf("pay invoice: unknown account %s", inv.Account)
	}

	return issuer.settle(inv)
}

func (c *SimulatedChannel) settle(inv *Invoice) (*ProofOfPayment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rejectAll || c.rejectHashes[inv.PaymentHash] {
		return nil, fmt.Errorf("payment rejected for hash %s",
			inv.PaymentHash)
	}

	rec, ok := c.invoices[inv.PaymentHash]
	if !ok {
		return nil, fmt.Errorf("unknown invoice for hash %s",
			inv.PaymentHash)
	}

	if c.network.clock.Now().After(rec.validTill) {
		return nil, fmt.Errorf("invoice expired for hash %s",
			inv.PaymentHash)
	}

	if rec.amount != inv.Amount {
		return nil, fmt.Errorf("amount mismatch for hash %s",
			inv.PaymentHash)
	}

	rec.settled = true
	c.invoices[inv.PaymentHash] = rec

	return &ProofOfPayment{Preimage: rec.preimage}, nil
}

// RejectAllPayments makes every future payment into this channel fail,
// simulating an uncooperative or offline relay (spec.md §8 scenario S5).
func (c *SimulatedChannel) RejectAllPayments(reject bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rejectAll = reject
}

// RejectPaymentHash makes payment of one specific hash fail.
func (c *SimulatedChannel) RejectPaymentHash(hash preimage.Hash, reject bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rejectHashes == nil {
		c.rejectHashes = make(map[preimage.Hash]bool)
	}

	c.rejectHashes[hash] = reject
}

// SetUnhealthy simulates the channel backend going down (or recovering),
// for exercising gossip/health.go's condition-issuance gating in tests.
func (c *SimulatedChannel) SetUnhealthy(unhealthy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unhealthy = unhealthy
}

// Healthy reports whether this channel is currently accepting invoice
// creation/settlement.
func (c *SimulatedChannel) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.unhealthy
}

var _ PaymentChannel = (*SimulatedChannel)(nil)
