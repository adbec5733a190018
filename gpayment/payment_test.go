package gpayment

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/sweetgossip/sweetgossip/preimage"
	"github.com/stretchr/testify/require"
)

func TestCreateAndPayInvoiceRevealsPreimage(t *testing.T) {
	t.Parallel()

	net := NewNetwork(clock.NewTestClock(time.Now()))

	payee := net.NewChannel(Account("payee"))
	payer := net.NewChannel(Account("payer"))

	invoice, err := payee.CreateInvoice(100)
	require.NoError(t, err)
	require.Equal(t, Account("payee"), invoice.Account)
	require.Equal(t, uint64(100), invoice.Amount)

	proof, err := payer.PayInvoice(invoice)
	require.NoError(t, err)
	require.Equal(t, invoice.PaymentHash, proof.Preimage.Hash())
}

func TestCreateHashLockedInvoiceUsesSuppliedPreimage(t *testing.T) {
	t.Parallel()

	net := NewNetwork(clock.NewTestClock(time.Now()))
	payee := net.NewChannel(Account("payee"))
	payer := net.NewChannel(Account("payer"))

	p, err := preimage.NewPreimage()
	require.NoError(t, err)

	invoice, err := payee.CreateHashLockedInvoice(
		50, p, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, p.Hash(), invoice.PaymentHash)

	proof, err := payer.PayInvoice(invoice)
	require.NoError(t, err)
	require.Equal(t, p, proof.Preimage)
}

func TestPayInvoiceFailsForUnknownAccount(t *testing.T) {
	t.Parallel()

	net := NewNetwork(clock.NewTestClock(time.Now()))
	payer := net.NewChannel(Account("payer"))

	invoice := &Invoice{
		Account:     Account("ghost"),
		Amount:      10,
		PaymentHash: preimage.Hash{},
		ValidTill:   time.Now().Add(time.Hour),
	}

	_, err := payer.PayInvoice(invoice)
	require.Error(t, err)
}

func TestRejectAllPaymentsBlocksSettlement(t *testing.T) {
	t.Parallel()

	net := NewNetwork(clock.NewTestClock(time.Now()))
	payee := net.NewChannel(Account("payee"))
	payer := net.NewChannel(Account("payer"))

	invoice, err := payee.CreateInvoice(10)
	require.NoError(t, err)

	payee.RejectAllPayments(true)

	_, err = payer.PayInvoice(invoice)
	require.Error(t, err)

	payee.RejectAllPayments(false)

	_, err = payer.PayInvoice(invoice)
	require.NoError(t, err)
}

func TestRejectPaymentHashBlocksOnlyThatHash(t *testing.T) {
	t.Parallel()

	net := NewNetwork(clock.NewTestClock(time.Now()))
	payee := net.NewChannel(Account("payee"))
	payer := net.NewChannel(Account("payer"))

	blocked, err := payee.CreateInvoice(10)
	require.NoError(t, err)
	allowed, err := payee.CreateInvoice(20)
	require.NoError(t, err)

	payee.RejectPaymentHash(blocked.PaymentHash, true)

	_, err = payer.PayInvoice(blocked)
	require.Error(t, err)

	_, err = payer.PayInvoice(allowed)
	require.NoError(t, err)
}

func TestPayInvoiceFailsAfterExpiry(t *testing.T) {
	t.Parallel()

	clk := clock.NewTestClock(time.Now())
	net := NewNetwork(clk)
	payee := net.NewChannel(Account("payee"))
	payer := net.NewChannel(Account("payer"))

	p, err := preimage.NewPreimage()
	require.NoError(t, err)

	invoice, err := payee.CreateHashLockedInvoice(
		10, p, clk.Now().Add(time.Second))
	require.NoError(t, err)

	clk.SetTime(clk.Now().Add(time.Minute))

	_, err = payer.PayInvoice(invoice)
	require.Error(t, err)
}

func TestPayInvoiceFailsOnAmountMismatch(t *testing.T) {
	t.Parallel()

	net := NewNetwork(clock.NewTestClock(time.Now()))
	payee := net.NewChannel(Account("payee"))
	payer := net.NewChannel(Account("payer"))

	invoice, err := payee.CreateInvoice(10)
	require.NoError(t, err)

	tampered := *invoice
	tampered.Amount = 999

	_, err = payer.PayInvoice(&tampered)
	require.Error(t, err)
}

func TestHealthyDefaultsTrueAndTogglesWithSetUnhealthy(t *testing.T) {
	t.Parallel()

	net := NewNetwork(clock.NewTestClock(time.Now()))
	ch := net.NewChannel(Account("node"))

	require.True(t, ch.Healthy())

	ch.SetUnhealthy(true)
	require.False(t, ch.Healthy())

	ch.SetUnhealthy(false)
	require.True(t, ch.Healthy())
}
