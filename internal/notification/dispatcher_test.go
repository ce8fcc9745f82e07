package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/racepay/internal/clock"
	"github.com/smallbiznis/racepay/internal/config"
	obsmetrics "github.com/smallbiznis/racepay/internal/observability/metrics"
	"github.com/smallbiznis/racepay/internal/providers/email"
	"github.com/smallbiznis/racepay/internal/providers/pdf"
	registrationdomain "github.com/smallbiznis/racepay/internal/registration/domain"
	transactiondomain "github.com/smallbiznis/racepay/internal/transaction/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func newTestDispatcher(t *testing.T, provider email.Provider) *Dispatcher {
	return newDispatcherWithReceipts(t, provider, nil)
}

func newDispatcherWithReceipts(t *testing.T, provider email.Provider, receipts pdf.Renderer) *Dispatcher {
	t.Helper()
	d, err := New(Params{
		Provider: provider,
		Receipts: receipts,
		Events:   config.NewStaticEventConfigHolder(config.DefaultEventConfig()),
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)),
		Metrics:  obsmetrics.NewNoop(),
	})
	require.NoError(t, err)
	return d
}

func sampleData() Data {
	return Data{
		Registration: registrationdomain.Registration{
			ID:           "reg-1",
			Name:         "Asha",
			Email:        "a@x.com",
			Phone:        "9999999999",
			Age:          29,
			RaceCategory: "5K",
			TshirtSize:   "M",
		},
		Transaction: transactiondomain.Transaction{
			MerchantOrderID: "ORDER_1",
			AmountInPaisa:   30000,
			PaymentDetails:  datatypes.JSON(`[{"transactionId":"T123","paymentMode":"UPI_QR","timestamp":1736496000000}]`),
		},
	}
}

func TestSendSuccessEmail(t *testing.T) {
	rec := &email.RecordingProvider{}
	d := newTestDispatcher(t, rec)

	ok := d.Send(context.Background(), KindSuccess, sampleData())
	require.True(t, ok)

	sent := rec.Sent()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, []string{"a@x.com"}, msg.To)
	assert.Equal(t, "Payment Successful - Ravulapalem Run 2025 Registration Confirmed", msg.Subject)
	assert.Contains(t, msg.HTML, "Asha")
	assert.Contains(t, msg.HTML, "300.00")
	assert.Contains(t, msg.HTML, "T123")
	assert.Contains(t, msg.HTML, "ORDER_1")
	// 2025-01-10 08:00 UTC is 13:30 in Asia/Kolkata.
	assert.Contains(t, msg.HTML, "10 Jan 2025, 01:30 pm")
}

func TestSendFailedEmailIncludesReason(t *testing.T) {
	rec := &email.RecordingProvider{}
	d := newTestDispatcher(t, rec)

	data := sampleData()
	data.FailureReason = "INSUFFICIENT_FUNDS"
	require.True(t, d.Send(context.Background(), KindFailed, data))

	msg := rec.Sent()[0]
	assert.Equal(t, "Payment Failed - Ravulapalem Run 2025 Registration", msg.Subject)
	assert.Contains(t, msg.HTML, "INSUFFICIENT_FUNDS")
}

func TestFailedEmailDefaultsReason(t *testing.T) {
	d := newTestDispatcher(t, &email.RecordingProvider{})
	msg, err := d.Render(KindFailed, sampleData())
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, defaultFailureReason)
}

func TestRenderPendingEmail(t *testing.T) {
	d := newTestDispatcher(t, &email.RecordingProvider{})
	msg, err := d.Render(KindPending, sampleData())
	require.NoError(t, err)
	assert.Equal(t, "Payment Pending - Ravulapalem Run 2025 Registration", msg.Subject)
	assert.Contains(t, msg.HTML, "being processed")
}

func TestOutcomeEmailsReplyToSupport(t *testing.T) {
	d := newTestDispatcher(t, &email.RecordingProvider{})
	for _, kind := range []Kind{KindSuccess, KindPending, KindFailed} {
		msg, err := d.Render(kind, sampleData())
		require.NoError(t, err)
		assert.Equal(t, config.DefaultEventConfig().SupportEmail, msg.ReplyTo, string(kind))
	}
}

func TestRenderEscapesParticipantInput(t *testing.T) {
	d := newTestDispatcher(t, &email.RecordingProvider{})
	data := sampleData()
	data.Registration.Name = "<script>alert(1)</script>"
	msg, err := d.Render(KindSuccess, data)
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestSendSwallowsProviderErrors(t *testing.T) {
	rec := &email.RecordingProvider{Err: errors.New("smtp down")}
	d := newTestDispatcher(t, rec)
	assert.False(t, d.Send(context.Background(), KindSuccess, sampleData()))
	assert.Empty(t, rec.Sent())
}

func TestSendUnknownKind(t *testing.T) {
	rec := &email.RecordingProvider{}
	d := newTestDispatcher(t, rec)
	assert.False(t, d.Send(context.Background(), Kind("refund"), sampleData()))
	assert.Empty(t, rec.Sent())
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "300.00", FormatAmount(30000))
	assert.Equal(t, "0.50", FormatAmount(50))
	assert.Equal(t, "1234.56", FormatAmount(123456))
}

type stubReceipts struct {
	got pdf.Receipt
	err error
}

func (s *stubReceipts) Receipt(ctx context.Context, r pdf.Receipt) ([]byte, error) {
	s.got = r
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF-1.3 stub"), nil
}

func TestSuccessEmailAttachesReceipt(t *testing.T) {
	rec := &email.RecordingProvider{}
	receipts := &stubReceipts{}
	d := newDispatcherWithReceipts(t, rec, receipts)

	require.True(t, d.Send(context.Background(), KindSuccess, sampleData()))
	msg := rec.Sent()[0]
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "receipt-ORDER_1.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.Equal(t, "T123", receipts.got.TransactionID)
	assert.Equal(t, "300.00", receipts.got.Amount)
	assert.Equal(t, "reg-1", receipts.got.RegistrationID)
}

func TestReceiptFailureStillSendsEmail(t *testing.T) {
	rec := &email.RecordingProvider{}
	d := newDispatcherWithReceipts(t, rec, &stubReceipts{err: errors.New("font missing")})

	require.True(t, d.Send(context.Background(), KindSuccess, sampleData()))
	assert.Empty(t, rec.Sent()[0].Attachments)
}

func TestFailedEmailHasNoReceipt(t *testing.T) {
	rec := &email.RecordingProvider{}
	receipts := &stubReceipts{}
	d := newDispatcherWithReceipts(t, rec, receipts)

	require.True(t, d.Send(context.Background(), KindFailed, sampleData()))
	assert.Empty(t, rec.Sent()[0].Attachments)
	assert.Empty(t, receipts.got.MerchantOrderID)
}
