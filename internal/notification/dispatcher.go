package notification

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/smallbiznis/racepay/internal/clock"
	"github.com/smallbiznis/racepay/internal/config"
	obsmetrics "github.com/smallbiznis/racepay/internal/observability/metrics"
	"github.com/smallbiznis/racepay/internal/providers/email"
	"github.com/smallbiznis/racepay/internal/providers/pdf"
	registrationdomain "github.com/smallbiznis/racepay/internal/registration/domain"
	transactiondomain "github.com/smallbiznis/racepay/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

type Kind string

const (
	KindSuccess Kind = "success"
	KindPending Kind = "pending"
	KindFailed  Kind = "failed"
)

const (
	dateLayout            = "02 Jan 2006, 03:04 pm"
	defaultFailureReason  = "Payment declined"
	participantTimeZone   = "Asia/Kolkata"
	participantZoneOffset = 5*60*60 + 30*60
)

// Data is the participant and ledger state an email is rendered from.
type Data struct {
	Registration  registrationdomain.Registration
	Transaction   transactiondomain.Transaction
	FailureReason string
}

// Sender is the dispatch surface used by the payment flow.
type Sender interface {
	Send(ctx context.Context, kind Kind, data Data) bool
}

type Params struct {
	fx.In

	Provider email.Provider
	Events   *config.EventConfigHolder
	Log      *zap.Logger
	Clock    clock.Clock
	Receipts pdf.Renderer        `optional:"true"`
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Dispatcher struct {
	provider email.Provider
	events   *config.EventConfigHolder
	log      *zap.Logger
	clock    clock.Clock
	receipts pdf.Renderer
	metrics  *obsmetrics.Metrics
	tmpl     *template.Template
	loc      *time.Location
}

func New(p Params) (*Dispatcher, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &Dispatcher{
		provider: p.Provider,
		events:   p.Events,
		log:      p.Log.Named("notification.dispatcher"),
		clock:    p.Clock,
		receipts: p.Receipts,
		metrics:  p.Metrics,
		tmpl:     tmpl,
		loc:      participantLocation(),
	}, nil
}

// Send renders and delivers one outcome email. Failures are logged and
// reported as false, never returned.
func (d *Dispatcher) Send(ctx context.Context, kind Kind, data Data) bool {
	log := d.log.With(
		zap.String("kind", string(kind)),
		zap.String("merchant_order_id", data.Transaction.MerchantOrderID),
	)

	msg, err := d.Render(kind, data)
	if err != nil {
		log.Error("render email failed", zap.Error(err))
		d.metrics.RecordNotification(ctx, string(kind), "render_error")
		return false
	}
	if kind == KindSuccess {
		msg.Attachments = d.receiptAttachment(ctx, log, data)
	}
	if err := d.provider.Send(ctx, msg); err != nil {
		log.Error("send email failed", zap.Error(err))
		d.metrics.RecordNotification(ctx, string(kind), "error")
		return false
	}

	log.Info("email sent")
	d.metrics.RecordNotification(ctx, string(kind), "sent")
	return true
}

// Render builds the message for kind without sending it.
func (d *Dispatcher) Render(kind Kind, data Data) (email.Message, error) {
	event := d.events.Get()
	v, subject, err := d.view(kind, data, event)
	if err != nil {
		return email.Message{}, err
	}

	var body bytes.Buffer
	if err := d.tmpl.ExecuteTemplate(&body, string(kind), v); err != nil {
		return email.Message{}, fmt.Errorf("execute %s template: %w", kind, err)
	}
	return email.Message{
		To:      []string{data.Registration.Email},
		ReplyTo: event.SupportEmail,
		Subject: subject,
		HTML:    body.String(),
	}, nil
}

type row struct {
	Label string
	Value string
}

type view struct {
	Event       config.EventConfig
	Participant registrationdomain.Registration
	Title       string
	Headline    string
	Intro       string
	Icon        string
	Accent      string
	Rows        []row
}

func (d *Dispatcher) view(kind Kind, data Data, event config.EventConfig) (view, string, error) {
	reg := data.Registration
	txn := data.Transaction
	detail, _ := txn.LatestDetail()

	v := view{Event: event, Participant: reg}
	rows := []row{
		{"Participant", reg.Name},
		{"Email", reg.Email},
		{"Phone", reg.Phone},
	}
	if reg.Age > 0 {
		rows = append(rows, row{"Age", strconv.Itoa(reg.Age)})
	}
	rows = appendIf(rows, "Gender", reg.Gender)
	rows = appendIf(rows, "Date of Birth", reg.DateOfBirth)
	rows = appendIf(rows, "T-Shirt Size", reg.TshirtSize)
	rows = appendIf(rows, "Blood Group", reg.BloodGroup)
	rows = appendIf(rows, "Emergency Contact", reg.EmergencyContact)
	rows = appendIf(rows, "Race Category", reg.RaceCategory)
	rows = append(rows, row{"Amount", "₹" + FormatAmount(txn.AmountInPaisa)})
	rows = append(rows, row{"Order ID", txn.MerchantOrderID})

	var subject string
	switch kind {
	case KindSuccess:
		subject = fmt.Sprintf("Payment Successful - %s Registration Confirmed", event.Name)
		v.Title, v.Headline, v.Icon, v.Accent = "Payment Successful", "Registration Confirmed!", "✓", "#16A34A"
		v.Intro = "Your payment has been successfully processed. You're all set for the race!"
		rows = appendIf(rows, "Transaction ID", detail.TransactionID)
		rows = appendIf(rows, "Payment Mode", detail.PaymentMode)
		rows = append(rows, row{"Payment Date", d.paymentDate(detail)})
	case KindPending:
		subject = fmt.Sprintf("Payment Pending - %s Registration", event.Name)
		v.Title, v.Headline, v.Icon, v.Accent = "Payment Pending", "Payment Processing", "…", "#F59E0B"
		v.Intro = "We have received your registration and your payment is being processed."
	case KindFailed:
		subject = fmt.Sprintf("Payment Failed - %s Registration", event.Name)
		v.Title, v.Headline, v.Icon, v.Accent = "Payment Failed", "Payment Unsuccessful", "✕", "#DC2626"
		v.Intro = "Unfortunately your payment could not be completed. Your registration is not confirmed yet."
		reason := data.FailureReason
		if reason == "" {
			reason = defaultFailureReason
		}
		rows = appendIf(rows, "Transaction ID", detail.TransactionID)
		rows = append(rows, row{"Failure Reason", reason})
	default:
		return view{}, "", fmt.Errorf("unknown notification kind %q", kind)
	}
	v.Rows = rows
	return v, subject, nil
}

func (d *Dispatcher) paymentDate(detail transactiondomain.PaymentDetail) string {
	at := d.clock.Now()
	if detail.Timestamp > 0 {
		at = time.UnixMilli(detail.Timestamp)
	}
	return at.In(d.loc).Format(dateLayout)
}

// receiptAttachment renders the PDF receipt. A render failure drops the
// attachment, never the email.
func (d *Dispatcher) receiptAttachment(ctx context.Context, log *zap.Logger, data Data) []email.Attachment {
	if d.receipts == nil {
		return nil
	}
	event := d.events.Get()
	reg := data.Registration
	txn := data.Transaction
	detail, _ := txn.LatestDetail()

	doc, err := d.receipts.Receipt(ctx, pdf.Receipt{
		EventName:       event.Name,
		EventDate:       event.Date,
		Venue:           event.Venue,
		ReportingTime:   event.ReportingTime,
		Organizer:       event.Organizer,
		SupportEmail:    event.SupportEmail,
		ParticipantName: reg.Name,
		Email:           reg.Email,
		Phone:           reg.Phone,
		RaceCategory:    reg.RaceCategory,
		TshirtSize:      reg.TshirtSize,
		RegistrationID:  reg.ID,
		MerchantOrderID: txn.MerchantOrderID,
		TransactionID:   detail.TransactionID,
		PaymentMode:     detail.PaymentMode,
		Amount:          FormatAmount(txn.AmountInPaisa),
		PaidAt:          d.paymentDate(detail),
	})
	if err != nil {
		log.Warn("render receipt failed", zap.Error(err))
		return nil
	}
	if len(doc) == 0 {
		return nil
	}
	return []email.Attachment{{
		Filename:    "receipt-" + txn.MerchantOrderID + ".pdf",
		ContentType: "application/pdf",
		Data:        doc,
	}}
}

// FormatAmount renders minor units as a major-unit amount with two decimals.
func FormatAmount(paisa int64) string {
	return fmt.Sprintf("%.2f", float64(paisa)/100)
}

func appendIf(rows []row, label, value string) []row {
	if value == "" {
		return rows
	}
	return append(rows, row{label, value})
}

func participantLocation() *time.Location {
	loc, err := time.LoadLocation(participantTimeZone)
	if err != nil {
		return time.FixedZone("IST", participantZoneOffset)
	}
	return loc
}
