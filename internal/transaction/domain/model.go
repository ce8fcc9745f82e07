package domain

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Status mirrors the gateway order state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusTimeout   Status = "TIMEOUT"
)

// Error codes recorded when create payment fails. An API error means the
// gateway rejected the order; a timeout leaves it possibly open.
const (
	ErrorCodeInitTimeout  = "TIMEOUT"
	ErrorCodeInitRejected = "PAYMENT_API_ERROR"
)

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusPending, StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return s, nil
	default:
		return "", ErrInvalidStatus
	}
}

func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// IsFailure groups the non-successful terminal states.
func (s Status) IsFailure() bool {
	return s == StatusFailed || s == StatusCancelled || s == StatusTimeout
}

// CanTransition allows PENDING to move to any terminal state and any state
// to repeat itself. Terminal states never change.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return from == StatusPending && to.IsTerminal()
}

type PaymentDetail struct {
	PaymentMode       string `json:"paymentMode,omitempty"`
	TransactionID     string `json:"transactionId,omitempty"`
	Timestamp         int64  `json:"timestamp,omitempty"`
	Amount            int64  `json:"amount,omitempty"`
	State             string `json:"state,omitempty"`
	ErrorCode         string `json:"errorCode,omitempty"`
	DetailedErrorCode string `json:"detailedErrorCode,omitempty"`
}

type Transaction struct {
	MerchantOrderID   string         `gorm:"primaryKey" json:"merchantOrderId"`
	RegistrationID    string         `json:"registrationId"`
	Amount            float64        `json:"amount"`
	AmountInPaisa     int64          `json:"amountInPaisa"`
	Status            Status         `json:"status"`
	GatewayOrderID    string         `json:"phonePeOrderId,omitempty"`
	RedirectURL       string         `json:"redirectUrl,omitempty"`
	ExpiresAt         *time.Time     `json:"expiresAt,omitempty"`
	PaymentDetails    datatypes.JSON `json:"paymentDetails,omitempty"`
	WebhookEvent      string         `json:"webhookEvent,omitempty"`
	ErrorCode         string         `json:"errorCode,omitempty"`
	DetailedErrorCode string         `json:"detailedErrorCode,omitempty"`
	EmailSent         bool           `json:"emailSent"`
	EmailSentAt       *time.Time     `json:"emailSentAt,omitempty"`
	PendingEmailSent  bool           `json:"pendingEmailSent"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	WebhookReceivedAt *time.Time     `json:"webhookReceivedAt,omitempty"`
	StatusCheckedAt   *time.Time     `json:"statusCheckedAt,omitempty"`
	VerifiedAt        *time.Time     `json:"verifiedAt,omitempty"`
}

func (Transaction) TableName() string { return "transactions" }

// Details decodes the stored gateway payment attempts. Malformed data yields nil.
func (t Transaction) Details() []PaymentDetail {
	if len(t.PaymentDetails) == 0 {
		return nil
	}
	var out []PaymentDetail
	if err := json.Unmarshal(t.PaymentDetails, &out); err != nil {
		return nil
	}
	return out
}

// LatestDetail returns the first reported payment attempt, if any.
func (t Transaction) LatestDetail() (PaymentDetail, bool) {
	details := t.Details()
	if len(details) == 0 {
		return PaymentDetail{}, false
	}
	return details[0], true
}

// StateUpdate carries gateway-observed state for a transaction.
// A nil PaymentDetails keeps the stored attempts.
type StateUpdate struct {
	Status            Status
	GatewayOrderID    string
	PaymentDetails    []PaymentDetail
	ErrorCode         string
	DetailedErrorCode string
	WebhookEvent      string
	At                time.Time
}

// Observation names the path that looked at gateway state.
type Observation string

const (
	ObservedWebhook     Observation = "webhook"
	ObservedStatusCheck Observation = "status_check"
	ObservedVerify      Observation = "verify"
)

// Column returns the audit timestamp column recorded for the observation.
func (o Observation) Column() (string, error) {
	switch o {
	case ObservedWebhook:
		return "webhook_received_at", nil
	case ObservedStatusCheck:
		return "status_checked_at", nil
	case ObservedVerify:
		return "verified_at", nil
	default:
		return "", ErrInvalidObservation
	}
}

// Event is one authenticated webhook delivery as received.
type Event struct {
	ID              string         `gorm:"primaryKey" json:"id"`
	MerchantOrderID string         `json:"merchantOrderId"`
	Event           string         `json:"event"`
	State           string         `json:"state"`
	Outcome         string         `json:"outcome"`
	Payload         datatypes.JSON `json:"payload"`
	ReceivedAt      time.Time      `json:"receivedAt"`
}

func (Event) TableName() string { return "payment_events" }

const (
	EventOutcomeApplied = "applied"
	EventOutcomeStale   = "stale"
)
