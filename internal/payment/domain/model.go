package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/racepay/internal/gateway"
	registrationdomain "github.com/smallbiznis/racepay/internal/registration/domain"
)

var (
	ErrMissingFields  = errors.New("missing_required_fields")
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrMissingOrderID = errors.New("missing_order_id")
	ErrInvalidState   = errors.New("invalid_payment_state")
	ErrUnauthorized   = errors.New("invalid_webhook_signature")
	ErrOrderNotFound  = errors.New("order_not_found")
)

// Gateway is the subset of the PhonePe client the orchestrator drives.
type Gateway interface {
	CreatePayment(ctx context.Context, req gateway.PaymentRequest) (gateway.PaymentSession, error)
	OrderStatus(ctx context.Context, merchantOrderID string, opts gateway.StatusOptions) (gateway.OrderStatus, error)
}

// InitiateRequest is the registration form submitted before checkout.
type InitiateRequest struct {
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	Phone            string  `json:"phone"`
	Age              int     `json:"age"`
	Gender           string  `json:"gender"`
	DateOfBirth      string  `json:"dateOfBirth"`
	EmergencyContact string  `json:"emergencyContact"`
	RaceCategory     string  `json:"raceCategory"`
	TshirtSize       string  `json:"tshirtSize"`
	BloodGroup       string  `json:"bloodGroup"`
	Amount           float64 `json:"amount"`
}

type InitiateResponse struct {
	MerchantOrderID string     `json:"merchantOrderId"`
	OrderID         string     `json:"orderId"`
	RedirectURL     string     `json:"redirectUrl"`
	RegistrationID  string     `json:"registrationId"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

// WebhookRequest is a PhonePe callback as delivered.
type WebhookRequest struct {
	Event   string         `json:"event"`
	Payload WebhookPayload `json:"payload"`

	Authorization string `json:"-"`
	Raw           []byte `json:"-"`
}

type WebhookPayload struct {
	MerchantOrderID   string                  `json:"merchantOrderId"`
	OrderID           string                  `json:"orderId"`
	State             string                  `json:"state"`
	Amount            int64                   `json:"amount"`
	PaymentDetails    []gateway.PaymentDetail `json:"paymentDetails"`
	ErrorCode         string                  `json:"errorCode"`
	DetailedErrorCode string                  `json:"detailedErrorCode"`
}

// WebhookResult reports whether the delivery changed stored state.
type WebhookResult struct {
	MerchantOrderID string
	State           string
	Applied         bool
}

// TransactionView is the transaction summary shown on the status page.
type TransactionView struct {
	MerchantOrderID string  `json:"merchantOrderId"`
	PhonePeOrderID  string  `json:"phonePeOrderId,omitempty"`
	Amount          float64 `json:"amount"`
	Status          string  `json:"status"`
	PaymentMode     string  `json:"paymentMode,omitempty"`
	TransactionID   string  `json:"transactionId,omitempty"`
	ErrorCode       string  `json:"errorCode,omitempty"`
}

type VerifyResult struct {
	Verified     bool                             `json:"verified"`
	State        string                           `json:"state"`
	Transaction  TransactionView                  `json:"transaction"`
	Registration *registrationdomain.Registration `json:"registration"`
}
