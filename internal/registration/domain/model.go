package domain

import (
	"strings"
	"time"
)

// Status is the participant-facing registration state.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusConfirmed         Status = "CONFIRMED"
	StatusPaymentFailed     Status = "PAYMENT_FAILED"
	StatusPaymentInitFailed Status = "PAYMENT_INIT_FAILED"
)

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusPending, StatusConfirmed, StatusPaymentFailed, StatusPaymentInitFailed:
		return s, nil
	default:
		return "", ErrInvalidStatus
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusPaymentFailed || s == StatusPaymentInitFailed
}

// CanTransition reports whether a registration may move from s to next.
// Repeating the current state is allowed as a no-op. A failed initiate can
// still settle: the gateway may have opened the order before the call timed out.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next.IsTerminal()
	case StatusPaymentInitFailed:
		return next == StatusConfirmed || next == StatusPaymentFailed
	default:
		return false
	}
}

// SourcesFor lists the statuses a registration may leave to reach next.
func SourcesFor(next Status) []Status {
	var out []Status
	for _, s := range []Status{StatusPending, StatusPaymentInitFailed} {
		if s != next && s.CanTransition(next) {
			out = append(out, s)
		}
	}
	return out
}

type PaymentStatus string

const (
	PaymentStatusNone    PaymentStatus = ""
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

type Registration struct {
	ID               string        `gorm:"primaryKey" json:"id"`
	MerchantOrderID  string        `json:"merchantOrderId"`
	Name             string        `json:"name"`
	Email            string        `json:"email"`
	Phone            string        `json:"phone"`
	Age              int           `json:"age,omitempty"`
	Gender           string        `json:"gender,omitempty"`
	DateOfBirth      string        `json:"dateOfBirth,omitempty"`
	EmergencyContact string        `json:"emergencyContact,omitempty"`
	RaceCategory     string        `json:"raceCategory,omitempty"`
	TshirtSize       string        `json:"tshirtSize,omitempty"`
	BloodGroup       string        `json:"bloodGroup,omitempty"`
	Amount           float64       `json:"amount"`
	Status           Status        `json:"status"`
	PaymentStatus    PaymentStatus `json:"paymentStatus,omitempty"`
	ErrorCode        string        `json:"errorCode,omitempty"`
	ErrorMessage     string        `json:"error,omitempty"`
	PaymentCompleted *time.Time    `gorm:"column:payment_completed_at" json:"paymentCompletedAt,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

func (Registration) TableName() string { return "registrations" }

// StatusUpdate is applied when a payment outcome is observed.
type StatusUpdate struct {
	Status        Status
	PaymentStatus PaymentStatus
	ErrorCode     string
	ErrorMessage  string
	CompletedAt   *time.Time
	At            time.Time
}

// AgeOn computes the age in whole years on the given day for a YYYY-MM-DD birth date.
func AgeOn(dateOfBirth string, on time.Time) (int, bool) {
	dob, err := time.Parse("2006-01-02", strings.TrimSpace(dateOfBirth))
	if err != nil {
		return 0, false
	}
	if dob.After(on) {
		return 0, false
	}
	age := on.Year() - dob.Year()
	if on.Month() < dob.Month() || (on.Month() == dob.Month() && on.Day() < dob.Day()) {
		age--
	}
	return age, true
}
