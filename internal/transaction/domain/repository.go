package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *Transaction) error
	FindByOrderID(ctx context.Context, db *gorm.DB, merchantOrderID string) (*Transaction, error)
	AttachSession(ctx context.Context, db *gorm.DB, merchantOrderID string, session Session) error
	RecordInitFailure(ctx context.Context, db *gorm.DB, merchantOrderID, errorCode string, at time.Time) error
	// ApplyState writes gateway state. It fails with ErrIllegalTransition when
	// the stored status is terminal and differs from update.Status.
	ApplyState(ctx context.Context, db *gorm.DB, merchantOrderID string, update StateUpdate) error
	MarkObserved(ctx context.Context, db *gorm.DB, merchantOrderID string, obs Observation, at time.Time) error
	// ClaimEmail flips email_sent from false to true on a terminal transaction.
	// Only the caller that gets true may send the outcome email.
	ClaimEmail(ctx context.Context, db *gorm.DB, merchantOrderID string, at time.Time) (bool, error)
	ClaimPendingEmail(ctx context.Context, db *gorm.DB, merchantOrderID string, at time.Time) (bool, error)
	ListStalePending(ctx context.Context, db *gorm.DB, createdBefore time.Time, limit int) ([]Transaction, error)

	InsertEvent(ctx context.Context, db *gorm.DB, event *Event) error
	ListEvents(ctx context.Context, db *gorm.DB, merchantOrderID string) ([]Event, error)
}

// Session is the checkout reference returned by the gateway.
type Session struct {
	GatewayOrderID string
	RedirectURL    string
	ExpiresAt      *time.Time
	At             time.Time
}

var (
	ErrNotFound           = errors.New("transaction_not_found")
	ErrInvalidStatus      = errors.New("invalid_transaction_status")
	ErrIllegalTransition  = errors.New("illegal_transaction_transition")
	ErrInvalidObservation = errors.New("invalid_observation")
)
