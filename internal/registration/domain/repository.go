package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, registration *Registration) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Registration, error)
	FindByOrderID(ctx context.Context, db *gorm.DB, merchantOrderID string) (*Registration, error)
	// Transition moves a registration to update.Status when CanTransition allows it. It reports
	// false without error when the registration already holds that status.
	Transition(ctx context.Context, db *gorm.DB, id string, update StatusUpdate) (bool, error)
}

var (
	ErrNotFound          = errors.New("registration_not_found")
	ErrInvalidStatus     = errors.New("invalid_registration_status")
	ErrIllegalTransition = errors.New("illegal_registration_transition")
)
