package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smallbiznis/racepay/internal/transaction/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `merchant_order_id, registration_id, amount, amount_in_paisa, status, gateway_order_id,
	redirect_url, expires_at, payment_details, webhook_event, error_code, detailed_error_code,
	email_sent, email_sent_at, pending_email_sent, created_at, updated_at,
	webhook_received_at, status_checked_at, verified_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	details := tx.PaymentDetails
	if len(details) == 0 {
		details = datatypes.JSON("[]")
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO transactions (merchant_order_id, registration_id, amount, amount_in_paisa, status,
			payment_details, email_sent, pending_email_sent, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.MerchantOrderID,
		tx.RegistrationID,
		tx.Amount,
		tx.AmountInPaisa,
		tx.Status,
		details,
		false,
		false,
		tx.CreatedAt,
		tx.UpdatedAt,
	).Error
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, merchantOrderID string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM transactions WHERE merchant_order_id = ?`,
		merchantOrderID,
	).Scan(&tx).Error
	if err != nil {
		return nil, err
	}
	if tx.MerchantOrderID == "" {
		return nil, nil
	}
	return &tx, nil
}

func (r *repo) AttachSession(ctx context.Context, db *gorm.DB, merchantOrderID string, session domain.Session) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions SET gateway_order_id = ?, redirect_url = ?, expires_at = ?, updated_at = ?
		 WHERE merchant_order_id = ?`,
		session.GatewayOrderID,
		session.RedirectURL,
		session.ExpiresAt,
		session.At,
		merchantOrderID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) RecordInitFailure(ctx context.Context, db *gorm.DB, merchantOrderID, errorCode string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE transactions SET error_code = ?, updated_at = ? WHERE merchant_order_id = ? AND status = ?`,
		errorCode,
		at,
		merchantOrderID,
		domain.StatusPending,
	).Error
}

func (r *repo) ApplyState(ctx context.Context, db *gorm.DB, merchantOrderID string, update domain.StateUpdate) error {
	if _, err := domain.ParseStatus(string(update.Status)); err != nil {
		return err
	}

	values := map[string]any{
		"status":              update.Status,
		"error_code":          update.ErrorCode,
		"detailed_error_code": update.DetailedErrorCode,
		"updated_at":          update.At,
	}
	if update.GatewayOrderID != "" {
		values["gateway_order_id"] = update.GatewayOrderID
	}
	if update.WebhookEvent != "" {
		values["webhook_event"] = update.WebhookEvent
	}
	if update.PaymentDetails != nil {
		raw, err := json.Marshal(update.PaymentDetails)
		if err != nil {
			return fmt.Errorf("encode payment details: %w", err)
		}
		values["payment_details"] = datatypes.JSON(raw)
	}

	// PENDING may move anywhere; any status may refresh itself.
	res := db.WithContext(ctx).
		Table("transactions").
		Where("merchant_order_id = ? AND (status = ? OR status = ?)", merchantOrderID, domain.StatusPending, update.Status).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	current, err := r.FindByOrderID(ctx, db, merchantOrderID)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.ErrNotFound
	}
	return domain.ErrIllegalTransition
}

func (r *repo) MarkObserved(ctx context.Context, db *gorm.DB, merchantOrderID string, obs domain.Observation, at time.Time) error {
	column, err := obs.Column()
	if err != nil {
		return err
	}
	return db.WithContext(ctx).
		Table("transactions").
		Where("merchant_order_id = ?", merchantOrderID).
		Updates(map[string]any{column: at, "updated_at": at}).Error
}

func (r *repo) ClaimEmail(ctx context.Context, db *gorm.DB, merchantOrderID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions SET email_sent = ?, email_sent_at = ?, updated_at = ?
		 WHERE merchant_order_id = ? AND email_sent = ? AND status <> ?`,
		true,
		at,
		at,
		merchantOrderID,
		false,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ClaimPendingEmail(ctx context.Context, db *gorm.DB, merchantOrderID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions SET pending_email_sent = ?, updated_at = ?
		 WHERE merchant_order_id = ? AND pending_email_sent = ? AND email_sent = ? AND status = ?`,
		true,
		at,
		merchantOrderID,
		false,
		false,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListStalePending(ctx context.Context, db *gorm.DB, createdBefore time.Time, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 25
	}
	var out []domain.Transaction
	// Orders the gateway rejected at create time were never opened and are
	// left out. The least recently checked rows come first so rows that keep
	// failing cannot starve the rest of the backlog.
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM transactions
		 WHERE status = ? AND created_at < ? AND error_code <> ?
		 ORDER BY COALESCE(status_checked_at, created_at) ASC, created_at ASC
		 LIMIT ?`,
		domain.StatusPending,
		createdBefore,
		domain.ErrorCodeInitRejected,
		limit,
	).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.Event) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (id, merchant_order_id, event, state, outcome, payload, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.MerchantOrderID,
		event.Event,
		event.State,
		event.Outcome,
		event.Payload,
		event.ReceivedAt,
	).Error
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, merchantOrderID string) ([]domain.Event, error) {
	var out []domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT id, merchant_order_id, event, state, outcome, payload, received_at
		 FROM payment_events WHERE merchant_order_id = ? ORDER BY received_at ASC, id ASC`,
		merchantOrderID,
	).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
