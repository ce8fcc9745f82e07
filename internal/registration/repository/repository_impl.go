package repository

import (
	"context"

	"github.com/smallbiznis/racepay/internal/registration/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `id, merchant_order_id, name, email, phone, age, gender, date_of_birth,
	emergency_contact, race_category, tshirt_size, blood_group, amount, status, payment_status,
	error_code, error_message, payment_completed_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, reg *domain.Registration) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO registrations (id, merchant_order_id, name, email, phone, age, gender, date_of_birth,
			emergency_contact, race_category, tshirt_size, blood_group, amount, status, payment_status,
			error_code, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reg.ID,
		reg.MerchantOrderID,
		reg.Name,
		reg.Email,
		reg.Phone,
		reg.Age,
		reg.Gender,
		reg.DateOfBirth,
		reg.EmergencyContact,
		reg.RaceCategory,
		reg.TshirtSize,
		reg.BloodGroup,
		reg.Amount,
		reg.Status,
		reg.PaymentStatus,
		reg.ErrorCode,
		reg.ErrorMessage,
		reg.CreatedAt,
		reg.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Registration, error) {
	return r.findOne(ctx, db, `SELECT `+selectColumns+` FROM registrations WHERE id = ?`, id)
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, merchantOrderID string) (*domain.Registration, error) {
	return r.findOne(ctx, db, `SELECT `+selectColumns+` FROM registrations WHERE merchant_order_id = ?`, merchantOrderID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, arg string) (*domain.Registration, error) {
	var reg domain.Registration
	err := db.WithContext(ctx).Raw(query, arg).Scan(&reg).Error
	if err != nil {
		return nil, err
	}
	if reg.ID == "" {
		return nil, nil
	}
	return &reg, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id string, update domain.StatusUpdate) (bool, error) {
	sources := domain.SourcesFor(update.Status)
	if len(sources) == 0 {
		return false, domain.ErrIllegalTransition
	}

	res := db.WithContext(ctx).Exec(
		`UPDATE registrations
		 SET status = ?, payment_status = ?, error_code = ?, error_message = ?,
			payment_completed_at = COALESCE(?, payment_completed_at), updated_at = ?
		 WHERE id = ? AND status IN ?`,
		update.Status,
		update.PaymentStatus,
		update.ErrorCode,
		update.ErrorMessage,
		update.CompletedAt,
		update.At,
		id,
		sources,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	current, err := r.FindByID(ctx, db, id)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, domain.ErrNotFound
	}
	if current.Status == update.Status {
		return false, nil
	}
	return false, domain.ErrIllegalTransition
}
