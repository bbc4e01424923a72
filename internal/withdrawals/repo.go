package withdrawals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shipwallet-backend/pkg/db"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
)

// Repository persists withdrawal requests and the webhook audit trail.
// Status only moves through Transition, which is conditional on the current state.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, withdrawal *models.Withdrawal) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	FindByExternalRefForUpdate(ctx context.Context, externalRef string) (*models.Withdrawal, error)
	Transition(ctx context.Context, id uuid.UUID, from []enums.WithdrawalStatus, to enums.WithdrawalStatus, fields map[string]any) (int64, error)
	RecordDispatchAttempt(ctx context.Context, id uuid.UUID, dispatchErr *string) error
	ListDispatchedBefore(ctx context.Context, before time.Time, limit int) ([]models.Withdrawal, error)
	ListReservedBefore(ctx context.Context, before time.Time, limit int) ([]models.Withdrawal, error)

	AppendReconciliation(ctx context.Context, record *models.WebhookReconciliation) error
	ListReconciliations(ctx context.Context, externalRef string) ([]models.WebhookReconciliation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a withdrawal repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, withdrawal *models.Withdrawal) error {
	if withdrawal.ID == uuid.Nil {
		withdrawal.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(withdrawal).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	return first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByExternalRefForUpdate(ctx context.Context, externalRef string) (*models.Withdrawal, error) {
	return first(db.ForUpdate(r.db.WithContext(ctx)).Where("external_ref = ?", externalRef))
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, from []enums.WithdrawalStatus, to enums.WithdrawalStatus, fields map[string]any) (int64, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Withdrawal{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) RecordDispatchAttempt(ctx context.Context, id uuid.UUID, dispatchErr *string) error {
	return r.db.WithContext(ctx).
		Model(&models.Withdrawal{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"dispatch_attempts":   gorm.Expr("dispatch_attempts + 1"),
			"last_dispatch_error": dispatchErr,
			"updated_at":          time.Now().UTC(),
		}).Error
}

func (r *repository) ListDispatchedBefore(ctx context.Context, before time.Time, limit int) ([]models.Withdrawal, error) {
	var rows []models.Withdrawal
	err := r.db.WithContext(ctx).
		Where("status = ? AND dispatched_at < ?", enums.WithdrawalStatusDispatched, before).
		Order("dispatched_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListReservedBefore(ctx context.Context, before time.Time, limit int) ([]models.Withdrawal, error) {
	var rows []models.Withdrawal
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", enums.WithdrawalStatusReserved, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) AppendReconciliation(ctx context.Context, record *models.WebhookReconciliation) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) ListReconciliations(ctx context.Context, externalRef string) ([]models.WebhookReconciliation, error) {
	var rows []models.WebhookReconciliation
	err := r.db.WithContext(ctx).
		Where("external_ref = ?", externalRef).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func first(query *gorm.DB) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	err := query.First(&withdrawal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &withdrawal, nil
}
