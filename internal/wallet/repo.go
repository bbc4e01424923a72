package wallet

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

// Repository persists wallets and the credits queued while they are frozen.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, wallet *models.Wallet) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	FindByOwner(ctx context.Context, ownerID uuid.UUID, ownerType enums.WalletOwnerType, currency enums.Currency) (*models.Wallet, error)
	ListIDsAfter(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	ApplyDelta(ctx context.Context, id uuid.UUID, delta int64) (int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.WalletStatus, reason *string) (int64, error)

	CreatePendingCredit(ctx context.Context, credit *models.PendingCredit) error
	ListPendingCredits(ctx context.Context, walletID uuid.UUID) ([]models.PendingCredit, error)
	SumPendingCredits(ctx context.Context, walletID uuid.UUID) (int64, error)
	MarkPendingCreditApplied(ctx context.Context, id, entryID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, wallet *models.Wallet) error {
	if wallet.ID == uuid.Nil {
		wallet.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return r.first(db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id))
}

func (r *repository) FindByOwner(ctx context.Context, ownerID uuid.UUID, ownerType enums.WalletOwnerType, currency enums.Currency) (*models.Wallet, error) {
	return r.first(r.db.WithContext(ctx).
		Where("owner_id = ? AND owner_type = ? AND currency = ?", ownerID, ownerType, currency))
}

func (r *repository) first(query *gorm.DB) (*models.Wallet, error) {
	var wallet models.Wallet
	err := query.First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) ListIDsAfter(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id > ?", after).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// ApplyDelta is the single conditional write behind every balance change. It
// only matches an ACTIVE wallet whose balance stays non-negative, and returns
// the number of rows it changed.
func (r *repository) ApplyDelta(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND status = ? AND balance_minor + ? >= 0", id, enums.WalletStatusActive, delta).
		Updates(map[string]any{
			"balance_minor": gorm.Expr("balance_minor + ?", delta),
			"ledger_seq":    gorm.Expr("ledger_seq + 1"),
			"updated_at":    time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.WalletStatus, reason *string) (int64, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if to == enums.WalletStatusFrozen {
		updates["frozen_reason"] = reason
		updates["frozen_at"] = time.Now().UTC()
	} else {
		updates["frozen_reason"] = nil
		updates["frozen_at"] = nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) CreatePendingCredit(ctx context.Context, credit *models.PendingCredit) error {
	if credit.ID == uuid.Nil {
		credit.ID = uuid.New()
	}
	if credit.Status == "" {
		credit.Status = enums.PendingCreditStatusPending
	}
	return r.db.WithContext(ctx).Create(credit).Error
}

func (r *repository) ListPendingCredits(ctx context.Context, walletID uuid.UUID) ([]models.PendingCredit, error) {
	var credits []models.PendingCredit
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("wallet_id = ? AND status = ?", walletID, enums.PendingCreditStatusPending).
		Order("created_at ASC, id ASC").
		Find(&credits).Error
	return credits, err
}

func (r *repository) SumPendingCredits(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.PendingCredit{}).
		Where("wallet_id = ? AND status = ?", walletID, enums.PendingCreditStatusPending).
		Select("COALESCE(SUM(amount_minor), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) MarkPendingCreditApplied(ctx context.Context, id, entryID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PendingCredit{}).
		Where("id = ? AND status = ?", id, enums.PendingCreditStatusPending).
		Updates(map[string]any{
			"status":           enums.PendingCreditStatusApplied,
			"applied_entry_id": entryID,
			"applied_at":       time.Now().UTC(),
		}).Error
}
