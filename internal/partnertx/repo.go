package partnertx

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
)

// Repository persists partners and their idempotent transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePartner(ctx context.Context, partner *models.Partner) error
	FindPartnerByAPIKey(ctx context.Context, apiKey string) (*models.Partner, error)
	FindPartnerByID(ctx context.Context, id uuid.UUID) (*models.Partner, error)

	CreateClaim(ctx context.Context, claim *models.PartnerTransaction) error
	FindByRef(ctx context.Context, partnerID uuid.UUID, refID string) (*models.PartnerTransaction, error)
	Complete(ctx context.Context, claim *models.PartnerTransaction) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePartner(ctx context.Context, partner *models.Partner) error {
	if partner.ID == uuid.Nil {
		partner.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(partner).Error
}

func (r *repository) FindPartnerByAPIKey(ctx context.Context, apiKey string) (*models.Partner, error) {
	var partner models.Partner
	err := r.db.WithContext(ctx).Where("api_key = ?", apiKey).First(&partner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *repository) FindPartnerByID(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	var partner models.Partner
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&partner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &partner, nil
}

// CreateClaim inserts the PROCESSING row. The (partner_id, ref_id) unique
// index makes a concurrent duplicate fail here.
func (r *repository) CreateClaim(ctx context.Context, claim *models.PartnerTransaction) error {
	if claim.ID == uuid.Nil {
		claim.ID = uuid.New()
	}
	claim.Status = enums.PartnerTxProcessing
	return r.db.WithContext(ctx).Create(claim).Error
}

func (r *repository) FindByRef(ctx context.Context, partnerID uuid.UUID, refID string) (*models.PartnerTransaction, error) {
	var row models.PartnerTransaction
	err := r.db.WithContext(ctx).
		Where("partner_id = ? AND ref_id = ?", partnerID, refID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Complete records the terminal outcome on a claim still in PROCESSING.
func (r *repository) Complete(ctx context.Context, claim *models.PartnerTransaction) error {
	now := time.Now().UTC()
	claim.CompletedAt = &now
	res := r.db.WithContext(ctx).
		Model(&models.PartnerTransaction{}).
		Where("id = ? AND status = ?", claim.ID, enums.PartnerTxProcessing).
		Updates(map[string]any{
			"status":           claim.Status,
			"status_code":      claim.StatusCode,
			"amount_minor":     claim.AmountMinor,
			"response_payload": claim.ResponsePayload,
			"error_code":       claim.ErrorCode,
			"ledger_entry_id":  claim.LedgerEntryID,
			"completed_at":     now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("partner transaction is no longer processing")
	}
	return nil
}
