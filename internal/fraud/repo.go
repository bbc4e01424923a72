package fraud

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
)

// Repository stores suspicious activity records and reads the service catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Record(ctx context.Context, record *models.SuspiciousActivity) error
	ListBySubject(ctx context.Context, subjectType enums.SubjectType, subjectID string, limit int) ([]models.SuspiciousActivity, error)
	FindCatalogItem(ctx context.Context, code string) (*models.ServiceCatalogItem, error)
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

func (r *repository) Record(ctx context.Context, record *models.SuspiciousActivity) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) ListBySubject(ctx context.Context, subjectType enums.SubjectType, subjectID string, limit int) ([]models.SuspiciousActivity, error) {
	var records []models.SuspiciousActivity
	query := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ?", subjectType, subjectID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&records).Error
	return records, err
}

func (r *repository) FindCatalogItem(ctx context.Context, code string) (*models.ServiceCatalogItem, error) {
	var item models.ServiceCatalogItem
	err := r.db.WithContext(ctx).Where("code = ? AND active = ?", code, true).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}
