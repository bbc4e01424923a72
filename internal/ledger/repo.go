package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
)

// Page selects entries strictly after AfterSeq, ordered by seq.
type Page struct {
	AfterSeq int64
	Limit    int
}

// Summary is the ledger-derived view of a wallet.
type Summary struct {
	Sum    int64
	MaxSeq int64
	Count  int64
}

// Repository manages persistence for ledger entries. Entries are append-only;
// there is intentionally no update or delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, entry *models.LedgerEntry) error
	ListByWallet(ctx context.Context, walletID uuid.UUID, page Page) ([]models.LedgerEntry, error)
	SumByWallet(ctx context.Context, walletID uuid.UUID) (Summary, error)
	FindByDedupeKey(ctx context.Context, key string) (*models.LedgerEntry, error)
	ListByReference(ctx context.Context, referenceID string) ([]models.LedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByWallet(ctx context.Context, walletID uuid.UUID, page Page) ([]models.LedgerEntry, error) {
	query := r.db.WithContext(ctx).
		Where("wallet_id = ? AND seq > ?", walletID, page.AfterSeq).
		Order("seq ASC")
	if page.Limit > 0 {
		query = query.Limit(page.Limit)
	}
	var entries []models.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) SumByWallet(ctx context.Context, walletID uuid.UUID) (Summary, error) {
	var summary Summary
	err := r.db.WithContext(ctx).
		Raw(`SELECT COALESCE(SUM(amount_minor), 0) AS sum, COALESCE(MAX(seq), 0) AS max_seq, COUNT(*) AS count
FROM ledger_entries WHERE wallet_id = ?`, walletID).
		Scan(&summary).Error
	return summary, err
}

func (r *repository) FindByDedupeKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).Where("dedupe_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListByReference(ctx context.Context, referenceID string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("reference_id = ?", referenceID).
		Order("created_at ASC, seq ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
