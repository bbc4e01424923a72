package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/pagination"
)

// Service exposes read-side ledger operations. Writes go through the wallet balance guard.
type Service interface {
	History(ctx context.Context, walletID uuid.UUID, params pagination.Params) (*HistoryPage, error)
	DerivedBalance(ctx context.Context, walletID uuid.UUID) (Summary, error)
	ByReference(ctx context.Context, referenceID string) ([]models.LedgerEntry, error)
}

// HistoryPage is one page of a wallet's ledger in seq order.
type HistoryPage struct {
	Entries    []models.LedgerEntry `json:"entries"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) History(ctx context.Context, walletID uuid.UUID, params pagination.Params) (*HistoryPage, error) {
	if walletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id is required")
	}
	afterSeq, err := pagination.ParseSeqCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	entries, err := s.repo.ListByWallet(ctx, walletID, Page{AfterSeq: afterSeq, Limit: limit + 1})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}

	page := &HistoryPage{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		page.NextCursor = pagination.EncodeSeqCursor(page.Entries[limit-1].Seq)
	}
	if page.Entries == nil {
		page.Entries = []models.LedgerEntry{}
	}
	return page, nil
}

// DerivedBalance recomputes the balance from scratch as the prefix sum of every entry.
func (s *service) DerivedBalance(ctx context.Context, walletID uuid.UUID) (Summary, error) {
	if walletID == uuid.Nil {
		return Summary{}, pkgerrors.New(pkgerrors.CodeValidation, "wallet id is required")
	}
	summary, err := s.repo.SumByWallet(ctx, walletID)
	if err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger entries")
	}
	return summary, nil
}

func (s *service) ByReference(ctx context.Context, referenceID string) ([]models.LedgerEntry, error) {
	if referenceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference id is required")
	}
	entries, err := s.repo.ListByReference(ctx, referenceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries by reference")
	}
	return entries, nil
}
