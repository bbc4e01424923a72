package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shipwallet-backend/internal/ledger"
	"github.com/angelmondragon/shipwallet-backend/pkg/db"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
	"github.com/angelmondragon/shipwallet-backend/pkg/metrics"
)

// Adjustment outcomes reported to metrics.
const (
	outcomeApplied      = "applied"
	outcomeInsufficient = "insufficient_funds"
	outcomeFrozen       = "wallet_frozen"
	outcomeQueued       = "queued_pending"
	outcomeDuplicate    = "duplicate"
	outcomeNotFound     = "not_found"
	outcomeError        = "error"
)

// AdjustInput describes one signed balance change.
type AdjustInput struct {
	WalletID    uuid.UUID
	DeltaMinor  int64
	Category    enums.LedgerCategory
	ReferenceID string
	Description string
	DedupeKey   string
	Metadata    json.RawMessage
}

// AdjustResult is returned for an applied change. When a credit hits a frozen
// wallet the result carries the queued PendingCredit alongside a WALLET_FROZEN error.
type AdjustResult struct {
	Entry         *models.LedgerEntry
	NewBalance    int64
	PendingCredit *models.PendingCredit
}

// BalanceGuard is the only writer of wallet balances.
type BalanceGuard interface {
	TryAdjustBalance(ctx context.Context, input AdjustInput) (*AdjustResult, error)
	TryAdjustBalanceTx(ctx context.Context, tx *gorm.DB, input AdjustInput) (*AdjustResult, error)
}

// Guard applies balance changes with a single conditional update followed by
// the matching ledger append, in one transaction.
type Guard struct {
	db      *gorm.DB
	wallets Repository
	entries ledger.Repository
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
}

type GuardParams struct {
	DB      *gorm.DB
	Wallets Repository
	Entries ledger.Repository
	Metrics *metrics.LedgerMetrics
	Logger  *logger.Logger
}

func NewGuard(params GuardParams) (*Guard, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.Entries == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &Guard{
		db:      params.DB,
		wallets: params.Wallets,
		entries: params.Entries,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// TryAdjustBalance runs the adjustment in its own transaction. A credit queued
// for a frozen wallet is committed even though WALLET_FROZEN is returned.
func (g *Guard) TryAdjustBalance(ctx context.Context, input AdjustInput) (*AdjustResult, error) {
	if err := validateAdjust(input); err != nil {
		return nil, err
	}

	var (
		result *AdjustResult
		adjErr error
	)
	txErr := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result, adjErr = g.adjust(ctx, tx, input)
		if adjErr != nil && (result == nil || result.PendingCredit == nil) {
			return adjErr
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return result, adjErr
}

// TryAdjustBalanceTx composes the adjustment into the caller's transaction.
// On any error other than a queued frozen credit the caller must roll back.
func (g *Guard) TryAdjustBalanceTx(ctx context.Context, tx *gorm.DB, input AdjustInput) (*AdjustResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := validateAdjust(input); err != nil {
		return nil, err
	}
	return g.adjust(ctx, tx, input)
}

func validateAdjust(input AdjustInput) error {
	if input.WalletID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet id is required")
	}
	if input.DeltaMinor == 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be non-zero")
	}
	if !input.Category.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger category %q", input.Category))
	}
	if input.ReferenceID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference id is required")
	}
	return nil
}

func (g *Guard) adjust(ctx context.Context, tx *gorm.DB, input AdjustInput) (*AdjustResult, error) {
	wallets := g.wallets.WithTx(tx)
	entries := g.entries.WithTx(tx)
	category := string(input.Category)

	if input.DedupeKey != "" {
		existing, err := entries.FindByDedupeKey(ctx, input.DedupeKey)
		if err != nil {
			g.metrics.IncAdjustment(category, outcomeError)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check dedupe key")
		}
		if existing != nil {
			g.metrics.IncAdjustment(category, outcomeDuplicate)
			return nil, duplicateError(input.DedupeKey, existing.ID)
		}
	}

	rows, err := wallets.ApplyDelta(ctx, input.WalletID, input.DeltaMinor)
	if err != nil {
		g.metrics.IncAdjustment(category, outcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply balance delta")
	}
	if rows == 0 {
		return g.classifyRejection(ctx, tx, input)
	}

	wallet, err := wallets.FindByID(ctx, input.WalletID)
	if err != nil || wallet == nil {
		g.metrics.IncAdjustment(category, outcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errOrMissing(err), "read adjusted wallet")
	}

	entry := &models.LedgerEntry{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Seq:         wallet.LedgerSeq,
		AmountMinor: input.DeltaMinor,
		Kind:        enums.KindForAmount(input.DeltaMinor),
		Category:    input.Category,
		ReferenceID: input.ReferenceID,
		DedupeKey:   optionalString(input.DedupeKey),
		Description: input.Description,
		Metadata:    input.Metadata,
	}
	if err := entries.Append(ctx, entry); err != nil {
		if db.IsUniqueViolation(err, "") {
			g.metrics.IncAdjustment(category, outcomeDuplicate)
			return nil, duplicateError(input.DedupeKey, uuid.Nil)
		}
		g.metrics.IncAdjustment(category, outcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
	}

	g.metrics.IncAdjustment(category, outcomeApplied)
	return &AdjustResult{Entry: entry, NewBalance: wallet.BalanceMinor}, nil
}

// classifyRejection explains why the conditional write matched no row. Nothing
// is written except a pending credit for a frozen wallet.
func (g *Guard) classifyRejection(ctx context.Context, tx *gorm.DB, input AdjustInput) (*AdjustResult, error) {
	category := string(input.Category)
	wallet, err := g.wallets.WithTx(tx).FindByID(ctx, input.WalletID)
	if err != nil {
		g.metrics.IncAdjustment(category, outcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	if wallet == nil {
		g.metrics.IncAdjustment(category, outcomeNotFound)
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}

	if wallet.Status == enums.WalletStatusFrozen {
		if input.DeltaMinor < 0 {
			g.metrics.IncAdjustment(category, outcomeFrozen)
			return nil, pkgerrors.New(pkgerrors.CodeWalletFrozen, "wallet is frozen")
		}
		return g.queuePendingCredit(ctx, tx, input)
	}

	g.metrics.IncAdjustment(category, outcomeInsufficient)
	return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient funds").
		WithDetails(map[string]any{
			"balance_minor":   wallet.BalanceMinor,
			"requested_minor": -input.DeltaMinor,
		})
}

func (g *Guard) queuePendingCredit(ctx context.Context, tx *gorm.DB, input AdjustInput) (*AdjustResult, error) {
	category := string(input.Category)
	credit := &models.PendingCredit{
		ID:          uuid.New(),
		WalletID:    input.WalletID,
		AmountMinor: input.DeltaMinor,
		Category:    input.Category,
		ReferenceID: input.ReferenceID,
		Description: input.Description,
		DedupeKey:   optionalString(input.DedupeKey),
		Status:      enums.PendingCreditStatusPending,
	}
	if err := g.wallets.WithTx(tx).CreatePendingCredit(ctx, credit); err != nil {
		if db.IsUniqueViolation(err, "") {
			g.metrics.IncAdjustment(category, outcomeDuplicate)
			return nil, duplicateError(input.DedupeKey, uuid.Nil)
		}
		g.metrics.IncAdjustment(category, outcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue pending credit")
	}

	g.metrics.IncAdjustment(category, outcomeQueued)
	if g.logg != nil {
		logCtx := g.logg.WithFields(ctx, map[string]any{
			"wallet_id":         input.WalletID.String(),
			"pending_credit_id": credit.ID.String(),
			"amount_minor":      input.DeltaMinor,
			"category":          category,
		})
		g.logg.Warn(logCtx, "credit queued for frozen wallet")
	}
	frozen := pkgerrors.New(pkgerrors.CodeWalletFrozen, "wallet is frozen; credit queued").
		WithDetails(map[string]any{"pending_credit_id": credit.ID.String()})
	return &AdjustResult{PendingCredit: credit}, frozen
}

// IsQueuedCredit reports whether an adjustment error only means the credit was
// parked on a frozen wallet.
func IsQueuedCredit(result *AdjustResult, err error) bool {
	return err != nil && result != nil && result.PendingCredit != nil &&
		pkgerrors.IsCode(err, pkgerrors.CodeWalletFrozen)
}

func duplicateError(key string, entryID uuid.UUID) error {
	details := map[string]any{"dedupe_key": key}
	if entryID != uuid.Nil {
		details["entry_id"] = entryID.String()
	}
	return pkgerrors.New(pkgerrors.CodeDuplicateRequest, "duplicate balance adjustment").WithDetails(details)
}

func errOrMissing(err error) error {
	if err != nil {
		return err
	}
	return errors.New("wallet vanished after update")
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
