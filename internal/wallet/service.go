package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shipwallet-backend/pkg/db"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
	"github.com/angelmondragon/shipwallet-backend/pkg/metrics"
	"github.com/angelmondragon/shipwallet-backend/pkg/money"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox/payloads"
)

// Freeze sources reported to metrics and alerts.
const (
	FreezeSourceOperator   = "operator"
	FreezeSourceReconciler = "reconciler"
)

// BalanceView is the read-only balance query result.
type BalanceView struct {
	WalletID     uuid.UUID          `json:"wallet_id"`
	BalanceMinor int64              `json:"balance_minor"`
	Display      string             `json:"display"`
	Currency     enums.Currency     `json:"currency"`
	Status       enums.WalletStatus `json:"status"`
	AsOfSeq      int64              `json:"as_of_seq"`
	PendingMinor int64              `json:"pending_credits_minor"`
}

// UnfreezeResult summarizes the credits replayed when a wallet is reactivated.
type UnfreezeResult struct {
	Wallet          *models.Wallet
	ReplayedCredits int
	ReplayedMinor   int64
}

// Service manages the wallet lifecycle around the balance guard.
type Service interface {
	Open(ctx context.Context, ownerID uuid.UUID, ownerType enums.WalletOwnerType, currency enums.Currency) (*models.Wallet, error)
	Get(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID, ownerType enums.WalletOwnerType, currency enums.Currency) (*models.Wallet, error)
	Balance(ctx context.Context, walletID uuid.UUID) (*BalanceView, error)
	Freeze(ctx context.Context, walletID uuid.UUID, reason string) (*models.Wallet, error)
	FreezeTx(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, reason, source string) (bool, error)
	Unfreeze(ctx context.Context, walletID uuid.UUID, actor *outbox.ActorRef) (*UnfreezeResult, error)
}

type ServiceParams struct {
	DB              *gorm.DB
	Repo            Repository
	Guard           BalanceGuard
	Outbox          outbox.Emitter
	Metrics         *metrics.LedgerMetrics
	Logger          *logger.Logger
	DefaultCurrency enums.Currency
}

type service struct {
	db              *gorm.DB
	repo            Repository
	guard           BalanceGuard
	outbox          outbox.Emitter
	metrics         *metrics.LedgerMetrics
	logg            *logger.Logger
	defaultCurrency enums.Currency
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("balance guard required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	currency := params.DefaultCurrency
	if currency == "" {
		currency = enums.CurrencyIDR
	}
	return &service{
		db:              params.DB,
		repo:            params.Repo,
		guard:           params.Guard,
		outbox:          params.Outbox,
		metrics:         params.Metrics,
		logg:            params.Logger,
		defaultCurrency: currency,
	}, nil
}

// Open creates the owner's wallet, or returns the existing one.
func (s *service) Open(ctx context.Context, ownerID uuid.UUID, ownerType enums.WalletOwnerType, currency enums.Currency) (*models.Wallet, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	if !ownerType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid owner type")
	}
	if currency == "" {
		currency = s.defaultCurrency
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	existing, err := s.repo.FindByOwner(ctx, ownerID, ownerType, currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup wallet")
	}
	if existing != nil {
		return existing, nil
	}

	wallet := &models.Wallet{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		OwnerType: ownerType,
		Currency:  currency,
		Status:    enums.WalletStatusActive,
	}
	if err := s.repo.Create(ctx, wallet); err != nil {
		if db.IsUniqueViolation(err, "") {
			return s.repo.FindByOwner(ctx, ownerID, ownerType, currency)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}
	return wallet, nil
}

func (s *service) Get(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.FindByID(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	if wallet == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	return wallet, nil
}

func (s *service) GetByOwner(ctx context.Context, ownerID uuid.UUID, ownerType enums.WalletOwnerType, currency enums.Currency) (*models.Wallet, error) {
	if currency == "" {
		currency = s.defaultCurrency
	}
	wallet, err := s.repo.FindByOwner(ctx, ownerID, ownerType, currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	if wallet == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	return wallet, nil
}

// Balance reads the materialized balance, which always moves in the same
// transaction as the ledger append.
func (s *service) Balance(ctx context.Context, walletID uuid.UUID) (*BalanceView, error) {
	wallet, err := s.Get(ctx, walletID)
	if err != nil {
		return nil, err
	}
	pending, err := s.repo.SumPendingCredits(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum pending credits")
	}
	return &BalanceView{
		WalletID:     wallet.ID,
		BalanceMinor: wallet.BalanceMinor,
		Display:      money.Display(wallet.BalanceMinor, wallet.Currency),
		Currency:     wallet.Currency,
		Status:       wallet.Status,
		AsOfSeq:      wallet.LedgerSeq,
		PendingMinor: pending,
	}, nil
}

// Freeze is idempotent: freezing a frozen wallet returns it unchanged.
func (s *service) Freeze(ctx context.Context, walletID uuid.UUID, reason string) (*models.Wallet, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "freeze reason is required")
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.FreezeTx(ctx, tx, walletID, reason, FreezeSourceOperator)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, walletID)
}

// FreezeTx flips ACTIVE to FROZEN inside tx and queues the operator alert.
// It reports whether this call performed the transition.
func (s *service) FreezeTx(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, reason, source string) (bool, error) {
	repo := s.repo.WithTx(tx)
	rows, err := repo.UpdateStatus(ctx, walletID, enums.WalletStatusActive, enums.WalletStatusFrozen, &reason)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "freeze wallet")
	}
	if rows == 0 {
		wallet, err := repo.FindByID(ctx, walletID)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
		}
		if wallet == nil {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return false, nil
	}

	wallet, err := repo.FindByID(ctx, walletID)
	if err != nil || wallet == nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, errOrMissing(err), "reload wallet")
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventWalletFrozen,
		AggregateType: enums.AggregateWallet,
		AggregateID:   walletID,
		Data: payloads.WalletFrozenEvent{
			WalletID: walletID,
			OwnerID:  wallet.OwnerID,
			Reason:   reason,
			Source:   source,
			FrozenAt: time.Now().UTC(),
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit wallet frozen event")
	}

	s.metrics.IncFrozen(source)
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"wallet_id": walletID.String(),
			"reason":    reason,
			"source":    source,
		})
		s.logg.Warn(logCtx, "wallet frozen")
	}
	return true, nil
}

// Unfreeze reactivates the wallet and replays every queued credit through the
// guard exactly once, in the same transaction.
func (s *service) Unfreeze(ctx context.Context, walletID uuid.UUID, actor *outbox.ActorRef) (*UnfreezeResult, error) {
	result := &UnfreezeResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		wallet, err := repo.FindByIDForUpdate(ctx, walletID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
		}
		if wallet == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		if wallet.Status != enums.WalletStatusFrozen {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "wallet is not frozen")
		}

		if _, err := repo.UpdateStatus(ctx, walletID, enums.WalletStatusFrozen, enums.WalletStatusActive, nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unfreeze wallet")
		}

		credits, err := repo.ListPendingCredits(ctx, walletID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending credits")
		}
		balance := wallet.BalanceMinor
		for _, credit := range credits {
			adjusted, err := s.guard.TryAdjustBalanceTx(ctx, tx, AdjustInput{
				WalletID:    walletID,
				DeltaMinor:  credit.AmountMinor,
				Category:    credit.Category,
				ReferenceID: credit.ReferenceID,
				Description: credit.Description,
				DedupeKey:   replayDedupeKey(credit),
			})
			if err != nil {
				return err
			}
			if err := repo.MarkPendingCreditApplied(ctx, credit.ID, adjusted.Entry.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark pending credit applied")
			}
			balance = adjusted.NewBalance
			result.ReplayedCredits++
			result.ReplayedMinor += credit.AmountMinor
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventWalletUnfrozen,
			AggregateType: enums.AggregateWallet,
			AggregateID:   walletID,
			Actor:         actor,
			Data: payloads.WalletUnfrozenEvent{
				WalletID:          walletID,
				ActorID:           actorID(actor),
				ReplayedCredits:   result.ReplayedCredits,
				ReplayedMinor:     result.ReplayedMinor,
				BalanceAfterMinor: balance,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	wallet, err := s.Get(ctx, walletID)
	if err != nil {
		return nil, err
	}
	result.Wallet = wallet
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"wallet_id":        walletID.String(),
			"replayed_credits": result.ReplayedCredits,
			"replayed_minor":   result.ReplayedMinor,
		})
		s.logg.Info(logCtx, "wallet unfrozen")
	}
	return result, nil
}

// replayDedupeKey keeps the original key so a retried producer still collides
// with the replayed entry.
func replayDedupeKey(credit models.PendingCredit) string {
	if credit.DedupeKey != nil && *credit.DedupeKey != "" {
		return *credit.DedupeKey
	}
	return "pending:" + credit.ID.String()
}

func actorID(actor *outbox.ActorRef) string {
	if actor == nil {
		return ""
	}
	return actor.ID
}
