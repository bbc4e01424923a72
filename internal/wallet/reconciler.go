package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/shipwallet-backend/internal/ledger"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
	"github.com/angelmondragon/shipwallet-backend/pkg/metrics"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox/payloads"
)

const (
	reconcileMatched = "matched"
	reconcileDrift   = "drift"
	reconcileError   = "error"

	defaultReconcileBatch = 500
)

// CheckResult compares the materialized balance with the ledger-derived one.
type CheckResult struct {
	WalletID          uuid.UUID `json:"wallet_id"`
	MaterializedMinor int64     `json:"materialized_minor"`
	DerivedMinor      int64     `json:"derived_minor"`
	MaterializedSeq   int64     `json:"materialized_seq"`
	DerivedMaxSeq     int64     `json:"derived_max_seq"`
	EntryCount        int64     `json:"entry_count"`
	Drift             bool      `json:"drift"`
	Frozen            bool      `json:"frozen"`
	FrozeNow          bool      `json:"froze_now"`
}

// Summary aggregates a full reconciliation sweep.
type Summary struct {
	Checked int
	Drifted int
	Frozen  int
}

// Reconciler is the detective control behind the balance guard: it recomputes
// balances from the ledger and freezes any wallet that disagrees.
type Reconciler struct {
	db        *gorm.DB
	wallets   Repository
	entries   ledger.Repository
	freezer   Service
	outbox    outbox.Emitter
	metrics   *metrics.LedgerMetrics
	logg      *logger.Logger
	batchSize int
}

type ReconcilerParams struct {
	DB        *gorm.DB
	Wallets   Repository
	Entries   ledger.Repository
	Service   Service
	Outbox    outbox.Emitter
	Metrics   *metrics.LedgerMetrics
	Logger    *logger.Logger
	BatchSize int
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.DB == nil || params.Wallets == nil || params.Entries == nil {
		return nil, fmt.Errorf("db and repositories required")
	}
	if params.Service == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &Reconciler{
		db:        params.DB,
		wallets:   params.Wallets,
		entries:   params.Entries,
		freezer:   params.Service,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		logg:      params.Logger,
		batchSize: batch,
	}, nil
}

// Check reconciles one wallet. The wallet row is locked while the ledger is
// summed so in-flight adjustments cannot produce a false positive.
func (r *Reconciler) Check(ctx context.Context, walletID uuid.UUID) (*CheckResult, error) {
	var result *CheckResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := r.wallets.WithTx(tx).FindByIDForUpdate(ctx, walletID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
		}
		if wallet == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		summary, err := r.entries.WithTx(tx).SumByWallet(ctx, walletID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger")
		}

		result = &CheckResult{
			WalletID:          walletID,
			MaterializedMinor: wallet.BalanceMinor,
			DerivedMinor:      summary.Sum,
			MaterializedSeq:   wallet.LedgerSeq,
			DerivedMaxSeq:     summary.MaxSeq,
			EntryCount:        summary.Count,
			Frozen:            wallet.Status == enums.WalletStatusFrozen,
		}
		result.Drift = summary.Sum < 0 ||
			summary.Sum != wallet.BalanceMinor ||
			summary.MaxSeq != wallet.LedgerSeq ||
			summary.Count != wallet.LedgerSeq
		if !result.Drift {
			return nil
		}

		reason := fmt.Sprintf("balance drift: materialized=%d derived=%d seq=%d/%d",
			wallet.BalanceMinor, summary.Sum, wallet.LedgerSeq, summary.MaxSeq)
		frozeNow, err := r.freezer.FreezeTx(ctx, tx, walletID, reason, FreezeSourceReconciler)
		if err != nil {
			return err
		}
		result.Frozen = true
		result.FrozeNow = frozeNow
		if !frozeNow {
			return nil
		}

		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletDriftDetected,
			AggregateType: enums.AggregateWallet,
			AggregateID:   walletID,
			Data: payloads.WalletDriftDetectedEvent{
				WalletID:          walletID,
				MaterializedMinor: wallet.BalanceMinor,
				DerivedMinor:      summary.Sum,
				MaterializedSeq:   wallet.LedgerSeq,
				DerivedMaxSeq:     summary.MaxSeq,
				EntryCount:        summary.Count,
			},
		})
	})
	if err != nil {
		r.metrics.IncReconciliation(reconcileError)
		return nil, err
	}

	if result.Drift {
		r.metrics.IncReconciliation(reconcileDrift)
		if r.logg != nil {
			logCtx := r.logg.WithFields(ctx, map[string]any{
				"wallet_id":          walletID.String(),
				"materialized_minor": result.MaterializedMinor,
				"derived_minor":      result.DerivedMinor,
				"materialized_seq":   result.MaterializedSeq,
				"derived_max_seq":    result.DerivedMaxSeq,
			})
			r.logg.Error(logCtx, "wallet balance drift detected; wallet frozen", pkgerrors.New(pkgerrors.CodeInternal, "ledger invariant violated"))
		}
		return result, nil
	}
	r.metrics.IncReconciliation(reconcileMatched)
	return result, nil
}

// CheckAll sweeps every wallet in id order. Per-wallet failures are collected
// and the sweep continues.
func (r *Reconciler) CheckAll(ctx context.Context) (Summary, error) {
	var (
		summary Summary
		errs    error
		after   = uuid.Nil
	)
	for {
		if err := ctx.Err(); err != nil {
			return summary, multierr.Append(errs, err)
		}
		ids, err := r.wallets.ListIDsAfter(ctx, after, r.batchSize)
		if err != nil {
			return summary, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallets"))
		}
		if len(ids) == 0 {
			return summary, errs
		}
		for _, id := range ids {
			result, err := r.Check(ctx, id)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("wallet %s: %w", id, err))
				continue
			}
			summary.Checked++
			if result.Drift {
				summary.Drifted++
			}
			if result.FrozeNow {
				summary.Frozen++
			}
		}
		after = ids[len(ids)-1]
	}
}
