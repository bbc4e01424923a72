package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/shipwallet-backend/internal/wallet"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
)

type WalletReconcileJobParams struct {
	Logger     *logger.Logger
	Reconciler walletReconciler
}

type walletReconciler interface {
	CheckAll(ctx context.Context) (wallet.Summary, error)
}

// NewWalletReconcileJob compares every cached balance with its ledger and
// freezes wallets that drifted.
func NewWalletReconcileJob(params WalletReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("wallet reconciler required")
	}
	return &walletReconcileJob{logg: params.Logger, reconciler: params.Reconciler}, nil
}

type walletReconcileJob struct {
	logg       *logger.Logger
	reconciler walletReconciler
}

func (j *walletReconcileJob) Name() string { return "wallet_reconcile" }

func (j *walletReconcileJob) Run(ctx context.Context) error {
	summary, err := j.reconciler.CheckAll(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked": summary.Checked,
		"drifted": summary.Drifted,
		"frozen":  summary.Frozen,
	})
	if err != nil {
		return fmt.Errorf("wallet reconcile: %w", err)
	}
	if summary.Drifted > 0 {
		j.logg.Warn(logCtx, "wallet reconciliation found drift")
		return nil
	}
	j.logg.Info(logCtx, "wallet reconciliation complete")
	return nil
}
