package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/shipwallet-backend/internal/withdrawals"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
)

type WithdrawalRetryJobParams struct {
	Logger      *logger.Logger
	Withdrawals dispatchRetrier
	RetryAfter  time.Duration
	BatchSize   int
}

type dispatchRetrier interface {
	RetryDispatch(ctx context.Context, olderThan time.Duration, limit int) (withdrawals.RetrySummary, error)
}

// NewWithdrawalRetryJob re-dispatches withdrawals left RESERVED by an
// unavailable gateway.
func NewWithdrawalRetryJob(params WithdrawalRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Withdrawals == nil {
		return nil, fmt.Errorf("withdrawal service required")
	}
	return &withdrawalRetryJob{
		logg:        params.Logger,
		withdrawals: params.Withdrawals,
		retryAfter:  params.RetryAfter,
		batchSize:   params.BatchSize,
	}, nil
}

type withdrawalRetryJob struct {
	logg        *logger.Logger
	withdrawals dispatchRetrier
	retryAfter  time.Duration
	batchSize   int
}

func (j *withdrawalRetryJob) Name() string { return "withdrawal_dispatch_retry" }

func (j *withdrawalRetryJob) Run(ctx context.Context) error {
	summary, err := j.withdrawals.RetryDispatch(ctx, j.retryAfter, j.batchSize)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"attempted":  summary.Attempted,
		"dispatched": summary.Dispatched,
		"failed":     summary.Failed,
		"pending":    summary.Pending,
	})
	if err != nil {
		return fmt.Errorf("withdrawal dispatch retry: %w", err)
	}
	j.logg.Info(logCtx, "withdrawal dispatch retry complete")
	return nil
}
