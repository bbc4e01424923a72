package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/shipwallet-backend/internal/withdrawals"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
	"github.com/angelmondragon/shipwallet-backend/pkg/metrics"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox/payloads"
)

const (
	defaultStuckAfter  = 24 * time.Hour
	stuckAlertConsumer = "withdrawal-stuck-alert"
)

type WithdrawalStuckJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Withdrawals stuckLister
	Outbox      outbox.Emitter
	Alerts      alertMarker
	Metrics     *metrics.LedgerMetrics
	StuckAfter  time.Duration
}

type stuckLister interface {
	ListStuck(ctx context.Context, olderThan time.Duration) ([]withdrawals.StuckWithdrawal, error)
}

// alertMarker records which stuck withdrawals were already alerted. The
// marker TTL sets how often a still-stuck withdrawal is re-alerted.
type alertMarker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, deliveryID string) (bool, error)
	Delete(ctx context.Context, consumer, deliveryID string) error
}

// NewWithdrawalStuckJob reports dispatched withdrawals with no gateway
// callback. It only alerts; the requests stay DISPATCHED.
func NewWithdrawalStuckJob(params WithdrawalStuckJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Withdrawals == nil {
		return nil, fmt.Errorf("withdrawal service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	stuckAfter := params.StuckAfter
	if stuckAfter <= 0 {
		stuckAfter = defaultStuckAfter
	}
	return &withdrawalStuckJob{
		logg:        params.Logger,
		db:          params.DB,
		withdrawals: params.Withdrawals,
		outbox:      params.Outbox,
		alerts:      params.Alerts,
		metrics:     params.Metrics,
		stuckAfter:  stuckAfter,
	}, nil
}

type withdrawalStuckJob struct {
	logg        *logger.Logger
	db          txRunner
	withdrawals stuckLister
	outbox      outbox.Emitter
	alerts      alertMarker
	metrics     *metrics.LedgerMetrics
	stuckAfter  time.Duration
}

func (j *withdrawalStuckJob) Name() string { return "withdrawal_stuck_report" }

func (j *withdrawalStuckJob) Run(ctx context.Context) error {
	stuck, err := j.withdrawals.ListStuck(ctx, j.stuckAfter)
	if err != nil {
		return fmt.Errorf("list stuck withdrawals: %w", err)
	}
	j.metrics.SetStuckWithdrawals(len(stuck))

	alerted := 0
	for _, item := range stuck {
		fresh, err := j.shouldAlert(ctx, item)
		if err != nil {
			return err
		}
		if !fresh {
			continue
		}
		item := item
		err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
			return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventWithdrawalStuck,
				AggregateType: enums.AggregateWithdrawal,
				AggregateID:   item.ID,
				Data: payloads.WithdrawalStuckEvent{
					WithdrawalID: item.ID,
					ExternalRef:  item.ExternalRef,
					AmountMinor:  item.AmountMinor,
					DispatchedAt: item.DispatchedAt,
					Age:          item.Age,
				},
			})
		})
		if err != nil {
			// the marker only counts once the alert is in the outbox
			j.releaseAlert(ctx, item)
			return fmt.Errorf("emit stuck alert: %w", err)
		}
		alerted++
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"withdrawal_id": item.ID.String(),
			"external_ref":  item.ExternalRef,
			"amount_minor":  item.AmountMinor,
			"age":           item.Age,
		})
		j.logg.Warn(logCtx, "withdrawal stuck awaiting gateway callback")
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"stuck":   len(stuck),
		"alerted": alerted,
	})
	j.logg.Info(logCtx, "stuck withdrawal report complete")
	return nil
}

func (j *withdrawalStuckJob) shouldAlert(ctx context.Context, item withdrawals.StuckWithdrawal) (bool, error) {
	if j.alerts == nil {
		return true, nil
	}
	seen, err := j.alerts.CheckAndMarkProcessed(ctx, stuckAlertConsumer, item.ID.String())
	if err != nil {
		return false, fmt.Errorf("mark stuck alert: %w", err)
	}
	return !seen, nil
}

func (j *withdrawalStuckJob) releaseAlert(ctx context.Context, item withdrawals.StuckWithdrawal) {
	if j.alerts == nil {
		return
	}
	if err := j.alerts.Delete(ctx, stuckAlertConsumer, item.ID.String()); err != nil {
		logCtx := j.logg.WithField(ctx, "withdrawal_id", item.ID.String())
		j.logg.Error(logCtx, "release stuck alert marker", err)
	}
}
