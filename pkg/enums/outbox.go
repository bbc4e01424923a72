package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateWallet             OutboxAggregateType = "wallet"
	AggregateWithdrawal         OutboxAggregateType = "withdrawal"
	AggregatePartnerTransaction OutboxAggregateType = "partner_transaction"
	AggregateSuspiciousActivity OutboxAggregateType = "suspicious_activity"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateWallet,
	AggregateWithdrawal,
	AggregatePartnerTransaction,
	AggregateSuspiciousActivity,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventWalletFrozen          OutboxEventType = "wallet_frozen"
	EventWalletUnfrozen        OutboxEventType = "wallet_unfrozen"
	EventWalletDriftDetected   OutboxEventType = "wallet_drift_detected"
	EventWithdrawalReserved    OutboxEventType = "withdrawal_reserved"
	EventWithdrawalCompleted   OutboxEventType = "withdrawal_completed"
	EventWithdrawalFailed      OutboxEventType = "withdrawal_failed"
	EventWithdrawalStuck       OutboxEventType = "withdrawal_stuck"
	EventReconciliationUnknown OutboxEventType = "reconciliation_unknown"
	EventPartnerTxRecorded     OutboxEventType = "partner_transaction_recorded"
	EventSuspiciousActivity    OutboxEventType = "suspicious_activity_flagged"
)

var validOutboxEventTypes = []OutboxEventType{
	EventWalletFrozen,
	EventWalletUnfrozen,
	EventWalletDriftDetected,
	EventWithdrawalReserved,
	EventWithdrawalCompleted,
	EventWithdrawalFailed,
	EventWithdrawalStuck,
	EventReconciliationUnknown,
	EventPartnerTxRecorded,
	EventSuspiciousActivity,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
