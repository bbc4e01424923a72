package enums

import "strings"

// WithdrawalStatus maps to the withdrawal_status_enum enum in Postgres.
type WithdrawalStatus string

const (
	WithdrawalStatusRequested  WithdrawalStatus = "REQUESTED"
	WithdrawalStatusReserved   WithdrawalStatus = "RESERVED"
	WithdrawalStatusDispatched WithdrawalStatus = "DISPATCHED"
	WithdrawalStatusCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalStatusFailed     WithdrawalStatus = "FAILED"
)

var validWithdrawalStatuses = []WithdrawalStatus{
	WithdrawalStatusRequested,
	WithdrawalStatusReserved,
	WithdrawalStatusDispatched,
	WithdrawalStatusCompleted,
	WithdrawalStatusFailed,
}

// IsValid reports whether the value matches the canonical withdrawal status enum.
func (s WithdrawalStatus) IsValid() bool {
	for _, candidate := range validWithdrawalStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalStatusCompleted || s == WithdrawalStatusFailed
}

// GatewayOutcome is the normalized result reported by the disbursement gateway.
type GatewayOutcome string

const (
	GatewayOutcomeCompleted GatewayOutcome = "COMPLETED"
	GatewayOutcomeFailed    GatewayOutcome = "FAILED"
	GatewayOutcomeOther     GatewayOutcome = "OTHER"
)

// NormalizeGatewayOutcome folds the gateway vocabulary into COMPLETED, FAILED or OTHER.
// Gateway-side cancellation is treated as a failure so the reserved funds are returned.
func NormalizeGatewayOutcome(raw string) GatewayOutcome {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "COMPLETED":
		return GatewayOutcomeCompleted
	case "FAILED", "CANCELLED":
		return GatewayOutcomeFailed
	default:
		return GatewayOutcomeOther
	}
}

// ReconcileResult classifies each webhook reconciliation attempt for the audit log.
type ReconcileResult string

const (
	ReconcileProcessed ReconcileResult = "processed"
	ReconcileDuplicate ReconcileResult = "duplicate"
	ReconcileUnknown   ReconcileResult = "unknown"
	ReconcileIgnored   ReconcileResult = "ignored"
)
