package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
)

// WalletFrozenEvent is an operator alert raised whenever a wallet stops accepting debits.
type WalletFrozenEvent struct {
	WalletID uuid.UUID `json:"wallet_id"`
	OwnerID  uuid.UUID `json:"owner_id"`
	Reason   string    `json:"reason"`
	Source   string    `json:"source"`
	FrozenAt time.Time `json:"frozen_at"`
}

// WalletUnfrozenEvent records the administrator action and the credits replayed by it.
type WalletUnfrozenEvent struct {
	WalletID          uuid.UUID `json:"wallet_id"`
	ActorID           string    `json:"actor_id,omitempty"`
	ReplayedCredits   int       `json:"replayed_credits"`
	ReplayedMinor     int64     `json:"replayed_minor"`
	BalanceAfterMinor int64     `json:"balance_after_minor"`
}

// WalletDriftDetectedEvent carries both sides of a failed balance reconciliation.
type WalletDriftDetectedEvent struct {
	WalletID          uuid.UUID `json:"wallet_id"`
	MaterializedMinor int64     `json:"materialized_minor"`
	DerivedMinor      int64     `json:"derived_minor"`
	MaterializedSeq   int64     `json:"materialized_seq"`
	DerivedMaxSeq     int64     `json:"derived_max_seq"`
	EntryCount        int64     `json:"entry_count"`
}

// WithdrawalEvent is emitted on every withdrawal state change worth publishing.
type WithdrawalEvent struct {
	WithdrawalID uuid.UUID              `json:"withdrawal_id"`
	WalletID     uuid.UUID              `json:"wallet_id"`
	ExternalRef  string                 `json:"external_ref"`
	AmountMinor  int64                  `json:"amount_minor"`
	Status       enums.WithdrawalStatus `json:"status"`
	Reason       string                 `json:"reason,omitempty"`
	RefundEntry  *uuid.UUID             `json:"refund_entry_id,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
}

// WithdrawalStuckEvent alerts operators to a dispatched request with no callback.
type WithdrawalStuckEvent struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	ExternalRef  string    `json:"external_ref"`
	AmountMinor  int64     `json:"amount_minor"`
	DispatchedAt time.Time `json:"dispatched_at"`
	Age          string    `json:"age"`
}

// ReconciliationUnknownEvent is raised for gateway callbacks that match no withdrawal.
type ReconciliationUnknownEvent struct {
	ExternalRef string `json:"external_ref"`
	Outcome     string `json:"outcome"`
}

// PartnerTransactionRecordedEvent is published once a partner submission reaches a terminal outcome.
type PartnerTransactionRecordedEvent struct {
	TransactionID uuid.UUID             `json:"transaction_id"`
	PartnerID     uuid.UUID             `json:"partner_id"`
	RefID         string                `json:"ref_id"`
	ServiceCode   string                `json:"service_code"`
	AmountMinor   int64                 `json:"amount_minor"`
	Status        enums.PartnerTxStatus `json:"status"`
	StatusCode    int                   `json:"status_code"`
}

// SuspiciousActivityFlaggedEvent mirrors a flagged suspicious activity record.
type SuspiciousActivityFlaggedEvent struct {
	RecordID    uuid.UUID         `json:"record_id"`
	SubjectID   string            `json:"subject_id"`
	SubjectType enums.SubjectType `json:"subject_type"`
	Guard       enums.FraudGuard  `json:"guard"`
	RiskValue   float64           `json:"risk_value"`
	Explanation string            `json:"explanation"`
}
