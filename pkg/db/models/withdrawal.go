package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
)

// Destination is the bank account a withdrawal pays out to.
type Destination struct {
	BankCode      string `gorm:"column:bank_code;not null" json:"bank_code"`
	AccountNumber string `gorm:"column:account_number;not null" json:"account_number"`
	AccountName   string `gorm:"column:account_name;not null" json:"account_name"`
}

// Withdrawal is a request to move wallet funds out through the disbursement gateway.
type Withdrawal struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	WalletID          uuid.UUID              `gorm:"column:wallet_id;type:uuid;not null"`
	AmountMinor       int64                  `gorm:"column:amount_minor;not null"`
	Destination       Destination            `gorm:"embedded;embeddedPrefix:destination_"`
	Status            enums.WithdrawalStatus `gorm:"column:status;type:withdrawal_status_enum;not null"`
	ExternalRef       string                 `gorm:"column:external_ref;not null"`
	FailureReason     *string                `gorm:"column:failure_reason"`
	DispatchAttempts  int                    `gorm:"column:dispatch_attempts;not null;default:0"`
	LastDispatchError *string                `gorm:"column:last_dispatch_error"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
	DispatchedAt      *time.Time             `gorm:"column:dispatched_at"`
	ProcessedAt       *time.Time             `gorm:"column:processed_at"`
}

// WebhookReconciliation is the append-only audit trail of every gateway callback.
type WebhookReconciliation struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	ExternalRef  string                `gorm:"column:external_ref;not null"`
	Outcome      string                `gorm:"column:outcome;not null"`
	Result       enums.ReconcileResult `gorm:"column:result;not null"`
	WithdrawalID *uuid.UUID            `gorm:"column:withdrawal_id;type:uuid"`
	Payload      json.RawMessage       `gorm:"column:payload;type:jsonb"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
}
