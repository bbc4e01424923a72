package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
)

// Wallet holds the materialized balance. It is only ever changed by the balance
// guard, in the same transaction that appends the matching ledger entry.
type Wallet struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID      uuid.UUID             `gorm:"column:owner_id;type:uuid;not null"`
	OwnerType    enums.WalletOwnerType `gorm:"column:owner_type;type:wallet_owner_type_enum;not null"`
	Currency     enums.Currency        `gorm:"column:currency;not null"`
	BalanceMinor int64                 `gorm:"column:balance_minor;not null;default:0"`
	LedgerSeq    int64                 `gorm:"column:ledger_seq;not null;default:0"`
	Status       enums.WalletStatus    `gorm:"column:status;type:wallet_status_enum;not null"`
	FrozenReason *string               `gorm:"column:frozen_reason"`
	FrozenAt     *time.Time            `gorm:"column:frozen_at"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// PendingCredit is a credit that arrived while the wallet was frozen; it is
// replayed through the guard on unfreeze.
type PendingCredit struct {
	ID             uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	WalletID       uuid.UUID                 `gorm:"column:wallet_id;type:uuid;not null"`
	AmountMinor    int64                     `gorm:"column:amount_minor;not null"`
	Category       enums.LedgerCategory      `gorm:"column:category;type:ledger_category_enum;not null"`
	ReferenceID    string                    `gorm:"column:reference_id;not null"`
	Description    string                    `gorm:"column:description;not null"`
	DedupeKey      *string                   `gorm:"column:dedupe_key"`
	Status         enums.PendingCreditStatus `gorm:"column:status;type:pending_credit_status_enum;not null"`
	AppliedEntryID *uuid.UUID                `gorm:"column:applied_entry_id;type:uuid"`
	CreatedAt      time.Time                 `gorm:"column:created_at;autoCreateTime"`
	AppliedAt      *time.Time                `gorm:"column:applied_at"`
}
