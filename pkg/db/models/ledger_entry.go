package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
)

// LedgerEntry is an immutable balance change. Seq is strictly increasing per wallet.
type LedgerEntry struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	WalletID    uuid.UUID             `gorm:"column:wallet_id;type:uuid;not null"`
	Seq         int64                 `gorm:"column:seq;not null"`
	AmountMinor int64                 `gorm:"column:amount_minor;not null"`
	Kind        enums.LedgerEntryKind `gorm:"column:kind;type:ledger_entry_kind_enum;not null"`
	Category    enums.LedgerCategory  `gorm:"column:category;type:ledger_category_enum;not null"`
	ReferenceID string                `gorm:"column:reference_id;not null"`
	DedupeKey   *string               `gorm:"column:dedupe_key"`
	Description string                `gorm:"column:description;not null"`
	Metadata    json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}
