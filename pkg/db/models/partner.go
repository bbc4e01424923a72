package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
)

// Partner is an external business calling the partner API with a key/secret pair.
type Partner struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Name          string              `gorm:"column:name;not null"`
	APIKey        string              `gorm:"column:api_key;not null"`
	APISecretHash string              `gorm:"column:api_secret_hash;not null"`
	WalletID      uuid.UUID           `gorm:"column:wallet_id;type:uuid;not null"`
	Status        enums.PartnerStatus `gorm:"column:status;not null"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// PartnerTransaction is the idempotency record keyed by (partner_id, ref_id).
type PartnerTransaction struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	PartnerID       uuid.UUID             `gorm:"column:partner_id;type:uuid;not null"`
	RefID           string                `gorm:"column:ref_id;not null"`
	ServiceCode     string                `gorm:"column:service_code;not null"`
	Target          string                `gorm:"column:target;not null"`
	AmountMinor     int64                 `gorm:"column:amount_minor;not null;default:0"`
	RequestPayload  json.RawMessage       `gorm:"column:request_payload;type:jsonb"`
	ResponsePayload json.RawMessage       `gorm:"column:response_payload;type:jsonb"`
	StatusCode      int                   `gorm:"column:status_code;not null;default:0"`
	Status          enums.PartnerTxStatus `gorm:"column:status;type:partner_tx_status_enum;not null"`
	ErrorCode       *string               `gorm:"column:error_code"`
	LedgerEntryID   *uuid.UUID            `gorm:"column:ledger_entry_id;type:uuid"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	CompletedAt     *time.Time            `gorm:"column:completed_at"`
}
