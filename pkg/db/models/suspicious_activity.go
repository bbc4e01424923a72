package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
)

// SuspiciousActivity records a fraud guard evaluation for later review.
type SuspiciousActivity struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	SubjectID   string            `gorm:"column:subject_id;not null"`
	SubjectType enums.SubjectType `gorm:"column:subject_type;not null"`
	Guard       enums.FraudGuard  `gorm:"column:guard;type:fraud_guard_enum;not null"`
	RiskValue   float64           `gorm:"column:risk_value;not null"`
	Flagged     bool              `gorm:"column:flagged;not null"`
	Explanation string            `gorm:"column:explanation;not null"`
	Inputs      json.RawMessage   `gorm:"column:inputs;type:jsonb"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}

// ServiceCatalogItem is the authoritative server-side price for a billable service.
type ServiceCatalogItem struct {
	Code       string         `gorm:"column:code;primaryKey"`
	Name       string         `gorm:"column:name;not null"`
	PriceMinor int64          `gorm:"column:price_minor;not null"`
	Currency   enums.Currency `gorm:"column:currency;not null"`
	Active     bool           `gorm:"column:active;not null;default:true"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (ServiceCatalogItem) TableName() string { return "service_catalog" }
