package enums

import "fmt"

// LedgerEntryKind is derived from the sign of the entry amount.
type LedgerEntryKind string

const (
	LedgerEntryDebit  LedgerEntryKind = "DEBIT"
	LedgerEntryCredit LedgerEntryKind = "CREDIT"
)

// KindForAmount returns CREDIT for positive amounts and DEBIT otherwise.
func KindForAmount(amountMinor int64) LedgerEntryKind {
	if amountMinor > 0 {
		return LedgerEntryCredit
	}
	return LedgerEntryDebit
}

// LedgerCategory maps to the ledger_category_enum enum in Postgres.
type LedgerCategory string

const (
	LedgerCategoryServiceFee    LedgerCategory = "SERVICE_FEE"
	LedgerCategoryWithdrawal    LedgerCategory = "WITHDRAWAL"
	LedgerCategoryRefund        LedgerCategory = "REFUND"
	LedgerCategoryTopUp         LedgerCategory = "TOPUP"
	LedgerCategoryCommission    LedgerCategory = "COMMISSION"
	LedgerCategoryAdjustment    LedgerCategory = "ADJUSTMENT"
	LedgerCategoryPartnerCharge LedgerCategory = "PARTNER_CHARGE"
)

var validLedgerCategories = []LedgerCategory{
	LedgerCategoryServiceFee,
	LedgerCategoryWithdrawal,
	LedgerCategoryRefund,
	LedgerCategoryTopUp,
	LedgerCategoryCommission,
	LedgerCategoryAdjustment,
	LedgerCategoryPartnerCharge,
}

// IsValid reports whether the value matches the canonical ledger category enum.
func (c LedgerCategory) IsValid() bool {
	for _, candidate := range validLedgerCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseLedgerCategory converts raw input into LedgerCategory.
func ParseLedgerCategory(value string) (LedgerCategory, error) {
	for _, candidate := range validLedgerCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger category %q", value)
}
