package enums

import "fmt"

// WalletStatus maps to the wallet_status_enum enum in Postgres.
type WalletStatus string

const (
	WalletStatusActive WalletStatus = "ACTIVE"
	WalletStatusFrozen WalletStatus = "FROZEN"
)

var validWalletStatuses = []WalletStatus{
	WalletStatusActive,
	WalletStatusFrozen,
}

// IsValid reports whether the value matches the canonical wallet status enum.
func (s WalletStatus) IsValid() bool {
	for _, candidate := range validWalletStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// WalletOwnerType distinguishes end-user wallets from partner (business) wallets.
type WalletOwnerType string

const (
	WalletOwnerUser    WalletOwnerType = "user"
	WalletOwnerPartner WalletOwnerType = "partner"
)

var validWalletOwnerTypes = []WalletOwnerType{
	WalletOwnerUser,
	WalletOwnerPartner,
}

func (t WalletOwnerType) IsValid() bool {
	for _, candidate := range validWalletOwnerTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseWalletOwnerType converts raw input into WalletOwnerType.
func ParseWalletOwnerType(value string) (WalletOwnerType, error) {
	for _, candidate := range validWalletOwnerTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet owner type %q", value)
}

// PendingCreditStatus tracks credits queued while a wallet was frozen.
type PendingCreditStatus string

const (
	PendingCreditStatusPending PendingCreditStatus = "PENDING"
	PendingCreditStatusApplied PendingCreditStatus = "APPLIED"
)
