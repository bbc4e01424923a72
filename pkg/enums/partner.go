package enums

// PartnerStatus gates partner API access.
type PartnerStatus string

const (
	PartnerStatusActive   PartnerStatus = "active"
	PartnerStatusDisabled PartnerStatus = "disabled"
)

// PartnerTxStatus tracks a partner transaction from claim to terminal outcome.
type PartnerTxStatus string

const (
	PartnerTxProcessing PartnerTxStatus = "PROCESSING"
	PartnerTxSucceeded  PartnerTxStatus = "SUCCEEDED"
	PartnerTxFailed     PartnerTxStatus = "FAILED"
)

// IsTerminal reports whether the transaction outcome has been recorded.
func (s PartnerTxStatus) IsTerminal() bool {
	return s == PartnerTxSucceeded || s == PartnerTxFailed
}
