package enums

// FraudGuard names the integrity check that produced a signal.
type FraudGuard string

const (
	FraudGuardPriceTamper      FraudGuard = "price_tamper"
	FraudGuardImpossibleTravel FraudGuard = "impossible_travel"
	FraudGuardIPRisk           FraudGuard = "ip_risk"
)

// IPRiskBucket is the coarse address classification used by the IP guard.
type IPRiskBucket string

const (
	IPRiskResidential IPRiskBucket = "residential"
	IPRiskDatacenter  IPRiskBucket = "datacenter"
	IPRiskUnknown     IPRiskBucket = "unknown"
)

// SubjectType identifies who a fraud signal is about.
type SubjectType string

const (
	SubjectUser    SubjectType = "user"
	SubjectPartner SubjectType = "partner"
	SubjectCourier SubjectType = "courier"
)
