package models

// TopLevelIntent separates analytical questions from conversation.
type TopLevelIntent string

const (
	IntentData TopLevelIntent = "DATA"
	IntentChat TopLevelIntent = "CHAT"
)

// CanonicalIntent is the analytical shape of a DATA utterance.
type CanonicalIntent string

const (
	IntentFrequencyVolume    CanonicalIntent = "FREQUENCY_VOLUME"
	IntentTrendTimeSeries    CanonicalIntent = "TREND_TIME_SERIES"
	IntentCostFinancial      CanonicalIntent = "COST_FINANCIAL"
	IntentServiceUtilization CanonicalIntent = "SERVICE_UTILIZATION"
	IntentUnknown            CanonicalIntent = "UNKNOWN"
)

// TimeWindowKind labels how a time window was derived from the utterance.
type TimeWindowKind string

const (
	WindowNamedRange    TimeWindowKind = "named_range"    // "last year", "March 2024"
	WindowRelativeRange TimeWindowKind = "relative_range" // "last 30 days"
)

// TimeWindow is a resolved time filter ready to splice into a WHERE clause.
type TimeWindow struct {
	SQLFragment string
	Kind        TimeWindowKind
}

// IntentClassification is the full classifier output for one utterance.
type IntentClassification struct {
	TopLevel      TopLevelIntent
	Canonical     CanonicalIntent
	TimeWindow    *TimeWindow
	TopN          int    // 0 when absent
	Clarification string // non-empty when the utterance is ambiguous
}

// Domain is one of the supported analytical areas.
type Domain string

const (
	DomainClinicalClaims      Domain = "clinical_claims_diagnosis"
	DomainProvidersFacilities Domain = "providers_facilities"
	DomainRejected            Domain = "rejected"
)

// DomainDecision is the domain router's verdict for a DATA utterance.
type DomainDecision struct {
	Domain          Domain
	RejectionReason string
	DetectedTables  []string
}
