package pipeline

import (
	"strings"

	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/models"
	"github.com/carelens/carelens-engine/pkg/schema"
)

// outOfScopeKeywords name data the gateway refuses to discuss: credentials,
// payroll, HR, and user profile detail.
var outOfScopeKeywords = []string{
	"password", "credential", "credentials", "login", "salary", "salaries",
	"payroll", "wage", "hr record", "personnel", "employee record",
	"email address", "phone number", "home address", "user profile",
	"date of birth", "social security",
}

// healthcareKeywords rescue utterances that mention an out-of-scope word in
// a legitimate clinical context ("claims filed by providers with expired
// credentials"). "provider" alone is not enough: provider credentials stay
// out of scope.
var healthcareKeywords = []string{
	"claim", "diagnosis", "diagnoses", "disease", "patient",
	"hospital", "facility", "treatment", "procedure",
}

// providerKeywords drive the fallback heuristic toward the providers
// domain. When both domains match, provider-class wins.
var providerKeywords = []string{
	"provider", "providers", "doctor", "physician", "hospital",
	"facility", "facilities", "clinic",
}

// claimsKeywords drive the fallback heuristic toward the clinical domain.
var claimsKeywords = []string{
	"claim", "claims", "diagnosis", "diagnoses", "disease", "condition",
	"patient", "service", "treatment",
}

// analyticsKeywords catch generic analytical phrasing with no table hint;
// those default to the clinical domain.
var analyticsKeywords = []string{
	"how many", "count", "total", "most common", "top", "trend",
	"average", "volume",
}

const scopeMessage = "I can only answer questions about healthcare claims, diagnoses, services, providers, and facilities."
const domainClarification = "I couldn't tell which data your question is about. Try asking about claims, diagnoses, services, or providers."

// DomainRouter maps a DATA utterance to a supported analytical domain or
// rejects it as out-of-scope.
type DomainRouter struct {
	catalogue *schema.Catalogue
	logger    *zap.Logger
}

// NewDomainRouter creates the domain router.
func NewDomainRouter(catalogue *schema.Catalogue, logger *zap.Logger) *DomainRouter {
	return &DomainRouter{catalogue: catalogue, logger: logger.Named("domain-router")}
}

// Route decides the domain for a DATA utterance. Check order is fixed:
// out-of-scope screening, catalogue keyword detection, keyword fallback,
// rejection with a clarification prompt.
func (r *DomainRouter) Route(utterance string) models.DomainDecision {
	normalized := strings.ToLower(utterance)

	if containsAny(normalized, outOfScopeKeywords) && !containsAny(normalized, healthcareKeywords) {
		return models.DomainDecision{
			Domain:          models.DomainRejected,
			RejectionReason: scopeMessage,
		}
	}

	detected := r.catalogue.TablesFor(utterance)
	if domain, ok := r.domainFromTables(detected, normalized); ok {
		return models.DomainDecision{Domain: domain, DetectedTables: detected}
	}

	switch {
	case containsAny(normalized, providerKeywords):
		return models.DomainDecision{Domain: models.DomainProvidersFacilities, DetectedTables: detected}
	case containsAny(normalized, claimsKeywords):
		return models.DomainDecision{Domain: models.DomainClinicalClaims, DetectedTables: detected}
	case containsAny(normalized, analyticsKeywords):
		return models.DomainDecision{Domain: models.DomainClinicalClaims, DetectedTables: detected}
	}

	return models.DomainDecision{
		Domain:          models.DomainRejected,
		RejectionReason: domainClarification,
		DetectedTables:  detected,
	}
}

// domainFromTables resolves a domain when the detected tables map cleanly
// to one. Supporting tables (users, states) do not disambiguate on their
// own. When both domains are present, provider-class wins if provider
// keywords appear in the utterance.
func (r *DomainRouter) domainFromTables(tables []string, normalized string) (models.Domain, bool) {
	hasClinical := false
	hasProviders := false
	for _, t := range tables {
		switch r.catalogue.DomainOf(t) {
		case schema.TagClinical:
			hasClinical = true
		case schema.TagProviders:
			hasProviders = true
		}
	}

	switch {
	case hasClinical && hasProviders:
		if containsAny(normalized, providerKeywords) {
			return models.DomainProvidersFacilities, true
		}
		return models.DomainClinicalClaims, true
	case hasProviders:
		return models.DomainProvidersFacilities, true
	case hasClinical:
		return models.DomainClinicalClaims, true
	}
	return "", false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
