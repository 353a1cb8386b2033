package pipeline

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/carelens/carelens-engine/pkg/models"
)

// Template is one curated question-to-SQL mapping. SQL carries the
// placeholders {{top_n}}, {{time_filter}}, and {{state_filter}}, filled
// during parameterization.
type Template struct {
	Name     string                 `yaml:"name"`
	Intent   models.CanonicalIntent `yaml:"intent"`
	Domain   models.Domain          `yaml:"domain"`
	Question string                 `yaml:"question"`
	SQL      string                 `yaml:"sql"`
	Tables   []string               `yaml:"tables"`
	Columns  []string               `yaml:"columns"`
}

// builtinTemplates cover the recurring questions operators actually ask.
// Extra templates load from a YAML file at startup.
var builtinTemplates = []Template{
	{
		Name:     "top_diagnoses_by_claims",
		Intent:   models.IntentFrequencyVolume,
		Domain:   models.DomainClinicalClaims,
		Question: "what are the top diagnoses by number of claims",
		SQL: `SELECT diagnoses.name AS diagnosis, COUNT(DISTINCT claims.id) AS claim_count
FROM claims
JOIN diagnoses ON diagnoses.claim_id = claims.id
WHERE {{time_filter}}{{state_filter}}
GROUP BY diagnoses.name
ORDER BY claim_count DESC
LIMIT {{top_n}}`,
		Tables:  []string{"claims", "diagnoses"},
		Columns: []string{"diagnoses.name", "claims.id"},
	},
	{
		Name:     "claims_count",
		Intent:   models.IntentFrequencyVolume,
		Domain:   models.DomainClinicalClaims,
		Question: "how many claims were filed",
		SQL: `SELECT COUNT(DISTINCT claims.id) AS claim_count
FROM claims
WHERE {{time_filter}}{{state_filter}}`,
		Tables:  []string{"claims"},
		Columns: []string{"claims.id"},
	},
	{
		Name:     "claims_trend_monthly",
		Intent:   models.IntentTrendTimeSeries,
		Domain:   models.DomainClinicalClaims,
		Question: "show the monthly trend of claims over time",
		SQL: `SELECT DATE_TRUNC('month', claims.created_at) AS month, COUNT(DISTINCT claims.id) AS claim_count
FROM claims
WHERE {{time_filter}}{{state_filter}}
GROUP BY month
ORDER BY month`,
		Tables:  []string{"claims"},
		Columns: []string{"claims.created_at", "claims.id"},
	},
	{
		Name:     "total_claim_cost",
		Intent:   models.IntentCostFinancial,
		Domain:   models.DomainClinicalClaims,
		Question: "what is the total cost of claims",
		SQL: `SELECT SUM(claims.total_amount) AS total_cost
FROM claims
WHERE {{time_filter}}{{state_filter}}`,
		Tables:  []string{"claims"},
		Columns: []string{"claims.total_amount"},
	},
	{
		Name:     "top_services_by_utilization",
		Intent:   models.IntentServiceUtilization,
		Domain:   models.DomainClinicalClaims,
		Question: "which services are used the most",
		SQL: `SELECT services.name AS service, COUNT(DISTINCT claims.id) AS claim_count
FROM claims
JOIN services ON services.claim_id = claims.id
WHERE {{time_filter}}{{state_filter}}
GROUP BY services.name
ORDER BY claim_count DESC
LIMIT {{top_n}}`,
		Tables:  []string{"claims", "services"},
		Columns: []string{"services.name", "claims.id"},
	},
	{
		Name:     "top_providers_by_claims",
		Intent:   models.IntentFrequencyVolume,
		Domain:   models.DomainProvidersFacilities,
		Question: "which providers submitted the most claims",
		SQL: `SELECT providers.name AS provider, COUNT(DISTINCT claims.id) AS claim_count
FROM claims
JOIN providers ON claims.provider_id = providers.id
WHERE {{time_filter}}{{state_filter}}
GROUP BY providers.name
ORDER BY claim_count DESC
LIMIT {{top_n}}`,
		Tables:  []string{"claims", "providers"},
		Columns: []string{"providers.name", "claims.id"},
	},
	{
		Name:     "provider_claim_cost",
		Intent:   models.IntentCostFinancial,
		Domain:   models.DomainProvidersFacilities,
		Question: "which providers billed the highest total amount",
		SQL: `SELECT providers.name AS provider, SUM(claims.total_amount) AS total_billed
FROM claims
JOIN providers ON claims.provider_id = providers.id
WHERE {{time_filter}}{{state_filter}}
GROUP BY providers.name
ORDER BY total_billed DESC
LIMIT {{top_n}}`,
		Tables:  []string{"claims", "providers"},
		Columns: []string{"providers.name", "claims.total_amount"},
	},
}

const (
	defaultTopN = 10
	// matchThreshold is the minimum token overlap for a template hit.
	matchThreshold = 0.6
	// templateConfidence is granted to template hits; above anything the
	// generator prompt yields.
	templateConfidence = 0.95
)

// TemplateLibrary matches utterances against curated templates by
// intent+domain and token similarity.
type TemplateLibrary struct {
	templates []Template
}

// NewTemplateLibrary builds the library from the builtin set plus an
// optional YAML file of extra templates.
func NewTemplateLibrary(extraPath string) (*TemplateLibrary, error) {
	lib := &TemplateLibrary{templates: append([]Template(nil), builtinTemplates...)}
	if extraPath == "" {
		return lib, nil
	}

	data, err := os.ReadFile(extraPath)
	if err != nil {
		return nil, fmt.Errorf("read template file: %w", err)
	}
	var extra []Template
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parse template file: %w", err)
	}
	lib.templates = append(lib.templates, extra...)
	return lib, nil
}

// Match returns the best template for the utterance within the resolved
// intent and domain, or nil when no template clears the threshold.
func (l *TemplateLibrary) Match(utterance string, intent models.CanonicalIntent, domain models.Domain) *Template {
	utteranceTokens := tokenSet(utterance)

	var best *Template
	bestScore := 0.0
	for i := range l.templates {
		t := &l.templates[i]
		if t.Intent != intent || t.Domain != domain {
			continue
		}
		score := jaccard(utteranceTokens, tokenSet(t.Question))
		if score > bestScore {
			best = t
			bestScore = score
		}
	}

	if bestScore < matchThreshold {
		return nil
	}
	return best
}

// Parameterize fills the template placeholders and returns a Candidate SQL.
func (l *TemplateLibrary) Parameterize(t *Template, classification models.IntentClassification, stateName string) models.CandidateSQL {
	sqlText := t.SQL

	timeFilter := "TRUE"
	if classification.TimeWindow != nil {
		timeFilter = classification.TimeWindow.SQLFragment
	}
	sqlText = strings.ReplaceAll(sqlText, "{{time_filter}}", timeFilter)

	stateFilter := ""
	if stateName != "" {
		stateFilter = fmt.Sprintf("\n  AND claims.user_id IN (SELECT users.id FROM users JOIN states ON users.state_id = states.id WHERE states.name ILIKE '%s')", stateName)
	}
	sqlText = strings.ReplaceAll(sqlText, "{{state_filter}}", stateFilter)

	topN := classification.TopN
	if topN <= 0 {
		topN = defaultTopN
	}
	sqlText = strings.ReplaceAll(sqlText, "{{top_n}}", fmt.Sprintf("%d", topN))

	return models.CandidateSQL{
		SQLText:           sqlText,
		Explanation:       fmt.Sprintf("Answered from the curated %q query.", t.Name),
		Confidence:        templateConfidence,
		TablesReferenced:  templateTables(t, stateName),
		ColumnsReferenced: append([]string(nil), t.Columns...),
		Source:            models.SourceGroundedTemplate,
	}
}

func templateTables(t *Template, stateName string) []string {
	tables := append([]string(nil), t.Tables...)
	if stateName != "" {
		tables = append(tables, "users", "states")
	}
	return tables
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, "?!.,")
		if len(tok) > 2 {
			set[tok] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
