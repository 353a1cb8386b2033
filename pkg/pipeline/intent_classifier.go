package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/models"
)

// Canonical intent patterns, checked in order. First match wins.
var (
	serviceUtilizationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(service|procedure|treatment)s?\b.*\b(used|utiliz|performed|delivered|rendered)`),
		regexp.MustCompile(`(?i)\butilization\b`),
		regexp.MustCompile(`(?i)\bmost\s+(used|common)\s+(service|procedure|treatment)`),
	}
	costFinancialPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(cost|costs|amount|amounts|spend|spending|expensive|price|bill|billed|charge|charged|financial)\b`),
		regexp.MustCompile(`(?i)\b(total|average|avg)\s+(paid|payment)`),
	}
	trendTimeSeriesPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(trend|trends|over\s+time|monthly|weekly|yearly|per\s+month|per\s+year|by\s+month|by\s+year|growth)\b`),
	}
	frequencyVolumePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bhow\s+many\b`),
		regexp.MustCompile(`(?i)\b(count|number\s+of|volume|frequency)\b`),
		regexp.MustCompile(`(?i)\b(top|most\s+common|most\s+frequent|highest)\b`),
	}
	diagnosisTermPattern = regexp.MustCompile(`(?i)\b(diagnos|disease|condition|illness)`)
)

// Time window patterns.
var (
	lastYearPattern  = regexp.MustCompile(`(?i)\blast\s+year\b`)
	thisYearPattern  = regexp.MustCompile(`(?i)\bthis\s+year\b`)
	monthYearPattern = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})\b`)
	lastNPattern     = regexp.MustCompile(`(?i)\blast\s+(\d+)\s+(day|week|month|year)s?\b`)
	recentPattern    = regexp.MustCompile(`(?i)\brecent(ly)?\b`)
)

// Top-N patterns.
var (
	topNPattern     = regexp.MustCompile(`(?i)\btop\s+(\d+)\b`)
	implicitTopOne  = regexp.MustCompile(`(?i)\b(most\s+common|most\s+frequent|highest|the\s+most)\b`)
	topUnspecifiedN = regexp.MustCompile(`(?i)\btop\b(?:\s+(?:diagnos|disease|provider|service|claim))`)
)

var monthNumbers = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5,
	"june": 6, "july": 7, "august": 8, "september": 9, "october": 10,
	"november": 11, "december": 12,
}

// stateFilterPattern detects a state-filter context, e.g. "in Kogi state"
// or "in Kogi". The capability gate for analyst access to the users and
// states tables keys off this.
var stateFilterPattern = regexp.MustCompile(`(?i)\bin\s+([A-Za-z][A-Za-z\- ]{1,30}?)\s+state\b`)

// IntentClassifier assigns a canonical query intent to a DATA utterance
// and extracts time windows, Top-N, and clarification hints.
type IntentClassifier struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewIntentClassifier creates the intent classifier.
func NewIntentClassifier(logger *zap.Logger) *IntentClassifier {
	return &IntentClassifier{logger: logger.Named("intent-classifier"), now: time.Now}
}

// Classify maps a DATA utterance to its canonical intent and extracted
// qualifiers. It never fails; ambiguity surfaces as a clarification hint.
func (c *IntentClassifier) Classify(utterance string) models.IntentClassification {
	result := models.IntentClassification{
		TopLevel:  models.IntentData,
		Canonical: c.canonical(utterance),
	}

	window, clarify := c.timeWindow(utterance)
	result.TimeWindow = window
	if clarify != "" {
		result.Clarification = clarify
	}

	result.TopN = c.topN(utterance, &result)

	if result.Clarification == "" {
		result.Clarification = c.ambiguityHints(utterance)
	}

	return result
}

// StateFilter extracts the state name when the utterance has a
// state-filter context, or "" otherwise.
func (c *IntentClassifier) StateFilter(utterance string) string {
	if m := stateFilterPattern.FindStringSubmatch(utterance); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func (c *IntentClassifier) canonical(utterance string) models.CanonicalIntent {
	for _, p := range serviceUtilizationPatterns {
		if p.MatchString(utterance) {
			return models.IntentServiceUtilization
		}
	}
	for _, p := range costFinancialPatterns {
		if p.MatchString(utterance) {
			return models.IntentCostFinancial
		}
	}
	for _, p := range trendTimeSeriesPatterns {
		if p.MatchString(utterance) {
			return models.IntentTrendTimeSeries
		}
	}
	for _, p := range frequencyVolumePatterns {
		if p.MatchString(utterance) {
			return models.IntentFrequencyVolume
		}
	}

	if diagnosisTermPattern.MatchString(utterance) {
		return models.IntentFrequencyVolume
	}
	return models.IntentUnknown
}

func (c *IntentClassifier) timeWindow(utterance string) (*models.TimeWindow, string) {
	now := c.now()

	if lastYearPattern.MatchString(utterance) {
		year := now.Year() - 1
		return &models.TimeWindow{
			SQLFragment: fmt.Sprintf("claims.created_at >= '%d-01-01' AND claims.created_at < '%d-01-01'", year, year+1),
			Kind:        models.WindowNamedRange,
		}, ""
	}

	if thisYearPattern.MatchString(utterance) {
		year := now.Year()
		return &models.TimeWindow{
			SQLFragment: fmt.Sprintf("claims.created_at >= '%d-01-01' AND claims.created_at < '%d-01-01'", year, year+1),
			Kind:        models.WindowNamedRange,
		}, ""
	}

	if m := monthYearPattern.FindStringSubmatch(utterance); len(m) == 3 {
		month := monthNumbers[strings.ToLower(m[1])]
		year, _ := strconv.Atoi(m[2])
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0)
		return &models.TimeWindow{
			SQLFragment: fmt.Sprintf("claims.created_at >= '%s' AND claims.created_at < '%s'",
				start.Format("2006-01-02"), end.Format("2006-01-02")),
			Kind: models.WindowNamedRange,
		}, ""
	}

	if m := lastNPattern.FindStringSubmatch(utterance); len(m) == 3 {
		n, _ := strconv.Atoi(m[1])
		unit := strings.ToLower(m[2])
		return &models.TimeWindow{
			SQLFragment: fmt.Sprintf("claims.created_at >= CURRENT_DATE - INTERVAL '%d %s'", n, unit),
			Kind:        models.WindowRelativeRange,
		}, ""
	}

	if recentPattern.MatchString(utterance) {
		return nil, `"Recent" is ambiguous here. Do you mean the last 30 days, the last 3 months, or this year?`
	}

	return nil, ""
}

func (c *IntentClassifier) topN(utterance string, result *models.IntentClassification) int {
	if m := topNPattern.FindStringSubmatch(utterance); len(m) == 2 {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return n
		}
	}

	if topUnspecifiedN.MatchString(utterance) && !topNPattern.MatchString(utterance) {
		if result.Clarification == "" {
			result.Clarification = "How many results would you like? For example, top 5 or top 10."
		}
		return 0
	}

	if implicitTopOne.MatchString(utterance) {
		return 1
	}

	return 0
}

// ambiguityHints flags phrasings that need a clarifying question before a
// trustworthy answer is possible.
func (c *IntentClassifier) ambiguityHints(utterance string) string {
	lower := strings.ToLower(utterance)

	if strings.Contains(lower, "cost") &&
		!strings.Contains(lower, "total") && !strings.Contains(lower, "average") &&
		!strings.Contains(lower, "avg") && !strings.Contains(lower, "sum") {
		return "Do you want the total cost or the average cost?"
	}

	if strings.Contains(lower, "cases") && !strings.Contains(lower, "claim") {
		return `Should "cases" be counted as individual claims, or as distinct patients?`
	}

	return ""
}
