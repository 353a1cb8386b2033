package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/models"
	"github.com/carelens/carelens-engine/pkg/schema"
)

// SuppressionSentinel replaces small counts so individuals cannot be
// inferred from rare cohorts.
const SuppressionSentinel = "<5"

// businessIdentifierWhitelist names columns that look like internal ids but
// are published identifiers and must survive sanitization.
var businessIdentifierWhitelist = map[string]bool{
	"code":          true,
	"provider_code": true,
	"facility_code": true,
	"external_id":   true,
}

// columnRenames maps warehouse column names to display labels. Unmapped
// names fall back to title-casing.
var columnRenames = map[string]string{
	"dx_name":      "Diagnosis",
	"svc_name":     "Service",
	"avg_cost":     "Average Cost",
	"total_amount": "Total Amount",
	"created_at":   "Date",
	"claim_count":  "Claim Count",
}

var emailValuePattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// longDigitPattern matches numeric identifier strings long enough to mask.
var longDigitPattern = regexp.MustCompile(`^\d{5,}$`)

// SanitizerConfig tunes suppression behavior.
type SanitizerConfig struct {
	// SuppressionKeywords mark count-flavoured columns by substring match.
	SuppressionKeywords []string
}

// ResultSanitizer strips internal identifiers, relabels columns, suppresses
// small counts, and masks PII values that leak through. Sanitize is
// idempotent; running it twice yields the same output.
type ResultSanitizer struct {
	cfg    SanitizerConfig
	logger *zap.Logger
}

// NewResultSanitizer creates the sanitizer.
func NewResultSanitizer(cfg SanitizerConfig, logger *zap.Logger) *ResultSanitizer {
	if len(cfg.SuppressionKeywords) == 0 {
		cfg.SuppressionKeywords = []string{"count", "total", "num"}
	}
	return &ResultSanitizer{cfg: cfg, logger: logger.Named("sanitizer")}
}

// Sanitize returns a new result with hidden columns removed and values
// cleaned. The input is never mutated.
func (s *ResultSanitizer) Sanitize(result *models.ExecutionResult) *models.ExecutionResult {
	if result == nil {
		return nil
	}

	keep := make([]string, 0, len(result.Columns))
	labels := make(map[string]string, len(result.Columns))
	for _, col := range result.Columns {
		if s.hideColumn(col) {
			continue
		}
		keep = append(keep, col)
		labels[col] = displayLabel(col)
	}

	out := &models.ExecutionResult{
		Columns:   make([]string, 0, len(keep)),
		RowCount:  result.RowCount,
		Truncated: result.Truncated,
		ElapsedMS: result.ElapsedMS,
	}
	for _, col := range keep {
		out.Columns = append(out.Columns, labels[col])
	}

	for _, row := range result.Rows {
		cleaned := make(models.Row, len(keep))
		for _, col := range keep {
			cleaned[labels[col]] = s.cleanValue(col, row[col])
		}
		out.Rows = append(out.Rows, cleaned)
	}

	return out
}

// hideColumn drops internal identifiers and PII columns, sparing
// whitelisted business identifiers.
func (s *ResultSanitizer) hideColumn(col string) bool {
	name := strings.ToLower(lastSegment(col))
	if businessIdentifierWhitelist[name] {
		return false
	}
	if name == "id" || strings.HasSuffix(name, "_id") {
		return true
	}
	return schema.IsPIIColumn(name)
}

// cleanValue suppresses small counts and masks PII that survives column
// filtering, e.g. through aliases.
func (s *ResultSanitizer) cleanValue(col string, value any) any {
	if s.isCountColumn(col) {
		if n, ok := integerValue(value); ok && n >= 1 && n <= 4 {
			return SuppressionSentinel
		}
	}

	if str, ok := value.(string); ok {
		if emailValuePattern.MatchString(str) {
			return "***@***.***"
		}
		if longDigitPattern.MatchString(str) {
			return strings.Repeat("*", len(str)-4) + str[len(str)-4:]
		}
	}

	return value
}

func (s *ResultSanitizer) isCountColumn(col string) bool {
	name := strings.ToLower(col)
	for _, kw := range s.cfg.SuppressionKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// integerValue extracts a whole number from the numeric types pgx returns.
func integerValue(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	case float32:
		if float64(v) == float64(int64(v)) {
			return int64(v), true
		}
	}
	return 0, false
}

// displayLabel maps a column to its display label, title-casing unmapped
// names with underscores replaced by spaces.
func displayLabel(col string) string {
	// Already a display label from a previous pass.
	if strings.ContainsRune(col, ' ') {
		return col
	}
	name := strings.ToLower(lastSegment(col))
	if label, ok := columnRenames[name]; ok {
		return label
	}
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// FormatCell renders a sanitized value for the fallback narrative.
func FormatCell(value any) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%v", value)
}
