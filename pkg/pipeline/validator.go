package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/apperrors"
	"github.com/carelens/carelens-engine/pkg/models"
	"github.com/carelens/carelens-engine/pkg/schema"
	sqlutil "github.com/carelens/carelens-engine/pkg/sql"
)

// analystTables is the analyst role's base allow-list. users and states are
// added only for state-filter requests that are not user-detail queries.
var analystTables = map[string]bool{
	"claims":    true,
	"services":  true,
	"diagnoses": true,
	"providers": true,
}

// publicTables are visible to the public role, and only through aggregated
// queries.
var publicTables = map[string]bool{
	"claims":     true,
	"diagnoses":  true,
	"services":   true,
	"providers":  true,
	"facilities": true,
}

// sensitiveKeywords in the utterance arm the PII gate.
var sensitiveKeywords = []string{
	"email", "phone", "address", "date of birth", "dob", "ssn",
	"social security", "contact", "personal detail", "full name",
}

// userDetailPattern marks requests for individual user records rather than
// aggregates over them.
var userDetailPattern = regexp.MustCompile(`(?i)\b(list|show|names?\s+of|who\s+(is|are)|details?\s+(of|about))\b.*\b(patient|user|member|enrollee)`)

var (
	aggregateFnPattern = regexp.MustCompile(`(?i)\b(COUNT|SUM|AVG|MIN|MAX)\s*\(`)
	groupByPattern     = regexp.MustCompile(`(?i)\bGROUP\s+BY\b`)
	stringLiteralRe    = regexp.MustCompile(`'(?:[^']|'')*'`)
)

// SafetyValidator runs the ordered hard-blocking checks on a candidate
// statement before it can execute. The first failing check is fatal for the
// request.
type SafetyValidator struct {
	logger *zap.Logger
}

// NewSafetyValidator creates the validator.
func NewSafetyValidator(logger *zap.Logger) *SafetyValidator {
	return &SafetyValidator{logger: logger.Named("safety-validator")}
}

// Validate returns the normalized statement when every check passes, or a
// SafetyViolation with a user-safe message naming the failed check.
func (v *SafetyValidator) Validate(rc *RequestContext, candidate models.CandidateSQL) (string, error) {
	sqlText := candidate.SQLText

	if verb := sqlutil.FindWriteVerb(sqlText); verb != "" {
		return "", apperrors.New(apperrors.KindSafetyViolation,
			fmt.Sprintf("The generated query contained a forbidden %s operation and was blocked.", verb))
	}

	result := sqlutil.ValidateAndNormalize(sqlText)
	if result.Error != nil {
		return "", apperrors.Wrap(apperrors.KindSafetyViolation,
			"The generated query contained multiple statements and was blocked.", result.Error)
	}
	sqlText = result.NormalizedSQL

	if sqlText == "" || !sqlutil.IsSelect(sqlText) {
		return "", apperrors.New(apperrors.KindSafetyViolation,
			"Only read-only SELECT queries are permitted.")
	}

	if sqlutil.HasUnpairedJoin(sqlText) {
		return "", apperrors.New(apperrors.KindSafetyViolation,
			"The generated query joined tables without a join condition and was blocked.")
	}

	tables := candidate.TablesReferenced
	if len(tables) == 0 {
		tables = sqlutil.ReferencedTables(sqlText)
	}
	if err := v.checkRoleAccess(rc, sqlText, tables); err != nil {
		return "", err
	}

	if err := v.checkPIIExposure(rc.Utterance, sqlText, candidate.ColumnsReferenced); err != nil {
		return "", err
	}

	if err := v.checkLiteralInjection(sqlText); err != nil {
		return "", err
	}

	return sqlText, nil
}

// checkRoleAccess enforces the per-role table allow-lists.
func (v *SafetyValidator) checkRoleAccess(rc *RequestContext, sqlText string, tables []string) error {
	switch rc.Role {
	case models.RoleAdmin:
		return nil

	case models.RoleAnalyst:
		userDetail := userDetailPattern.MatchString(rc.Utterance)
		for _, table := range tables {
			if analystTables[table] {
				continue
			}
			if (table == "users" || table == "states") && rc.StateFilterContext && !userDetail {
				continue
			}
			return apperrors.New(apperrors.KindSafetyViolation,
				fmt.Sprintf("Your role does not permit queries over the %s table.", table))
		}
		return nil

	case models.RolePublic:
		for _, table := range tables {
			if !publicTables[table] {
				return apperrors.New(apperrors.KindSafetyViolation,
					fmt.Sprintf("Public access does not permit queries over the %s table.", table))
			}
		}
		if !aggregateFnPattern.MatchString(sqlText) && !groupByPattern.MatchString(sqlText) {
			return apperrors.New(apperrors.KindSafetyViolation,
				"Public access permits aggregated queries only.")
		}
		return nil

	default:
		return apperrors.New(apperrors.KindAuthFailure, "Unrecognized caller role.")
	}
}

// checkPIIExposure rejects when the utterance asks for sensitive data and
// the statement selects a PII-flagged column.
func (v *SafetyValidator) checkPIIExposure(utterance, sqlText string, columns []string) error {
	lower := strings.ToLower(utterance)
	armed := false
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			armed = true
			break
		}
	}
	if !armed {
		return nil
	}

	for _, col := range columns {
		if schema.IsPIIColumn(lastSegment(col)) {
			return apperrors.New(apperrors.KindSafetyViolation,
				"That question asks for personally identifying information, which this service does not expose.")
		}
	}

	for pii := range piiColumnTokens(sqlText) {
		if schema.IsPIIColumn(pii) {
			return apperrors.New(apperrors.KindSafetyViolation,
				"That question asks for personally identifying information, which this service does not expose.")
		}
	}

	return nil
}

var identifierPattern = regexp.MustCompile(`(?i)\b[a-z_][a-z0-9_]*\b`)

// piiColumnTokens collects the identifier tokens of a statement so the PII
// gate can match column names even when the candidate carries no column
// metadata.
func piiColumnTokens(sqlText string) map[string]bool {
	tokens := make(map[string]bool)
	for _, m := range identifierPattern.FindAllString(stringLiteralRe.ReplaceAllString(sqlText, "''"), -1) {
		tokens[strings.ToLower(m)] = true
	}
	return tokens
}

// checkLiteralInjection runs the injection detector over every string
// literal in the statement. Literals carry the only user-influenced free
// text that survives generation.
func (v *SafetyValidator) checkLiteralInjection(sqlText string) error {
	for i, literal := range stringLiteralRe.FindAllString(sqlText, -1) {
		value := strings.ReplaceAll(strings.Trim(literal, "'"), "''", "'")
		if result := sqlutil.CheckParameterForInjection(fmt.Sprintf("literal_%d", i), value); result != nil {
			v.logger.Warn("injection pattern in SQL literal",
				zap.String("fingerprint", result.Fingerprint))
			return apperrors.New(apperrors.KindSafetyViolation,
				"The generated query contained a suspicious value and was blocked.")
		}
	}
	return nil
}

func lastSegment(column string) string {
	if idx := strings.LastIndexByte(column, '.'); idx >= 0 {
		return column[idx+1:]
	}
	return column
}
