// Package sql provides lexical SQL inspection utilities used by the safety
// validator and rewriter. Nothing here executes SQL.
package sql

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains more than one SQL
	// statement.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
)

// writeVerbs are statement tokens that can mutate the warehouse. Any
// word-bounded occurrence is fatal.
var writeVerbs = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "TRUNCATE",
	"ALTER", "CREATE", "GRANT", "REVOKE", "EXEC",
}

var writeVerbPatterns = compileVerbPatterns(writeVerbs)

func compileVerbPatterns(verbs []string) map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(verbs))
	for _, verb := range verbs {
		patterns[verb] = regexp.MustCompile(`(?i)\b` + verb + `\b`)
	}
	return patterns
}

// ValidationResult contains the normalized SQL and any validation error.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize strips a trailing semicolon and rejects SQL that
// still contains a semicolon outside string literals, which would indicate
// a second statement.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{NormalizedSQL: sqlQuery}
	}

	normalized := stripTrailingSemicolon(sqlQuery)
	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

// IsSelect reports whether the statement is a plain SELECT. WITH-prefixed
// CTEs count as SELECT unless they embed a data-modifying clause.
func IsSelect(sqlQuery string) bool {
	normalized := strings.ToUpper(strings.TrimSpace(sqlQuery))
	switch {
	case strings.HasPrefix(normalized, "SELECT"):
		return true
	case strings.HasPrefix(normalized, "WITH"):
		return !modifyingCTEPattern.MatchString(sqlQuery)
	default:
		return false
	}
}

// modifyingCTEPattern matches CTEs that smuggle writes,
// e.g. WITH gone AS (DELETE FROM claims ...) SELECT * FROM gone.
var modifyingCTEPattern = regexp.MustCompile(`(?i)\bAS\s*\(\s*(INSERT|UPDATE|DELETE)\b`)

// FindWriteVerb returns the first write verb present as a word-bounded token
// in the SQL, or "" when the statement is clean.
func FindWriteVerb(sqlQuery string) string {
	for _, verb := range writeVerbs {
		if writeVerbPatterns[verb].MatchString(sqlQuery) {
			return verb
		}
	}
	return ""
}

var (
	joinPattern = regexp.MustCompile(`(?i)\bJOIN\b`)
	onPattern   = regexp.MustCompile(`(?i)\bON\b`)
)

// HasUnpairedJoin reports whether the statement contains more JOIN clauses
// than ON clauses. A JOIN without a pairing ON is treated as a cartesian
// product risk.
func HasUnpairedJoin(sqlQuery string) bool {
	joins := len(joinPattern.FindAllString(sqlQuery, -1))
	ons := len(onPattern.FindAllString(sqlQuery, -1))
	return joins > ons
}

var tableRefPattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_]*)`)

// ReferencedTables extracts table names following FROM and JOIN keywords.
// Subqueries contribute their own FROM clauses; duplicates are removed and
// original order preserved.
func ReferencedTables(sqlQuery string) []string {
	matches := tableRefPattern.FindAllStringSubmatch(sqlQuery, -1)
	seen := make(map[string]bool, len(matches))
	var tables []string
	for _, m := range matches {
		name := strings.ToLower(m[1])
		if !seen[name] {
			seen[name] = true
			tables = append(tables, name)
		}
	}
	return tables
}

func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// Doubled quote ('') exits and immediately re-enters, which
			// keeps us inside the literal.
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}

	return false
}

func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimRight(strings.TrimSuffix(sqlQuery, ";"), " \t\n\r")
	}
	return sqlQuery
}
