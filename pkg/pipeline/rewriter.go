package pipeline

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/models"
	sqlutil "github.com/carelens/carelens-engine/pkg/sql"
)

var (
	doubleDistinctPattern = regexp.MustCompile(`(?i)\bDISTINCT\s+DISTINCT\b`)

	// Generator habits that drag users/states into stateless questions.
	stateSubqueryPattern = regexp.MustCompile(`(?i)\s+AND\s+[a-z_.]+\s+IN\s*\(\s*SELECT\s+[^)]*\bFROM\s+users\b[^)]*\bJOIN\s+states\b[^)]*\)`)
	userJoinPattern      = regexp.MustCompile(`(?i)\s+(?:LEFT\s+|INNER\s+)?JOIN\s+users\s+ON\s+[a-z0-9_.]+\s*=\s*[a-z0-9_.]+`)
	stateJoinPattern     = regexp.MustCompile(`(?i)\s+(?:LEFT\s+|INNER\s+)?JOIN\s+states\s+ON\s+[a-z0-9_.]+\s*=\s*[a-z0-9_.]+`)
	stateCondAndPattern  = regexp.MustCompile(`(?i)\s+AND\s+states\.[a-z0-9_]+\s*(?:=|LIKE|ILIKE)\s*'[^']*'`)
	stateCondOnlyPattern = regexp.MustCompile(`(?i)\bWHERE\s+states\.[a-z0-9_]+\s*(?:=|LIKE|ILIKE)\s*'[^']*'(\s+AND\b)?`)

	groupByDiagnosisID = regexp.MustCompile(`(?i)\bGROUP\s+BY\s+diagnoses\.id\b`)
	groupByProviderID  = regexp.MustCompile(`(?i)\bGROUP\s+BY\s+providers\.id\b`)

	plainCountClaims = regexp.MustCompile(`(?i)\bCOUNT\s*\(\s*claims\.id\s*\)`)
)

// SQLRewriter applies a whitelist of semantics-preserving rewrites after
// validation passes. Each rule is idempotent; a second pass over its own
// output changes nothing.
type SQLRewriter struct {
	logger *zap.Logger
}

// NewSQLRewriter creates the rewriter.
func NewSQLRewriter(logger *zap.Logger) *SQLRewriter {
	return &SQLRewriter{logger: logger.Named("sql-rewriter")}
}

// Rewrite returns a new candidate with the rewrites applied. When a rewrite
// damages the statement so it no longer reads as a SELECT, the original is
// returned untouched.
func (r *SQLRewriter) Rewrite(candidate models.CandidateSQL, classification models.IntentClassification, stateMentioned bool) models.CandidateSQL {
	rewritten := candidate.SQLText

	rewritten = doubleDistinctPattern.ReplaceAllString(rewritten, "DISTINCT")

	if !stateMentioned {
		rewritten = r.stripStateChain(rewritten)
	}

	rewritten = groupByDiagnosisID.ReplaceAllString(rewritten, "GROUP BY diagnoses.name")
	rewritten = groupByProviderID.ReplaceAllString(rewritten, "GROUP BY providers.code")

	if classification.Canonical == models.IntentFrequencyVolume {
		rewritten = plainCountClaims.ReplaceAllString(rewritten, "COUNT(DISTINCT claims.id)")
	}

	rewritten = strings.TrimSpace(rewritten)
	if !sqlutil.IsSelect(rewritten) {
		r.logger.Warn("rewrite discarded, output no longer a SELECT")
		return candidate
	}
	if rewritten == candidate.SQLText {
		return candidate
	}

	out := candidate
	out.SQLText = rewritten
	out.TablesReferenced = sqlutil.ReferencedTables(rewritten)
	return out
}

// stripStateChain removes the placeholder state filter and the users/states
// join chain the generator sometimes adds to questions that never mention a
// state.
func (r *SQLRewriter) stripStateChain(sqlText string) string {
	out := stateSubqueryPattern.ReplaceAllString(sqlText, "")
	out = stateCondAndPattern.ReplaceAllString(out, "")
	out = stateCondOnlyPattern.ReplaceAllStringFunc(out, func(m string) string {
		if strings.HasSuffix(strings.ToUpper(strings.TrimSpace(m)), "AND") {
			return "WHERE"
		}
		return "WHERE TRUE"
	})
	out = userJoinPattern.ReplaceAllString(out, "")
	out = stateJoinPattern.ReplaceAllString(out, "")
	return out
}
