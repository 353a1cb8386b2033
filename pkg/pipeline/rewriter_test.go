package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/carelens/carelens-engine/pkg/models"
)

func TestSQLRewriter_Rewrite(t *testing.T) {
	r := NewSQLRewriter(zaptest.NewLogger(t))

	tests := []struct {
		name           string
		sql            string
		classification models.IntentClassification
		stateMentioned bool
		want           string
	}{
		{
			name: "double distinct collapsed",
			sql:  "SELECT COUNT(DISTINCT DISTINCT claims.id) FROM claims",
			want: "SELECT COUNT(DISTINCT claims.id) FROM claims",
		},
		{
			name: "stray state subquery removed",
			sql:  "SELECT COUNT(*) FROM claims WHERE TRUE AND claims.user_id IN (SELECT users.id FROM users JOIN states ON users.state_id = states.id WHERE states.name ILIKE 'Kogi')",
			want: "SELECT COUNT(*) FROM claims WHERE TRUE",
		},
		{
			name:           "state subquery kept when state was asked for",
			sql:            "SELECT COUNT(*) FROM claims WHERE TRUE AND claims.user_id IN (SELECT users.id FROM users JOIN states ON users.state_id = states.id WHERE states.name ILIKE 'Kogi')",
			stateMentioned: true,
			want:           "SELECT COUNT(*) FROM claims WHERE TRUE AND claims.user_id IN (SELECT users.id FROM users JOIN states ON users.state_id = states.id WHERE states.name ILIKE 'Kogi')",
		},
		{
			name: "stray state join chain removed",
			sql:  "SELECT COUNT(*) FROM claims JOIN users ON claims.user_id = users.id JOIN states ON users.state_id = states.id WHERE states.name = 'Kogi'",
			want: "SELECT COUNT(*) FROM claims WHERE TRUE",
		},
		{
			name: "state condition before other predicates",
			sql:  "SELECT COUNT(*) FROM claims JOIN users ON claims.user_id = users.id JOIN states ON users.state_id = states.id WHERE states.name = 'Kogi' AND claims.total_amount > 0",
			want: "SELECT COUNT(*) FROM claims WHERE claims.total_amount > 0",
		},
		{
			name: "group by diagnosis id replaced with name",
			sql:  "SELECT diagnoses.name, COUNT(*) FROM diagnoses GROUP BY diagnoses.id",
			want: "SELECT diagnoses.name, COUNT(*) FROM diagnoses GROUP BY diagnoses.name",
		},
		{
			name: "group by provider id replaced with code",
			sql:  "SELECT providers.name, COUNT(*) FROM providers GROUP BY providers.id",
			want: "SELECT providers.name, COUNT(*) FROM providers GROUP BY providers.code",
		},
		{
			name:           "frequency count gets distinct",
			sql:            "SELECT COUNT(claims.id) FROM claims",
			classification: models.IntentClassification{Canonical: models.IntentFrequencyVolume},
			want:           "SELECT COUNT(DISTINCT claims.id) FROM claims",
		},
		{
			name:           "cost count left alone",
			sql:            "SELECT COUNT(claims.id) FROM claims",
			classification: models.IntentClassification{Canonical: models.IntentCostFinancial},
			want:           "SELECT COUNT(claims.id) FROM claims",
		},
		{
			name: "clean statement untouched",
			sql:  "SELECT COUNT(DISTINCT claims.id) FROM claims WHERE TRUE",
			want: "SELECT COUNT(DISTINCT claims.id) FROM claims WHERE TRUE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := models.CandidateSQL{SQLText: tt.sql}
			got := r.Rewrite(candidate, tt.classification, tt.stateMentioned)
			assert.Equal(t, tt.want, got.SQLText)
		})
	}
}

// Applying the rewriter twice yields the same statement as applying it once.
func TestSQLRewriter_Idempotent(t *testing.T) {
	r := NewSQLRewriter(zaptest.NewLogger(t))

	statements := []string{
		"SELECT COUNT(DISTINCT DISTINCT claims.id) FROM claims",
		"SELECT COUNT(*) FROM claims WHERE TRUE AND claims.user_id IN (SELECT users.id FROM users JOIN states ON users.state_id = states.id WHERE states.name ILIKE 'Kogi')",
		"SELECT COUNT(*) FROM claims JOIN users ON claims.user_id = users.id JOIN states ON users.state_id = states.id WHERE states.name = 'Kogi' AND claims.total_amount > 0",
		"SELECT diagnoses.name, COUNT(claims.id) FROM diagnoses GROUP BY diagnoses.id",
		"SELECT COUNT(DISTINCT claims.id) FROM claims",
	}
	classification := models.IntentClassification{Canonical: models.IntentFrequencyVolume}

	for _, sqlText := range statements {
		once := r.Rewrite(models.CandidateSQL{SQLText: sqlText}, classification, false)
		twice := r.Rewrite(once, classification, false)
		assert.Equal(t, once.SQLText, twice.SQLText, "input: %s", sqlText)
	}
}

func TestSQLRewriter_DamagedRewriteDiscarded(t *testing.T) {
	r := NewSQLRewriter(zaptest.NewLogger(t))

	// A statement that does not read as a SELECT is passed through untouched.
	candidate := models.CandidateSQL{SQLText: "WITH x AS (SELECT 1) INSERT INTO t SELECT * FROM x"}
	got := r.Rewrite(candidate, models.IntentClassification{}, false)
	assert.Equal(t, candidate.SQLText, got.SQLText)
}

func TestSQLRewriter_RecomputesReferencedTables(t *testing.T) {
	r := NewSQLRewriter(zaptest.NewLogger(t))

	candidate := models.CandidateSQL{
		SQLText:          "SELECT COUNT(*) FROM claims JOIN users ON claims.user_id = users.id JOIN states ON users.state_id = states.id WHERE states.name = 'Kogi'",
		TablesReferenced: []string{"claims", "users", "states"},
	}
	got := r.Rewrite(candidate, models.IntentClassification{}, false)
	assert.Equal(t, []string{"claims"}, got.TablesReferenced)
}
