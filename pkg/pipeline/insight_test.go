package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/carelens/carelens-engine/pkg/llm"
	"github.com/carelens/carelens-engine/pkg/models"
)

func topDiagnosesResult() *models.ExecutionResult {
	return &models.ExecutionResult{
		Columns: []string{"Diagnosis", "Claim Count"},
		Rows: []models.Row{
			{"Diagnosis": "Malaria", "Claim Count": int64(1200)},
			{"Diagnosis": "Typhoid", "Claim Count": int64(340)},
		},
		RowCount: 2,
	}
}

func TestInsightGenerator_EmptyResultSkipsLLM(t *testing.T) {
	mock := llm.NewMockClient()
	g := NewInsightGenerator(mock, InsightConfig{LegacyFallback: true}, zaptest.NewLogger(t))

	got := g.Narrate(context.Background(), "claims for rabies", &models.ExecutionResult{RowCount: 0})
	assert.Equal(t, noRecordsSummary, got)
	assert.Equal(t, 0, mock.CompleteCalls)

	got = g.Narrate(context.Background(), "claims for rabies", nil)
	assert.Equal(t, noRecordsSummary, got)
}

func TestInsightGenerator_GroundedNarrativePasses(t *testing.T) {
	mock := llm.NewMockClient()
	mock.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		return "Insight: Malaria leads with 1,200 claims. Evidence: Typhoid follows at 340. Implication: Malaria prevention deserves attention.", nil
	}
	g := NewInsightGenerator(mock, InsightConfig{LegacyFallback: true}, zaptest.NewLogger(t))

	got := g.Narrate(context.Background(), "top diagnoses", topDiagnosesResult())
	assert.Contains(t, got, "Malaria leads with 1,200 claims")
}

func TestInsightGenerator_UngroundedNumberFallsBack(t *testing.T) {
	mock := llm.NewMockClient()
	mock.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		// 1540 appears nowhere in the result.
		return "Insight: The two diagnoses account for 1540 claims combined.", nil
	}
	g := NewInsightGenerator(mock, InsightConfig{LegacyFallback: true}, zaptest.NewLogger(t))

	got := g.Narrate(context.Background(), "top diagnoses", topDiagnosesResult())
	assert.Contains(t, got, "The query returned 2 rows.")
	assert.Contains(t, got, "Malaria")
}

func TestInsightGenerator_QuestionNumbersAreAllowed(t *testing.T) {
	mock := llm.NewMockClient()
	mock.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		return "Insight: Of the top 5 requested, 2 diagnoses dominate with 1200 and 340 claims.", nil
	}
	g := NewInsightGenerator(mock, InsightConfig{LegacyFallback: true}, zaptest.NewLogger(t))

	got := g.Narrate(context.Background(), "top 5 diagnoses", topDiagnosesResult())
	assert.Contains(t, got, "dominate")
}

func TestInsightGenerator_LLMFailureFallsBack(t *testing.T) {
	mock := llm.NewMockClient()
	mock.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		return "", errors.New("upstream down")
	}
	g := NewInsightGenerator(mock, InsightConfig{LegacyFallback: true}, zaptest.NewLogger(t))

	got := g.Narrate(context.Background(), "top diagnoses", topDiagnosesResult())
	assert.Contains(t, got, "The query returned 2 rows.")
	assert.Contains(t, got, "Row 1:")
}

func TestInsightGenerator_LegacyFallbackDisabled(t *testing.T) {
	mock := llm.NewMockClient()
	mock.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		return "", errors.New("upstream down")
	}
	g := NewInsightGenerator(mock, InsightConfig{}, zaptest.NewLogger(t))

	got := g.Narrate(context.Background(), "top diagnoses", topDiagnosesResult())
	assert.Empty(t, got)

	// A grounded narrative is unaffected by the flag.
	mock.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		return "Insight: Malaria leads with 1200 claims.", nil
	}
	got = g.Narrate(context.Background(), "top diagnoses", topDiagnosesResult())
	assert.Contains(t, got, "Malaria leads with 1200 claims")
}

func TestInsightGenerator_SuppressedCountsStaySuppressed(t *testing.T) {
	mock := llm.NewMockClient()
	mock.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		// The model reconstructs the suppressed value.
		return "Insight: Rabies shows 3 claims.", nil
	}
	g := NewInsightGenerator(mock, InsightConfig{LegacyFallback: true}, zaptest.NewLogger(t))

	result := &models.ExecutionResult{
		Columns:  []string{"Diagnosis", "Claim Count"},
		Rows:     []models.Row{{"Diagnosis": "Rabies", "Claim Count": SuppressionSentinel}},
		RowCount: 1,
	}
	got := g.Narrate(context.Background(), "rabies claims", result)
	assert.NotContains(t, got, "3 claims")
	assert.Contains(t, got, SuppressionSentinel)
}

func TestInsightGenerator_PromptCarriesResult(t *testing.T) {
	mock := llm.NewMockClient()
	mock.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		return "Insight: Malaria leads with 1200 claims.", nil
	}
	g := NewInsightGenerator(mock, InsightConfig{LegacyFallback: true}, zaptest.NewLogger(t))

	result := topDiagnosesResult()
	result.Truncated = true
	_ = g.Narrate(context.Background(), "top diagnoses", result)

	prompt := mock.LastRequest.Prompt
	assert.Contains(t, prompt, "Question: top diagnoses")
	assert.Contains(t, prompt, "truncated")
	assert.Contains(t, prompt, "Malaria | 1200")
	assert.Contains(t, mock.LastRequest.System, "Never invent")
}
