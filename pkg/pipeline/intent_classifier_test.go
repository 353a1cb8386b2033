package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/carelens/carelens-engine/pkg/models"
)

func frozenClassifier(t *testing.T) *IntentClassifier {
	t.Helper()
	c := NewIntentClassifier(zaptest.NewLogger(t))
	c.now = func() time.Time {
		return time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	}
	return c
}

func TestIntentClassifier_CanonicalIntent(t *testing.T) {
	c := frozenClassifier(t)

	tests := []struct {
		name      string
		utterance string
		want      models.CanonicalIntent
	}{
		{"utilization", "which services are used the most", models.IntentServiceUtilization},
		{"utilization keyword", "service utilization by facility", models.IntentServiceUtilization},
		{"cost", "total amount billed by providers", models.IntentCostFinancial},
		{"spend", "how much did we spend on malaria", models.IntentCostFinancial},
		{"trend", "claims per month over time", models.IntentTrendTimeSeries},
		{"monthly", "monthly claim volume", models.IntentTrendTimeSeries},
		{"frequency", "how many claims were filed", models.IntentFrequencyVolume},
		{"top n", "top 10 providers", models.IntentFrequencyVolume},
		{"diagnosis default", "diseases affecting enrollees", models.IntentFrequencyVolume},
		{"unknown", "tell me about the warehouse", models.IntentUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.utterance)
			assert.Equal(t, tt.want, got.Canonical)
		})
	}
}

func TestIntentClassifier_TimeWindows(t *testing.T) {
	c := frozenClassifier(t)

	t.Run("last year", func(t *testing.T) {
		got := c.Classify("how many claims last year")
		require.NotNil(t, got.TimeWindow)
		assert.Equal(t, models.WindowNamedRange, got.TimeWindow.Kind)
		assert.Contains(t, got.TimeWindow.SQLFragment, "2024-01-01")
		assert.Contains(t, got.TimeWindow.SQLFragment, "2025-01-01")
	})

	t.Run("this year", func(t *testing.T) {
		got := c.Classify("how many claims this year")
		require.NotNil(t, got.TimeWindow)
		assert.Contains(t, got.TimeWindow.SQLFragment, "2025-01-01")
		assert.Contains(t, got.TimeWindow.SQLFragment, "2026-01-01")
	})

	t.Run("month and year", func(t *testing.T) {
		got := c.Classify("claim count for March 2024")
		require.NotNil(t, got.TimeWindow)
		assert.Contains(t, got.TimeWindow.SQLFragment, "2024-03-01")
		assert.Contains(t, got.TimeWindow.SQLFragment, "2024-04-01")
	})

	t.Run("relative range", func(t *testing.T) {
		got := c.Classify("how many claims in the last 30 days")
		require.NotNil(t, got.TimeWindow)
		assert.Equal(t, models.WindowRelativeRange, got.TimeWindow.Kind)
		assert.Contains(t, got.TimeWindow.SQLFragment, "INTERVAL '30 day'")
	})

	t.Run("recent requires clarification", func(t *testing.T) {
		got := c.Classify("how many recent claims")
		assert.Nil(t, got.TimeWindow)
		assert.NotEmpty(t, got.Clarification)
	})

	t.Run("no window", func(t *testing.T) {
		got := c.Classify("how many claims")
		assert.Nil(t, got.TimeWindow)
	})
}

func TestIntentClassifier_TopN(t *testing.T) {
	c := frozenClassifier(t)

	assert.Equal(t, 5, c.Classify("top 5 diagnoses").TopN)
	assert.Equal(t, 25, c.Classify("show the top 25 providers").TopN)
	assert.Equal(t, 1, c.Classify("most common diagnosis").TopN)
	assert.Equal(t, 1, c.Classify("which provider billed the most money in total").TopN)
	assert.Equal(t, 0, c.Classify("how many claims were filed").TopN)
}

func TestIntentClassifier_TopWithoutN_AsksForCount(t *testing.T) {
	c := frozenClassifier(t)

	got := c.Classify("top diagnoses by claim volume")
	assert.Equal(t, 0, got.TopN)
	assert.Contains(t, got.Clarification, "How many")
}

func TestIntentClassifier_AmbiguousCost(t *testing.T) {
	c := frozenClassifier(t)

	got := c.Classify("what is the cost of claims for malaria")
	assert.Equal(t, models.IntentCostFinancial, got.Canonical)
	assert.Contains(t, got.Clarification, "total cost or the average")

	got = c.Classify("what is the total cost of claims for malaria")
	assert.Empty(t, got.Clarification)
}

func TestIntentClassifier_StateFilter(t *testing.T) {
	c := frozenClassifier(t)

	assert.Equal(t, "Kogi", c.StateFilter("which disease has the most claims in Kogi state"))
	assert.Equal(t, "Cross River", c.StateFilter("claims in Cross River state last year"))
	assert.Equal(t, "", c.StateFilter("how many claims last year"))
}
