package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carelens/carelens-engine/pkg/models"
)

func TestSuggestVisualization(t *testing.T) {
	result := &models.ExecutionResult{
		Columns:  []string{"Diagnosis", "Claim Count"},
		Rows:     []models.Row{{"Diagnosis": "Malaria", "Claim Count": int64(12)}},
		RowCount: 1,
	}

	tests := []struct {
		name           string
		classification models.IntentClassification
		result         *models.ExecutionResult
		want           string
	}{
		{
			name:           "trend gets a line chart",
			classification: models.IntentClassification{Canonical: models.IntentTrendTimeSeries},
			result:         result,
			want:           "line",
		},
		{
			name:           "top n frequency gets a bar chart",
			classification: models.IntentClassification{Canonical: models.IntentFrequencyVolume, TopN: 5},
			result:         result,
			want:           "bar",
		},
		{
			name:           "top n utilization gets a bar chart",
			classification: models.IntentClassification{Canonical: models.IntentServiceUtilization, TopN: 3},
			result:         result,
			want:           "bar",
		},
		{
			name:           "frequency without top n stays a table",
			classification: models.IntentClassification{Canonical: models.IntentFrequencyVolume},
			result:         result,
			want:           "table",
		},
		{
			name:           "cost defaults to table",
			classification: models.IntentClassification{Canonical: models.IntentCostFinancial, TopN: 5},
			result:         result,
			want:           "table",
		},
		{
			name:           "empty result is a table",
			classification: models.IntentClassification{Canonical: models.IntentTrendTimeSeries},
			result:         &models.ExecutionResult{},
			want:           "table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hint := SuggestVisualization(tt.classification, tt.result)
			assert.Equal(t, tt.want, hint.Type)
		})
	}
}
