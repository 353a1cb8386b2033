package pipeline

import (
	"github.com/carelens/carelens-engine/pkg/models"
)

// SuggestVisualization picks a rendering hint for the sanitized result:
// bar charts for Top-N frequency answers, line charts for trends, a plain
// table otherwise.
func SuggestVisualization(classification models.IntentClassification, result *models.ExecutionResult) models.VisualizationHint {
	if result == nil || len(result.Rows) == 0 {
		return models.VisualizationHint{Type: "table"}
	}

	switch {
	case classification.Canonical == models.IntentTrendTimeSeries:
		return models.VisualizationHint{Type: "line", Columns: result.Columns}
	case classification.TopN > 0 &&
		(classification.Canonical == models.IntentFrequencyVolume ||
			classification.Canonical == models.IntentServiceUtilization):
		return models.VisualizationHint{Type: "bar", Columns: result.Columns}
	default:
		return models.VisualizationHint{Type: "table", Columns: result.Columns}
	}
}
