package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "bare object",
			response: `{"sql": "SELECT 1"}`,
			want:     `{"sql": "SELECT 1"}`,
		},
		{
			name:     "object with surrounding prose",
			response: "Here is the query:\n{\"sql\": \"SELECT 1\"}\nLet me know!",
			want:     `{"sql": "SELECT 1"}`,
		},
		{
			name:     "think tags stripped",
			response: "<think>reasoning about joins</think>{\"sql\": \"SELECT 1\"}",
			want:     `{"sql": "SELECT 1"}`,
		},
		{
			name:     "nested braces in string",
			response: `{"sql": "SELECT '{}' AS x", "confidence": 0.9}`,
			want:     `{"sql": "SELECT '{}' AS x", "confidence": 0.9}`,
		},
		{
			name:     "array",
			response: `[1, 2, 3]`,
			want:     `[1, 2, 3]`,
		},
		{
			name:     "no json",
			response: "I cannot answer that.",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSONResponse(t *testing.T) {
	type envelope struct {
		SQL        string  `json:"sql"`
		Confidence float64 `json:"confidence"`
	}

	got, err := ParseJSONResponse[envelope]("```json\n{\"sql\": \"SELECT 1\", \"confidence\": 0.8}\n```")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", got.SQL)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)

	_, err = ParseJSONResponse[envelope]("no json here")
	assert.Error(t, err)
}

func TestExtractSelect(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "bare select",
			response: "SELECT name FROM diagnoses",
			want:     "SELECT name FROM diagnoses",
		},
		{
			name:     "code fenced",
			response: "```sql\nSELECT name FROM diagnoses\n```",
			want:     "SELECT name FROM diagnoses",
		},
		{
			name:     "with prose prefix",
			response: "Sure, here you go: SELECT COUNT(*) FROM claims",
			want:     "SELECT COUNT(*) FROM claims",
		},
		{
			name:     "cut at semicolon",
			response: "SELECT 1; -- trailing comment",
			want:     "SELECT 1",
		},
		{
			name:     "no select",
			response: "I refuse.",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractSelect(tt.response)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
