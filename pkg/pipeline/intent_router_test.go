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

func TestIntentRouter_KeywordRules(t *testing.T) {
	mock := llm.NewMockClient()
	router := NewIntentRouter(mock, zaptest.NewLogger(t))
	ctx := context.Background()

	tests := []struct {
		name      string
		utterance string
		want      models.TopLevelIntent
	}{
		{"empty", "", models.IntentChat},
		{"whitespace", "   ", models.IntentChat},
		{"greeting", "hi", models.IntentChat},
		{"greeting with punctuation", "Hello!", models.IntentChat},
		{"thanks", "thank you", models.IntentChat},
		{"social", "how are you today", models.IntentChat},
		{"data keyword", "how many claims last month", models.IntentData},
		{"diagnosis question", "top diagnoses this year", models.IntentData},
		{"capability question routes past keywords", "what can you do with claims data", models.IntentChat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := router.Route(ctx, tt.utterance)
			assert.Equal(t, tt.want, got)
		})
	}

	// Keyword rules decide without consulting the LLM, except the
	// capability question which falls through.
	assert.Equal(t, 1, mock.CompleteCalls)
}

func TestIntentRouter_LLMFallback(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		want     models.TopLevelIntent
	}{
		{"data tag", "[DATA]", nil, models.IntentData},
		{"chat tag", "[CHAT]", nil, models.IntentChat},
		{"both tags tie to chat", "[DATA] [CHAT]", nil, models.IntentChat},
		{"garbage defaults to chat", "maybe?", nil, models.IntentChat},
		{"llm failure degrades to chat", "", errors.New("connection refused"), models.IntentChat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockClient()
			mock.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
				return tt.response, tt.err
			}
			router := NewIntentRouter(mock, zaptest.NewLogger(t))

			got := router.Route(context.Background(), "ambiguous input without keywords")
			assert.Equal(t, tt.want, got)
		})
	}
}

// The router is total: arbitrary input always yields a decision.
func TestIntentRouter_Totality(t *testing.T) {
	mock := llm.NewMockClient()
	mock.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (string, error) {
		return "", errors.New("down")
	}
	router := NewIntentRouter(mock, zaptest.NewLogger(t))

	inputs := []string{
		"", " ", "\n\t", "????", "SELECT * FROM claims", "ヘルプ",
		"a very long rambling question about nothing in particular at all",
	}
	for _, input := range inputs {
		got := router.Route(context.Background(), input)
		assert.Contains(t, []models.TopLevelIntent{models.IntentData, models.IntentChat}, got)
	}
}
