package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/llm"
	"github.com/carelens/carelens-engine/pkg/models"
)

// greetings are matched exactly (after trimming and lowercasing).
var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true,
	"good morning": true, "good afternoon": true, "good evening": true,
	"thanks": true, "thank you": true, "bye": true, "goodbye": true,
}

// socialPatterns are substring matches that mark conversational turns.
var socialPatterns = []string{
	"how are you", "who are you", "what is your name", "nice to meet",
	"tell me about yourself", "thank you", "thanks a lot",
}

// capabilityPatterns mark questions about the assistant rather than the
// data; they route to CHAT even when a data keyword is present.
var capabilityPatterns = []string{
	"what can you do", "what do you do", "how do you work",
	"what questions can", "help me understand how you",
	"can you help", "what kind of questions",
}

// dataKeywords signal an analytical question.
var dataKeywords = []string{
	"claim", "diagnosis", "diagnoses", "disease", "provider", "hospital",
	"facility", "service", "patient", "state", "cost", "amount", "count",
	"how many", "top", "most", "trend", "total", "average", "common",
	"volume", "utilization", "frequency",
}

const intentRouterSystem = `You classify a user's message for a healthcare claims analytics assistant.
Respond with exactly [DATA] if the message asks a question answerable from claims data, or [CHAT] if it is conversational.
Respond with one tag only.`

// IntentRouter classifies an utterance as DATA or CHAT using fast keyword
// rules with an LLM fallback. It is total: every input returns a decision
// and LLM failure degrades to CHAT.
type IntentRouter struct {
	oracle llm.Client
	logger *zap.Logger
}

// NewIntentRouter creates the intent router.
func NewIntentRouter(oracle llm.Client, logger *zap.Logger) *IntentRouter {
	return &IntentRouter{oracle: oracle, logger: logger.Named("intent-router")}
}

// Route decides DATA or CHAT for the utterance. Empty input is CHAT.
func (r *IntentRouter) Route(ctx context.Context, utterance string) models.TopLevelIntent {
	normalized := strings.ToLower(strings.TrimSpace(utterance))
	if normalized == "" {
		return models.IntentChat
	}

	if greetings[strings.TrimRight(normalized, "!.?")] {
		return models.IntentChat
	}

	for _, pattern := range socialPatterns {
		if strings.Contains(normalized, pattern) {
			return models.IntentChat
		}
	}

	capability := false
	for _, pattern := range capabilityPatterns {
		if strings.Contains(normalized, pattern) {
			capability = true
			break
		}
	}

	if !capability {
		for _, kw := range dataKeywords {
			if strings.Contains(normalized, kw) {
				return models.IntentData
			}
		}
	}

	return r.routeViaLLM(ctx, utterance)
}

// routeViaLLM asks the oracle with a constrained prompt. Ties, parse
// failures, and oracle errors all default to CHAT, the safer branch.
func (r *IntentRouter) routeViaLLM(ctx context.Context, utterance string) models.TopLevelIntent {
	response, err := r.oracle.Complete(ctx, llm.CompletionRequest{
		System:      intentRouterSystem,
		Prompt:      utterance,
		Temperature: 0.0,
		MaxTokens:   8,
	})
	if err != nil {
		r.logger.Warn("intent fallback to CHAT on llm failure", zap.Error(err))
		return models.IntentChat
	}

	hasData := strings.Contains(response, "[DATA]")
	hasChat := strings.Contains(response, "[CHAT]")
	if hasData && !hasChat {
		return models.IntentData
	}
	return models.IntentChat
}
