package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/apperrors"
	"github.com/carelens/carelens-engine/pkg/conversation"
	"github.com/carelens/carelens-engine/pkg/jsonutil"
	"github.com/carelens/carelens-engine/pkg/llm"
	"github.com/carelens/carelens-engine/pkg/models"
	"github.com/carelens/carelens-engine/pkg/schema"
	sqlutil "github.com/carelens/carelens-engine/pkg/sql"
)

const generatorSystemTemplate = `You are a SQL generator for a %s healthcare claims warehouse.
Write exactly one SELECT statement that answers the user's question.

Schema (only these tables and columns exist):
%s
Rules:
- SELECT statements only. Never emit INSERT, UPDATE, DELETE, DROP, TRUNCATE, ALTER, CREATE, GRANT, REVOKE, or EXEC.
- Use only the tables and columns listed above.
- Every JOIN must have an ON clause.
- Qualify column names with their table.
Respond with a JSON object: {"sql": "...", "explanation": "...", "confidence": 0.0-1.0}`

// llmConfidence is assigned when the model omits or garbles its own score.
const llmConfidence = 0.7

// generationEnvelope is the JSON envelope the generator prompt requests.
// Raw fields tolerate models that quote numbers or return bare strings.
type generationEnvelope struct {
	SQL         json.RawMessage `json:"sql"`
	Explanation json.RawMessage `json:"explanation"`
	Confidence  json.RawMessage `json:"confidence"`
}

// GeneratorConfig selects the dialect, the sampling temperature, and
// whether the grounded template path is active.
type GeneratorConfig struct {
	Dialect          string
	TemplatesEnabled bool
	// Temperature is passed on every generation call. Zero uses 0.2.
	Temperature float64
	// HistoryWindow is how many recent user turns feed follow-up prompts.
	HistoryWindow int
}

// SQLGenerator produces one Candidate SQL per DATA request, preferring a
// grounded template hit over an LLM round trip.
type SQLGenerator struct {
	oracle        llm.Client
	catalogue     *schema.Catalogue
	conversations *conversation.Store
	library       *TemplateLibrary
	cfg           GeneratorConfig
	logger        *zap.Logger
}

// NewSQLGenerator creates the generator.
func NewSQLGenerator(oracle llm.Client, catalogue *schema.Catalogue, conversations *conversation.Store, library *TemplateLibrary, cfg GeneratorConfig, logger *zap.Logger) *SQLGenerator {
	if cfg.Dialect == "" {
		cfg.Dialect = "PostgreSQL"
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.2
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 6
	}
	return &SQLGenerator{
		oracle:        oracle,
		catalogue:     catalogue,
		conversations: conversations,
		library:       library,
		cfg:           cfg,
		logger:        logger.Named("sql-generator"),
	}
}

// Generate produces a candidate SELECT for the request. Template hits win
// outright; the LLM path runs only when no template clears the threshold.
func (g *SQLGenerator) Generate(ctx context.Context, rc *RequestContext, decision models.DomainDecision, classification models.IntentClassification, stateName string) (models.CandidateSQL, error) {
	if g.cfg.TemplatesEnabled && g.library != nil {
		if t := g.library.Match(rc.Utterance, classification.Canonical, decision.Domain); t != nil {
			g.logger.Debug("grounded template hit",
				zap.String("template", t.Name),
				zap.String("request_id", rc.RequestID))
			return g.library.Parameterize(t, classification, stateName), nil
		}
	}

	return g.generateViaLLM(ctx, rc, decision, classification, stateName)
}

func (g *SQLGenerator) generateViaLLM(ctx context.Context, rc *RequestContext, decision models.DomainDecision, classification models.IntentClassification, stateName string) (models.CandidateSQL, error) {
	tables := g.catalogue.DomainTables(decision.Domain)
	system := fmt.Sprintf(generatorSystemTemplate, g.cfg.Dialect, g.catalogue.PromptSchema(tables))

	response, err := g.oracle.Complete(ctx, llm.CompletionRequest{
		System:      system,
		Prompt:      g.buildUserPrompt(rc, classification, stateName),
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		return models.CandidateSQL{}, err
	}

	candidate, err := g.parseResponse(response)
	if err != nil {
		return models.CandidateSQL{}, apperrors.Wrap(apperrors.KindGenerationFailure,
			"I could not produce a query for that question. Try rephrasing it.", err)
	}

	if !sqlutil.IsSelect(candidate.SQLText) {
		return models.CandidateSQL{}, apperrors.New(apperrors.KindGenerationFailure,
			"I could not produce a safe query for that question. Try rephrasing it.")
	}

	candidate.TablesReferenced = sqlutil.ReferencedTables(candidate.SQLText)
	candidate.Source = models.SourceLLMGenerated
	return candidate, nil
}

// buildUserPrompt assembles the utterance with its resolved qualifiers and,
// for follow-ups, the conversation summary.
func (g *SQLGenerator) buildUserPrompt(rc *RequestContext, classification models.IntentClassification, stateName string) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(rc.Utterance)

	if classification.TimeWindow != nil {
		b.WriteString("\nTime filter to apply: ")
		b.WriteString(classification.TimeWindow.SQLFragment)
	}
	if classification.TopN > 0 {
		fmt.Fprintf(&b, "\nLimit results to the top %d.", classification.TopN)
	}
	if stateName != "" {
		fmt.Fprintf(&b, "\nFilter to claims whose user is in the state named %q, joining through users and states.", stateName)
	}

	if rc.SessionID != "" && conversation.IsFollowUp(rc.Utterance) {
		if summary := g.conversations.Summary(rc.SessionID, g.cfg.HistoryWindow); summary != "" {
			b.WriteString("\n")
			b.WriteString(summary)
		}
		if branch := g.conversations.BranchContext(rc.SessionID, rc.BranchID); branch != nil && branch.LastSQL != "" {
			b.WriteString("\nPrevious query for this thread: ")
			b.WriteString(branch.LastSQL)
		}
	}

	return b.String()
}

// parseResponse parses the JSON envelope leniently, falling back to raw
// SELECT extraction when the model skipped the envelope.
func (g *SQLGenerator) parseResponse(response string) (models.CandidateSQL, error) {
	envelope, err := llm.ParseJSONResponse[generationEnvelope](response)
	if err == nil {
		sqlText := strings.TrimSpace(jsonutil.FlexibleString(envelope.SQL))
		if sqlText != "" {
			confidence := jsonutil.FlexibleFloat(envelope.Confidence)
			if confidence <= 0 || confidence > 1 {
				confidence = llmConfidence
			}
			return models.CandidateSQL{
				SQLText:     sqlText,
				Explanation: jsonutil.FlexibleString(envelope.Explanation),
				Confidence:  confidence,
			}, nil
		}
	}

	sqlText, err := llm.ExtractSelect(response)
	if err != nil {
		return models.CandidateSQL{}, fmt.Errorf("parse generation response: %w", err)
	}
	return models.CandidateSQL{
		SQLText:    sqlText,
		Confidence: llmConfidence,
	}, nil
}
