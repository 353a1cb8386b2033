package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/apperrors"
	"github.com/carelens/carelens-engine/pkg/conversation"
	"github.com/carelens/carelens-engine/pkg/feedback"
	"github.com/carelens/carelens-engine/pkg/llm"
	"github.com/carelens/carelens-engine/pkg/models"
)

const chatSystem = `You are the assistant for a healthcare claims analytics service.
You answer questions about claims, diagnoses, services, providers, and facilities when asked about data.
For conversational messages, reply briefly and warmly, and offer an example question the user could ask.
Never invent data or statistics.`

const chatFallback = "Hello! Ask me about claims, diagnoses, services, providers, or facilities. " +
	"For example: \"top 5 diagnoses this year\"."

// Request is one question submitted to the pipeline.
type Request struct {
	Utterance   string
	SessionID   string
	BranchID    string
	Role        models.OperatorRole
	RefineQuery bool
}

// Response is the pipeline's answer for a request that terminated in
// responded. For CHAT turns only Summary is populated.
type Response struct {
	RequestID     string
	SQL           string
	Explanation   string
	Confidence    float64
	Result        *models.ExecutionResult
	Visualization models.VisualizationHint
	Summary       string
	Source        models.SQLSource
	Intent        models.IntentClassification
}

// OrchestratorConfig bounds a request as a whole.
type OrchestratorConfig struct {
	// RequestTimeout is the end-to-end deadline for one request, covering
	// every LLM round trip and the warehouse query. Zero uses a minute.
	RequestTimeout time.Duration
}

// Orchestrator sequences the pipeline stages over one request at a time.
// Each request runs synchronously in program order; concurrency comes from
// the HTTP server running many orchestrations in parallel.
type Orchestrator struct {
	intents       *IntentRouter
	domains       *DomainRouter
	classifier    *IntentClassifier
	generator     *SQLGenerator
	validator     *SafetyValidator
	rewriter      *SQLRewriter
	executor      *QueryExecutor
	sanitizer     *ResultSanitizer
	insights      *InsightGenerator
	conversations *conversation.Store
	feedback      *feedback.Store
	oracle        llm.Client
	cfg           OrchestratorConfig
	logger        *zap.Logger
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(
	intents *IntentRouter,
	domains *DomainRouter,
	classifier *IntentClassifier,
	generator *SQLGenerator,
	validator *SafetyValidator,
	rewriter *SQLRewriter,
	executor *QueryExecutor,
	sanitizer *ResultSanitizer,
	insights *InsightGenerator,
	conversations *conversation.Store,
	fb *feedback.Store,
	oracle llm.Client,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = time.Minute
	}
	return &Orchestrator{
		intents:       intents,
		domains:       domains,
		classifier:    classifier,
		generator:     generator,
		validator:     validator,
		rewriter:      rewriter,
		executor:      executor,
		sanitizer:     sanitizer,
		insights:      insights,
		conversations: conversations,
		feedback:      fb,
		oracle:        oracle,
		cfg:           cfg,
		logger:        logger.Named("orchestrator"),
	}
}

// Handle runs one request through the pipeline under the request deadline.
// A deadline breach anywhere in the pipeline surfaces as a Timeout.
// Refusals and failures come back as tagged errors; the HTTP layer maps
// them to the response envelope.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	rc := newRequestContext(req)
	rc.Record(StageReceived, true, "")

	resp, err := o.run(ctx, rc, req)
	o.recordFeedback(rc, resp, err)
	return resp, err
}

func newRequestContext(req Request) *RequestContext {
	rc := &RequestContext{
		RequestID: uuid.NewString(),
		Utterance: strings.TrimSpace(req.Utterance),
		SessionID: req.SessionID,
		BranchID:  req.BranchID,
		Role:      req.Role,
		Received:  time.Now(),
	}
	if rc.BranchID == "" {
		rc.BranchID = rc.SessionID
	}
	return rc
}

func (o *Orchestrator) run(ctx context.Context, rc *RequestContext, req Request) (*Response, error) {
	if rc.Utterance == "" {
		return nil, apperrors.New(apperrors.KindInvalidInput, "Please enter a question.")
	}

	if rc.SessionID != "" {
		o.conversations.Append(rc.SessionID, models.ChatRoleUser, rc.Utterance, rc.BranchID, nil)
	}

	topLevel := o.intents.Route(ctx, rc.Utterance)
	rc.Record(StageIntentRouted, true, string(topLevel))
	if topLevel == models.IntentChat {
		return o.handleChat(ctx, rc)
	}

	decision := o.domains.Route(rc.Utterance)
	if decision.Domain == models.DomainRejected {
		rc.Record(StageDomainRouted, false, decision.RejectionReason)
		return nil, apperrors.New(apperrors.KindOutOfScope, decision.RejectionReason)
	}
	rc.Record(StageDomainRouted, true, string(decision.Domain))

	classification := o.classifier.Classify(rc.Utterance)
	if classification.Clarification != "" {
		rc.Record(StageIntentClassified, false, classification.Clarification)
		return nil, apperrors.New(apperrors.KindClarification, classification.Clarification)
	}
	stateName := o.classifier.StateFilter(rc.Utterance)
	rc.StateFilterContext = stateName != ""
	rc.Record(StageIntentClassified, true, string(classification.Canonical))

	candidate, err := o.generator.Generate(ctx, rc, decision, classification, stateName)
	if err != nil {
		rc.Record(StageSQLGenerated, false, "")
		return nil, o.mapUpstream(ctx, err)
	}
	rc.Record(StageSQLGenerated, true, string(candidate.Source))

	normalized, err := o.validator.Validate(rc, candidate)
	if err != nil {
		rc.Record(StageSQLValidated, false, apperrors.UserMessage(err))
		return nil, err
	}
	candidate.SQLText = normalized
	rc.Record(StageSQLValidated, true, "")

	candidate = o.rewriter.Rewrite(candidate, classification, rc.StateFilterContext)
	rc.Record(StageSQLRewritten, true, "")

	result, err := o.executor.Execute(ctx, candidate.SQLText)
	if err != nil {
		rc.Record(StageExecuted, false, "")
		return nil, o.mapUpstream(ctx, err)
	}
	rc.Record(StageExecuted, true, "")

	sanitized := o.sanitizer.Sanitize(result)
	rc.Record(StageSanitized, true, "")

	summary := o.insights.Narrate(ctx, rc.Utterance, sanitized)
	rc.Record(StageNarrated, true, "")

	if rc.SessionID != "" {
		o.conversations.Append(rc.SessionID, models.ChatRoleAssistant, summary, rc.BranchID,
			map[string]string{"sql": candidate.SQLText})
	}

	rc.Record(StageResponded, true, "")
	return &Response{
		RequestID:     rc.RequestID,
		SQL:           candidate.SQLText,
		Explanation:   candidate.Explanation,
		Confidence:    candidate.Confidence,
		Result:        sanitized,
		Visualization: SuggestVisualization(classification, sanitized),
		Summary:       summary,
		Source:        candidate.Source,
		Intent:        classification,
	}, nil
}

// handleChat answers conversational turns directly from the LLM, skipping
// generation and execution. Chat turns never carry SQL or rows into the
// conversation store.
func (o *Orchestrator) handleChat(ctx context.Context, rc *RequestContext) (*Response, error) {
	reply, err := o.oracle.Complete(ctx, llm.CompletionRequest{
		System:      chatSystem,
		Prompt:      rc.Utterance,
		Temperature: 0.7,
		MaxTokens:   256,
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		reply = chatFallback
	}
	reply = strings.TrimSpace(reply)
	rc.Record(StageNarrated, true, "chat")

	if rc.SessionID != "" {
		o.conversations.Append(rc.SessionID, models.ChatRoleAssistant, reply, rc.BranchID, nil)
	}

	rc.Record(StageResponded, true, "")
	return &Response{
		RequestID:     rc.RequestID,
		Summary:       reply,
		Visualization: models.VisualizationHint{Type: "none"},
	}, nil
}

// mapUpstream converts untagged provider and deadline errors into the
// pipeline taxonomy. Tagged errors pass through unchanged.
func (o *Orchestrator) mapUpstream(ctx context.Context, err error) error {
	if apperrors.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return apperrors.Wrap(apperrors.KindTimeout,
			"The request took too long and was cancelled.", err)
	}
	var lerr *llm.Error
	if errors.As(err, &lerr) {
		return apperrors.Wrap(apperrors.KindUpstreamUnavailable,
			"The analysis service is temporarily unavailable. Please retry in a moment.", err)
	}
	return apperrors.Wrap(apperrors.KindUpstreamUnavailable,
		"The request could not be completed. Please retry in a moment.", err)
}

// recordFeedback captures the request outcome. Failures to persist never
// surface to the caller.
func (o *Orchestrator) recordFeedback(rc *RequestContext, resp *Response, err error) {
	if o.feedback == nil || !o.feedback.Enabled() {
		return
	}

	entry := feedback.Entry{
		RequestID: rc.RequestID,
		SessionID: rc.SessionID,
		Utterance: rc.Utterance,
		Success:   err == nil,
	}
	if resp != nil {
		entry.SQL = resp.SQL
		entry.Source = string(resp.Source)
	}
	if err != nil {
		entry.ErrorType = string(apperrors.KindOf(err))
	}
	for _, outcome := range rc.Outcomes() {
		entry.Stages = append(entry.Stages, feedback.Stage{
			Name:   string(outcome.Stage),
			OK:     outcome.OK,
			Detail: outcome.Detail,
		})
	}
	o.feedback.Record(entry)
}
