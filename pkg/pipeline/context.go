// Package pipeline implements the staged query pipeline: intent routing,
// domain routing, intent classification, SQL generation, validation,
// rewriting, bounded execution, result sanitization, and insight grounding.
package pipeline

import (
	"time"

	"github.com/carelens/carelens-engine/pkg/models"
)

// Stage names the pipeline stages in processing order.
type Stage string

const (
	StageReceived         Stage = "received"
	StageIntentRouted     Stage = "intent_routed"
	StageDomainRouted     Stage = "domain_routed"
	StageIntentClassified Stage = "intent_classified"
	StageSQLGenerated     Stage = "sql_generated"
	StageSQLValidated     Stage = "sql_validated"
	StageSQLRewritten     Stage = "sql_rewritten"
	StageExecuted         Stage = "executed"
	StageSanitized        Stage = "sanitized"
	StageNarrated         Stage = "narrated"
	StageResponded        Stage = "responded"
)

// StageOutcome records one transition for observability and feedback
// capture.
type StageOutcome struct {
	Stage     Stage
	OK        bool
	Detail    string
	Timestamp time.Time
}

// RequestContext moves through the pipeline with the request. It is created
// by the orchestrator and discarded after the response is emitted. The
// outcome log is append-only.
type RequestContext struct {
	RequestID string
	Utterance string
	SessionID string
	BranchID  string
	Role      models.OperatorRole
	Received  time.Time

	outcomes []StageOutcome

	// StateFilterContext is set by the intent classifier when the
	// utterance filters on a state. The role gate consults it to decide
	// whether analyst access to users/states is permitted.
	StateFilterContext bool
}

// Record appends a stage outcome.
func (rc *RequestContext) Record(stage Stage, ok bool, detail string) {
	rc.outcomes = append(rc.outcomes, StageOutcome{
		Stage:     stage,
		OK:        ok,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}

// Outcomes returns a copy of the stage outcome log.
func (rc *RequestContext) Outcomes() []StageOutcome {
	out := make([]StageOutcome, len(rc.outcomes))
	copy(out, rc.outcomes)
	return out
}
