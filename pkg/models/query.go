// Package models defines the data types that move through the query
// pipeline.
package models

// OperatorRole is the authenticated caller's access level.
type OperatorRole string

const (
	RoleAdmin   OperatorRole = "admin"
	RoleAnalyst OperatorRole = "analyst"
	RolePublic  OperatorRole = "public"
)

// SQLSource records how a candidate SQL statement was produced.
type SQLSource string

const (
	SourceGroundedTemplate SQLSource = "grounded_template"
	SourceLLMGenerated     SQLSource = "llm_generated"
)

// CandidateSQL is a generated SELECT plus metadata, not yet validated.
// The rewriter produces a new value rather than mutating in place.
type CandidateSQL struct {
	SQLText           string
	Explanation       string
	Confidence        float64 // in [0,1]
	TablesReferenced  []string
	ColumnsReferenced []string
	Source            SQLSource
}

// Row is a single result row keyed by column name.
type Row map[string]any

// ExecutionResult holds the bounded output of a warehouse query.
// Sanitization yields a new value with hidden columns removed and labels
// rewritten.
type ExecutionResult struct {
	Columns   []string
	Rows      []Row
	RowCount  int
	Truncated bool
	ElapsedMS int64
}

// VisualizationHint suggests how the sanitized result should be rendered.
type VisualizationHint struct {
	Type    string   `json:"type"`
	Columns []string `json:"columns"`
}
