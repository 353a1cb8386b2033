package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/llm"
	"github.com/carelens/carelens-engine/pkg/models"
)

const insightSystem = `You summarize healthcare claims query results for an operations analyst.
Write three short sections labeled Insight, Evidence, and Implication.
Use only numbers that appear in the result rows. Never invent, extrapolate, or round numbers.
Do not mention SQL, tables, or columns. Two sentences per section at most.`

const noRecordsSummary = "No records matched your question. Try widening the time range or removing filters."

// insightMaxTokens caps the narrative length.
const insightMaxTokens = 400

// numberTokenPattern finds numeric tokens in a narrative for the grounding
// guard.
var numberTokenPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// InsightConfig controls narrative generation.
type InsightConfig struct {
	// LegacyFallback enables the deterministic row-preview summary used
	// when the LLM is unavailable or its narrative fails grounding. When
	// disabled those turns carry no summary at all.
	LegacyFallback bool
}

// InsightGenerator turns a sanitized result into a short grounded
// narrative. Every number in the narrative must exist in the result; a
// narrative that fails that check is discarded in favour of the
// deterministic summary.
type InsightGenerator struct {
	oracle llm.Client
	cfg    InsightConfig
	logger *zap.Logger
}

// NewInsightGenerator creates the insight generator.
func NewInsightGenerator(oracle llm.Client, cfg InsightConfig, logger *zap.Logger) *InsightGenerator {
	return &InsightGenerator{oracle: oracle, cfg: cfg, logger: logger.Named("insight")}
}

// Narrate produces the summary for a sanitized result. Empty results skip
// the LLM entirely; LLM failure or ungrounded output falls back to a
// deterministic summary built from the first rows.
func (g *InsightGenerator) Narrate(ctx context.Context, utterance string, result *models.ExecutionResult) string {
	if result == nil || len(result.Rows) == 0 {
		return noRecordsSummary
	}

	narrative, err := g.oracle.Complete(ctx, llm.CompletionRequest{
		System:      insightSystem,
		Prompt:      g.buildPrompt(utterance, result),
		Temperature: 0.1,
		MaxTokens:   insightMaxTokens,
	})
	if err != nil {
		g.logger.Warn("insight generation failed, using fallback", zap.Error(err))
		return g.fallbackSummary(result)
	}

	narrative = strings.TrimSpace(narrative)
	if narrative == "" || !g.isGrounded(narrative, utterance, result) {
		g.logger.Warn("insight narrative failed grounding check, using fallback")
		return g.fallbackSummary(result)
	}

	return narrative
}

func (g *InsightGenerator) buildPrompt(utterance string, result *models.ExecutionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", utterance)
	fmt.Fprintf(&b, "Result (%d rows", result.RowCount)
	if result.Truncated {
		b.WriteString(", truncated")
	}
	b.WriteString("):\n")

	b.WriteString(strings.Join(result.Columns, " | "))
	b.WriteString("\n")

	rows := result.Rows
	if len(rows) > 20 {
		rows = rows[:20]
	}
	for _, row := range rows {
		cells := make([]string, 0, len(result.Columns))
		for _, col := range result.Columns {
			cells = append(cells, FormatCell(row[col]))
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	return b.String()
}

// isGrounded verifies every numeric token in the narrative appears in the
// result values, the row count, or the question itself. Comparison is
// tolerant of thousands separators and trailing zeros.
func (g *InsightGenerator) isGrounded(narrative, utterance string, result *models.ExecutionResult) bool {
	allowed := make(map[string]bool)
	addNumber := func(s string) {
		for _, tok := range numberTokenPattern.FindAllString(s, -1) {
			allowed[normalizeNumber(tok)] = true
		}
	}

	addNumber(utterance)
	addNumber(strconv.Itoa(result.RowCount))
	for _, row := range result.Rows {
		for _, value := range row {
			addNumber(FormatCell(value))
		}
	}

	for _, tok := range numberTokenPattern.FindAllString(narrative, -1) {
		if !allowed[normalizeNumber(tok)] {
			return false
		}
	}
	return true
}

// normalizeNumber strips separators and canonicalizes through float parsing
// so "1,200" and "1200.0" compare equal.
func normalizeNumber(tok string) string {
	cleaned := strings.ReplaceAll(tok, ",", "")
	if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return cleaned
}

// fallbackSummary is the deterministic narrative used when the LLM is
// unavailable or produced ungrounded numbers. With the legacy fallback
// disabled the turn gets no summary and clients render the table alone.
func (g *InsightGenerator) fallbackSummary(result *models.ExecutionResult) string {
	if !g.cfg.LegacyFallback {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The query returned %d row", result.RowCount)
	if result.RowCount != 1 {
		b.WriteString("s")
	}
	if result.Truncated {
		b.WriteString(" (truncated)")
	}
	b.WriteString(".")

	rows := result.Rows
	if len(rows) > 3 {
		rows = rows[:3]
	}
	for i, row := range rows {
		cells := make([]string, 0, len(result.Columns))
		for _, col := range result.Columns {
			if v := FormatCell(row[col]); v != "" {
				cells = append(cells, fmt.Sprintf("%s: %s", col, v))
			}
		}
		sort.Strings(cells)
		if len(cells) > 0 {
			fmt.Fprintf(&b, " Row %d: %s.", i+1, strings.Join(cells, ", "))
		}
	}
	return b.String()
}
